package httpdto

type CreateConversationRequest struct {
	Kind        string   `json:"kind"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	IsPrivate   bool     `json:"is_private"`
	Members     []string `json:"members"`
}
