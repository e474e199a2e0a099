package httpdto

type SendMessageRequest struct {
	Content   string `json:"content"`
	Kind      string `json:"kind"`
	FileURL   string `json:"file_url"`
	FileName  string `json:"file_name"`
	ReplyToID string `json:"reply_to_id"`
}

type ReactionRequest struct {
	Emoji string `json:"emoji"`
}
