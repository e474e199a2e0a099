package events

import "github.com/google/uuid"

// MessagesChannel is the feed channel carrying message and reaction changes
// for one conversation. Conversation-level changes (created, read-cursor
// moves) ride the same channel so one subscription keeps the conversation
// list fresh.
func MessagesChannel(conversationID uuid.UUID) string {
	return ChannelPrefixMessages + conversationID.String() + ChannelSuffixMessages
}

func TypingChannel(conversationID uuid.UUID) string {
	return ChannelPrefixMessages + conversationID.String() + ChannelSuffixTyping
}

func PresenceChannel() string {
	return ChannelPresence
}

// ConversationsChannel announces newly created conversations. Participants
// cannot be subscribed to a conversation that did not exist yet, so creation
// rides a global channel every session listens on.
func ConversationsChannel() string {
	return ChannelConversations
}
