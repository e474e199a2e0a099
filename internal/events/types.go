package events

// Event type constants, format: domain.action

// Message events
const (
	EventTypeMessageCreated = "message.created"
	EventTypeMessageUpdated = "message.updated"
	EventTypeMessageDeleted = "message.deleted"
)

// Reaction events
const (
	EventTypeReactionAdded   = "reaction.added"
	EventTypeReactionRemoved = "reaction.removed"
)

// Conversation events
const (
	EventTypeConversationCreated = "conversation.created"
	EventTypeConversationRead    = "conversation.read"
)

// Typing and presence events
const (
	EventTypeTypingStarted   = "typing.started"
	EventTypeTypingStopped   = "typing.stopped"
	EventTypePresenceChanged = "presence.changed"
)

// Aggregate type constants
const (
	AggregateTypeMessage      = "message"
	AggregateTypeReaction     = "reaction"
	AggregateTypeConversation = "conversation"
	AggregateTypeTyping       = "typing"
	AggregateTypePresence     = "presence"
)

// Redis channel prefixes. Message and typing channels are scoped per
// conversation; presence is a single global channel.
const (
	ChannelPrefixMessages = "feed:conversation:"
	ChannelSuffixMessages = ":messages"
	ChannelSuffixTyping   = ":typing"
	ChannelPresence       = "feed:presence"
	ChannelConversations  = "feed:conversations"
)
