package store_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"commune-chat/internal/domain/conversation"
	"commune-chat/internal/domain/identity"
	"commune-chat/internal/domain/message"
	"commune-chat/internal/events"
	"commune-chat/internal/repository"
	"commune-chat/internal/store"
	"commune-chat/internal/synccache"
	commune_errors "commune-chat/pkg/errors"
	"commune-chat/pkg/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type fixture struct {
	conversations *store.ConversationStore
	messages      *store.MessageStore
	queries       *store.Queries
	convRepo      repository.ConversationRepository
	profiles      repository.ProfileRepository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&identity.Profile{},
		&conversation.Conversation{},
		&conversation.Participant{},
		&message.Message{},
		&message.Reaction{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	log := logger.NewNop()
	publisher := events.NewPublisher(client, log)

	convRepo := repository.NewConversationRepository(db)
	msgRepo := repository.NewMessageRepository(db)
	profileRepo := repository.NewProfileRepository(db)

	conversations := store.NewConversationStore(convRepo, msgRepo, profileRepo, publisher, log)
	messages := store.NewMessageStore(msgRepo, convRepo, profileRepo, publisher, log)
	queries := store.NewQueries(synccache.New(log), conversations, messages, log)

	return &fixture{
		conversations: conversations,
		messages:      messages,
		queries:       queries,
		convRepo:      convRepo,
		profiles:      profileRepo,
	}
}

func (f *fixture) newUser(t *testing.T, name string) uuid.UUID {
	t.Helper()
	p := identity.Profile{ID: uuid.New(), FullName: name, UpdatedAt: time.Now()}
	if err := f.profiles.Upsert(context.Background(), &p); err != nil {
		t.Fatalf("upsert profile: %v", err)
	}
	return p.ID
}

func (f *fixture) newConversation(t *testing.T, creator uuid.UUID, members ...uuid.UUID) store.ConversationSummary {
	t.Helper()
	summary, err := f.conversations.Create(context.Background(), creator, store.CreateConversationSpec{
		Kind:           conversation.KindGroup,
		Name:           "room",
		ParticipantIDs: members,
	})
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}
	return summary
}

func TestCreateConversationCreatorIsAdmin(t *testing.T) {
	f := newFixture(t)
	creator := f.newUser(t, "Creator")
	member := f.newUser(t, "Member")

	summary := f.newConversation(t, creator, member)

	if len(summary.Participants) != 2 {
		t.Fatalf("expected 2 participants, got %d", len(summary.Participants))
	}
	roles := map[uuid.UUID]string{}
	for _, p := range summary.Participants {
		roles[p.UserID] = p.Role
	}
	if roles[creator] != conversation.RoleAdmin {
		t.Errorf("creator role = %q, want admin", roles[creator])
	}
	if roles[member] != conversation.RoleMember {
		t.Errorf("member role = %q, want member", roles[member])
	}
}

func TestCreateConversationRejectsUnknownKind(t *testing.T) {
	f := newFixture(t)
	creator := f.newUser(t, "Creator")

	_, err := f.conversations.Create(context.Background(), creator, store.CreateConversationSpec{Kind: "broadcast"})
	if !errors.Is(err, commune_errors.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestSendRequiresMembership(t *testing.T) {
	f := newFixture(t)
	creator := f.newUser(t, "Creator")
	outsider := f.newUser(t, "Outsider")
	summary := f.newConversation(t, creator)

	_, err := f.messages.Send(context.Background(), outsider, store.SendMessageInput{
		ConversationID: summary.ID,
		Content:        "let me in",
	})
	if !errors.Is(err, commune_errors.ErrForbidden) {
		t.Errorf("expected ErrForbidden, got %v", err)
	}
}

func TestSendValidation(t *testing.T) {
	f := newFixture(t)
	creator := f.newUser(t, "Creator")
	summary := f.newConversation(t, creator)
	ctx := context.Background()

	_, err := f.messages.Send(ctx, creator, store.SendMessageInput{ConversationID: summary.ID, Content: "   "})
	if !errors.Is(err, commune_errors.ErrInvalidInput) {
		t.Errorf("blank content: expected ErrInvalidInput, got %v", err)
	}

	_, err = f.messages.Send(ctx, creator, store.SendMessageInput{ConversationID: summary.ID, Content: "x", Kind: "voice"})
	if !errors.Is(err, commune_errors.ErrInvalidInput) {
		t.Errorf("unknown kind: expected ErrInvalidInput, got %v", err)
	}
}

func TestSendRejectsCrossConversationReply(t *testing.T) {
	f := newFixture(t)
	creator := f.newUser(t, "Creator")
	roomA := f.newConversation(t, creator)
	roomB := f.newConversation(t, creator)
	ctx := context.Background()

	inB, err := f.messages.Send(ctx, creator, store.SendMessageInput{ConversationID: roomB.ID, Content: "other room"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	_, err = f.messages.Send(ctx, creator, store.SendMessageInput{
		ConversationID: roomA.ID,
		Content:        "replying across rooms",
		ReplyToID:      &inB.ID,
	})
	if !errors.Is(err, commune_errors.ErrInvalidReference) {
		t.Fatalf("expected ErrInvalidReference, got %v", err)
	}

	// Nothing must have been written to room A.
	msgs, err := f.messages.ListFor(ctx, creator, roomA.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("expected empty room after rejected reply, got %d messages", len(msgs))
	}

	missing := uuid.New()
	_, err = f.messages.Send(ctx, creator, store.SendMessageInput{
		ConversationID: roomA.ID,
		Content:        "replying to nothing",
		ReplyToID:      &missing,
	})
	if !errors.Is(err, commune_errors.ErrInvalidReference) {
		t.Errorf("expected ErrInvalidReference for missing target, got %v", err)
	}
}

func TestSendBumpsConversationOrdering(t *testing.T) {
	f := newFixture(t)
	creator := f.newUser(t, "Creator")
	first := f.newConversation(t, creator)
	second := f.newConversation(t, creator)
	ctx := context.Background()

	// A message in the older conversation moves it back to the top.
	time.Sleep(5 * time.Millisecond)
	if _, err := f.messages.Send(ctx, creator, store.SendMessageInput{ConversationID: first.ID, Content: "bump"}); err != nil {
		t.Fatalf("send: %v", err)
	}

	list, err := f.conversations.List(ctx, creator)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 conversations, got %d", len(list))
	}
	if list[0].ID != first.ID {
		t.Errorf("expected bumped conversation first, got %s", list[0].ID)
	}
	if list[1].ID != second.ID {
		t.Errorf("expected quiet conversation second, got %s", list[1].ID)
	}
	if list[0].LastMessage == nil || list[0].LastMessage.Content != "bump" {
		t.Errorf("unexpected last message: %+v", list[0].LastMessage)
	}
}

func TestUnreadCountsAndMarkRead(t *testing.T) {
	f := newFixture(t)
	alice := f.newUser(t, "Alice")
	bob := f.newUser(t, "Bob")
	summary := f.newConversation(t, alice, bob)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := f.messages.Send(ctx, alice, store.SendMessageInput{ConversationID: summary.ID, Content: fmt.Sprintf("msg %d", i)}); err != nil {
			t.Fatalf("send: %v", err)
		}
	}

	bobList, err := f.conversations.List(ctx, bob)
	if err != nil {
		t.Fatalf("list for bob: %v", err)
	}
	if bobList[0].UnreadCount != 3 {
		t.Errorf("bob unread = %d, want 3", bobList[0].UnreadCount)
	}

	// The sender's own messages never count as unread.
	aliceList, err := f.conversations.List(ctx, alice)
	if err != nil {
		t.Fatalf("list for alice: %v", err)
	}
	if aliceList[0].UnreadCount != 0 {
		t.Errorf("alice unread = %d, want 0", aliceList[0].UnreadCount)
	}

	if err := f.conversations.MarkRead(ctx, bob, summary.ID); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	bobList, err = f.conversations.List(ctx, bob)
	if err != nil {
		t.Fatalf("list for bob: %v", err)
	}
	if bobList[0].UnreadCount != 0 {
		t.Errorf("bob unread after mark read = %d, want 0", bobList[0].UnreadCount)
	}
}

func TestDeletedReplyTargetTombstone(t *testing.T) {
	f := newFixture(t)
	alice := f.newUser(t, "Alice")
	bob := f.newUser(t, "Bob")
	summary := f.newConversation(t, alice, bob)
	ctx := context.Background()

	original, err := f.messages.Send(ctx, alice, store.SendMessageInput{ConversationID: summary.ID, Content: "original"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if _, err := f.messages.Send(ctx, bob, store.SendMessageInput{
		ConversationID: summary.ID,
		Content:        "reply",
		ReplyToID:      &original.ID,
	}); err != nil {
		t.Fatalf("send reply: %v", err)
	}

	if err := f.messages.Delete(ctx, alice, original.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	msgs, err := f.messages.ListFor(ctx, bob, summary.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected only the reply to remain visible, got %d messages", len(msgs))
	}
	reply := msgs[0]
	if reply.ReplyTo == nil {
		t.Fatal("reply target missing")
	}
	if !reply.ReplyTo.Deleted {
		t.Error("expected tombstoned reply target")
	}
	if reply.ReplyTo.Content != "" {
		t.Errorf("tombstone leaked content %q", reply.ReplyTo.Content)
	}
}

func TestDeleteSenderOnly(t *testing.T) {
	f := newFixture(t)
	alice := f.newUser(t, "Alice")
	bob := f.newUser(t, "Bob")
	summary := f.newConversation(t, alice, bob)
	ctx := context.Background()

	m, err := f.messages.Send(ctx, alice, store.SendMessageInput{ConversationID: summary.ID, Content: "mine"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	err = f.messages.Delete(ctx, bob, m.ID)
	if !errors.Is(err, commune_errors.ErrForbidden) {
		t.Errorf("expected ErrForbidden for non-sender, got %v", err)
	}
	if err := f.messages.Delete(ctx, alice, m.ID); err != nil {
		t.Errorf("sender delete failed: %v", err)
	}
}

func TestReactionGrouping(t *testing.T) {
	f := newFixture(t)
	alice := f.newUser(t, "Alice")
	bob := f.newUser(t, "Bob")
	summary := f.newConversation(t, alice, bob)
	ctx := context.Background()

	m, err := f.messages.Send(ctx, alice, store.SendMessageInput{ConversationID: summary.ID, Content: "react to me"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	if err := f.messages.AddReaction(ctx, alice, m.ID, "👍"); err != nil {
		t.Fatalf("add reaction: %v", err)
	}
	if err := f.messages.AddReaction(ctx, bob, m.ID, "👍"); err != nil {
		t.Fatalf("add reaction: %v", err)
	}
	if err := f.messages.AddReaction(ctx, bob, m.ID, "🎉"); err != nil {
		t.Fatalf("add reaction: %v", err)
	}

	msgs, err := f.messages.ListFor(ctx, alice, summary.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	groups := msgs[0].Reactions
	if len(groups) != 2 {
		t.Fatalf("expected 2 reaction groups, got %d", len(groups))
	}
	if groups[0].Emoji != "👍" || groups[0].Count != 2 {
		t.Errorf("first group = %+v, want 👍 x2", groups[0])
	}
	if groups[1].Emoji != "🎉" || groups[1].Count != 1 {
		t.Errorf("second group = %+v, want 🎉 x1", groups[1])
	}
}

func TestReactionMembershipAndIdempotentRemove(t *testing.T) {
	f := newFixture(t)
	alice := f.newUser(t, "Alice")
	outsider := f.newUser(t, "Outsider")
	summary := f.newConversation(t, alice)
	ctx := context.Background()

	m, err := f.messages.Send(ctx, alice, store.SendMessageInput{ConversationID: summary.ID, Content: "hello"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	err = f.messages.AddReaction(ctx, outsider, m.ID, "👀")
	if !errors.Is(err, commune_errors.ErrForbidden) {
		t.Errorf("expected ErrForbidden for outsider, got %v", err)
	}

	if err := f.messages.AddReaction(ctx, alice, m.ID, ""); !errors.Is(err, commune_errors.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for empty emoji, got %v", err)
	}

	// Removing a reaction that is not there is a quiet no-op.
	if err := f.messages.RemoveReaction(ctx, alice, m.ID, "👀"); err != nil {
		t.Errorf("remove of absent reaction: %v", err)
	}
}

// A message write must stale every participant's cached conversation list,
// not just the sender's: a reader without a stream would otherwise keep
// serving the old unread count and last message forever.
func TestMessageWriteInvalidatesAllParticipantLists(t *testing.T) {
	f := newFixture(t)
	alice := f.newUser(t, "Alice")
	bob := f.newUser(t, "Bob")
	summary := f.newConversation(t, alice, bob)
	ctx := context.Background()

	// Bob's list is cached while the room is still quiet.
	bobList, err := f.queries.Conversations(ctx, bob)
	if err != nil {
		t.Fatalf("conversations for bob: %v", err)
	}
	if bobList[0].UnreadCount != 0 || bobList[0].LastMessage != nil {
		t.Fatalf("unexpected primed list: %+v", bobList[0])
	}

	if _, err := f.messages.Send(ctx, alice, store.SendMessageInput{ConversationID: summary.ID, Content: "hi"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	f.queries.InvalidateAfterMessageChange(ctx, summary.ID, alice)

	bobList, err = f.queries.Conversations(ctx, bob)
	if err != nil {
		t.Fatalf("conversations for bob: %v", err)
	}
	if bobList[0].UnreadCount != 1 {
		t.Errorf("bob unread = %d, want 1", bobList[0].UnreadCount)
	}
	if bobList[0].LastMessage == nil || bobList[0].LastMessage.Content != "hi" {
		t.Errorf("bob last message = %+v, want \"hi\"", bobList[0].LastMessage)
	}
}

func TestQueriesShareCacheAcrossReaders(t *testing.T) {
	f := newFixture(t)
	alice := f.newUser(t, "Alice")
	bob := f.newUser(t, "Bob")
	outsider := f.newUser(t, "Outsider")
	summary := f.newConversation(t, alice, bob)
	ctx := context.Background()

	if _, err := f.messages.Send(ctx, alice, store.SendMessageInput{ConversationID: summary.ID, Content: "hi"}); err != nil {
		t.Fatalf("send: %v", err)
	}

	forAlice, err := f.queries.Messages(ctx, alice, summary.ID)
	if err != nil {
		t.Fatalf("messages for alice: %v", err)
	}
	forBob, err := f.queries.Messages(ctx, bob, summary.ID)
	if err != nil {
		t.Fatalf("messages for bob: %v", err)
	}
	if len(forAlice) != 1 || len(forBob) != 1 {
		t.Fatalf("expected both readers to see 1 message, got %d and %d", len(forAlice), len(forBob))
	}

	// Membership is checked before the cache, so the shared entry never leaks.
	_, err = f.queries.Messages(ctx, outsider, summary.ID)
	if !errors.Is(err, commune_errors.ErrForbidden) {
		t.Errorf("expected ErrForbidden for outsider, got %v", err)
	}
}
