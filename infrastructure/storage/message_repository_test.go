package storage

import (
	"chat-core/domain"
	"chat-core/domain/event"
	"chat-core/domain/search"
	"chat-core/errors"
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

func newTestMessageRepository(t *testing.T, pageSize int) (*MessageRepository, *capturePublisher) {
	t.Helper()
	publisher := &capturePublisher{}
	repo := NewMessageRepository(newTestDB(t), newTestIndex(t), publisher, testLogger(), pageSize)
	return repo, publisher
}

func Test_Record_And_Get_Sorted_Messages(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository, publisher := newTestMessageRepository(t, 0)
	room := domain.RoomID("room-1")
	content := "this message will self destruct in 5 seconds"
	at := time.Now().UTC()

	// Given three messages stored out of order
	messages := []domain.Message{
		{RoomID: room, UserID: "Clara", Content: content, CreatedAt: at.Add(2 * time.Minute)},
		{RoomID: room, UserID: "Alice", Content: content, CreatedAt: at},
		{RoomID: room, UserID: "Bob", Content: content, CreatedAt: at.Add(time.Minute)},
	}
	for _, message := range messages {
		_, err := repository.StoreMessage(ctx, message)
		req.NoError(err)
	}

	// When fetching messages
	fetched, cursor, err := repository.GetMessages(ctx, room, nil)
	req.NoError(err)

	// Then they come newest first and the history is exhausted
	req.Len(fetched, 3)
	req.Equal([]string{"Clara", "Bob", "Alice"}, lo.Map(fetched, func(m domain.Message, _ int) string { return m.UserID }))
	req.Nil(cursor)
	req.Len(publisher.published(), 3)
	inserted, ok := publisher.published()[0].(event.MessageInserted)
	req.True(ok)
	req.Equal(room, inserted.RoomID())
	req.Equal(domain.KindText, inserted.Message.Kind)
}

func Test_MessageRepository_Pagination(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repo, _ := newTestMessageRepository(t, 4)
	room := domain.RoomID("room-42")
	now := time.Now().UTC()

	// Given 10 messages from oldest to newest, plus one in another room
	for i := 1; i <= 10; i++ {
		_, err := repo.StoreMessage(ctx, domain.Message{
			RoomID:    room,
			UserID:    fmt.Sprintf("user_%d", i),
			Content:   fmt.Sprintf("Message %d", i),
			CreatedAt: now.Add(time.Duration(i) * time.Minute),
		})
		req.NoError(err)
	}
	_, err := repo.StoreMessage(ctx, domain.Message{RoomID: "room-420", UserID: "intruder", Content: "elsewhere", CreatedAt: now.Add(time.Hour)})
	req.NoError(err)

	// Page 1
	msgs1, cursor1, err := repo.GetMessages(ctx, room, nil)
	req.NoError(err)
	req.Len(msgs1, 4)
	req.Equal("user_10", msgs1[0].UserID)
	req.Equal("user_7", msgs1[3].UserID)
	req.NotNil(cursor1)

	// Page 2 starts right after the cursor, without duplicate
	msgs2, cursor2, err := repo.GetMessages(ctx, room, cursor1)
	req.NoError(err)
	req.Len(msgs2, 4)
	req.Equal("user_6", msgs2[0].UserID)
	req.Equal("user_3", msgs2[3].UserID)
	req.NotNil(cursor2)

	// Page 3 holds the remaining two
	msgs3, cursor3, err := repo.GetMessages(ctx, room, cursor2)
	req.NoError(err)
	req.Len(msgs3, 2)
	req.Equal("user_2", msgs3[0].UserID)
	req.Equal("user_1", msgs3[1].UserID)
	req.Nil(cursor3)
}

func TestMessageRepository_Same_Timestamp_Ordered_By_ID(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repo, _ := newTestMessageRepository(t, 0)
	at := time.Now().UTC()

	first := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	second := uuid.MustParse("00000000-0000-0000-0000-000000000002")
	_, err := repo.StoreMessage(ctx, domain.Message{ID: second, RoomID: "r1", UserID: "bob", Content: "b", CreatedAt: at})
	req.NoError(err)
	_, err = repo.StoreMessage(ctx, domain.Message{ID: first, RoomID: "r1", UserID: "alice", Content: "a", CreatedAt: at})
	req.NoError(err)

	fetched, _, err := repo.GetMessages(ctx, "r1", nil)
	req.NoError(err)
	req.Equal([]uuid.UUID{second, first}, []uuid.UUID{fetched[0].ID, fetched[1].ID})
}

func TestMessageRepository_Reply_Requires_Target_In_Same_Room(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repo, publisher := newTestMessageRepository(t, 0)
	long := lo.RandomString(150, lo.LettersCharset)

	target, err := repo.StoreMessage(ctx, domain.Message{RoomID: "r1", UserID: "alice", Content: long})
	req.NoError(err)

	// When replying from the same room
	reply, err := repo.StoreMessage(ctx, domain.Message{RoomID: "r1", UserID: "bob", Content: "agreed", ReplyTo: &target.ID})

	// Then the preview is denormalized and truncated
	req.NoError(err)
	req.Equal(domain.KindReply, reply.Kind)
	req.Equal(domain.ReplyPreview(long), reply.ReplyPreview)
	stored, err := repo.GetMessage(ctx, reply.ID)
	req.NoError(err)
	req.Equal(target.ID, *stored.ReplyTo)

	// When the target is missing or lives in another room
	missing := uuid.New()
	_, err = repo.StoreMessage(ctx, domain.Message{RoomID: "r1", UserID: "bob", Content: "?", ReplyTo: &missing})
	req.ErrorIs(err, errors.ErrReplyTargetMissing)
	_, err = repo.StoreMessage(ctx, domain.Message{RoomID: "r2", UserID: "bob", Content: "?", ReplyTo: &target.ID})
	req.ErrorIs(err, errors.ErrReplyTargetMissing)

	// Then nothing was committed or published for the failed replies
	req.Len(publisher.published(), 2)
}

func TestMessageRepository_Edit_By_Non_Author_Leaves_Content(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repo, _ := newTestMessageRepository(t, 0)

	message, err := repo.StoreMessage(ctx, domain.Message{RoomID: "r1", UserID: "alice", Content: "original"})
	req.NoError(err)

	// When bob edits alice's message
	_, err = repo.UpdateContent(ctx, message.ID, "bob", "hijacked")

	// Then it is rejected and the content is unchanged when re-fetched
	req.ErrorIs(err, errors.ErrNotAuthor)
	stored, err := repo.GetMessage(ctx, message.ID)
	req.NoError(err)
	req.Equal("original", stored.Content)
	req.False(stored.Edited)

	// When alice edits it
	edited, err := repo.UpdateContent(ctx, message.ID, "alice", "fixed")
	req.NoError(err)
	req.True(edited.Edited)
	req.NotNil(edited.EditedAt)
	stored, err = repo.GetMessage(ctx, message.ID)
	req.NoError(err)
	req.Equal("fixed", stored.Content)
	req.Equal(message.CreatedAt, stored.CreatedAt)
}

func TestMessageRepository_Delete_Is_Author_Only_And_Cascades(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	db := newTestDB(t)
	index := newTestIndex(t)
	repo := NewMessageRepository(db, index, nil, testLogger(), 0)
	reactions := NewReactionRepository(db, testLogger())

	message, err := repo.StoreMessage(ctx, domain.Message{RoomID: "r1", UserID: "alice", Content: "ephemeral words"})
	req.NoError(err)
	req.NoError(reactions.AddReaction(ctx, domain.Reaction{MessageID: message.ID, UserID: "bob", Emoji: "👍"}))

	req.ErrorIs(repo.DeleteMessage(ctx, message.ID, "bob"), errors.ErrNotAuthor)
	req.NoError(repo.DeleteMessage(ctx, message.ID, "alice"))

	_, err = repo.GetMessage(ctx, message.ID)
	req.ErrorIs(err, errors.ErrMessageNotFound)
	remaining, err := reactions.Reactions(ctx, message.ID)
	req.NoError(err)
	req.Empty(remaining)
	found, err := repo.Search(ctx, search.NewSearchQuery("ephemeral"))
	req.NoError(err)
	req.Empty(found)
}

func TestMessageRepository_Search_Newest_First_And_Room_Scoped(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repo, _ := newTestMessageRepository(t, 0)
	now := time.Now().UTC()

	// Given matching messages in two rooms and one that does not match
	for i := 0; i < 3; i++ {
		_, err := repo.StoreMessage(ctx, domain.Message{RoomID: "r1", UserID: "alice", Content: fmt.Sprintf("deploy number %d", i), CreatedAt: now.Add(time.Duration(i) * time.Second)})
		req.NoError(err)
	}
	_, err := repo.StoreMessage(ctx, domain.Message{RoomID: "r2", UserID: "bob", Content: "deploy elsewhere", CreatedAt: now.Add(time.Minute)})
	req.NoError(err)
	_, err = repo.StoreMessage(ctx, domain.Message{RoomID: "r1", UserID: "bob", Content: "lunch time", CreatedAt: now.Add(time.Hour)})
	req.NoError(err)

	// When searching across rooms
	all, err := repo.Search(ctx, search.NewSearchQuery("deploy"))
	req.NoError(err)

	// Then all four matches come back newest first
	req.Len(all, 4)
	req.Equal("deploy elsewhere", all[0].Content)
	req.Equal("deploy number 2", all[1].Content)
	req.Equal("deploy number 0", all[3].Content)

	// When scoping to r1 with a limit
	room := domain.RoomID("r1")
	scoped, err := repo.Search(ctx, search.Query{Terms: "deploy", RoomID: &room, Limit: 2})
	req.NoError(err)
	req.Len(scoped, 2)
	req.Equal("deploy number 2", scoped[0].Content)
	req.Equal("deploy number 1", scoped[1].Content)
}
