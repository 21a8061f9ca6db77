package domain

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestSortMessages_By_CreatedAt_Then_ID(t *testing.T) {
	req := require.New(t)
	at := time.Now().UTC()
	first := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	second := uuid.MustParse("00000000-0000-0000-0000-000000000002")

	// Given two messages sharing a timestamp and an older one
	messages := []Message{
		{ID: second, CreatedAt: at},
		{ID: first, CreatedAt: at},
		{ID: uuid.New(), CreatedAt: at.Add(-time.Second)},
	}

	// When sorting
	SortMessages(messages)

	// Then the oldest comes first and ties are broken by identifier
	req.True(messages[0].CreatedAt.Before(at))
	req.Equal(first, messages[1].ID)
	req.Equal(second, messages[2].ID)
}

func TestReplyPreview_Truncates_Long_Content(t *testing.T) {
	req := require.New(t)
	short := "see you tomorrow"
	long := strings.Repeat("é", ReplyPreviewLength+20)

	req.Equal(short, ReplyPreview(short))
	preview := []rune(ReplyPreview(long))
	req.Len(preview, ReplyPreviewLength+1)
	req.Equal('…', preview[len(preview)-1])
}

func TestMessagePage_Merge_Keeps_Order_And_Limit(t *testing.T) {
	req := require.New(t)
	at := time.Now().UTC()
	page := MessagePage{RoomID: "r1"}
	for i := 0; i < 3; i++ {
		page = page.Merge(Message{ID: uuid.New(), Content: "m", CreatedAt: at.Add(time.Duration(i) * time.Minute)}, 3)
	}

	// When a late message arrives out of order
	late := Message{ID: uuid.New(), Content: "late", CreatedAt: at.Add(90 * time.Second)}
	page = page.Merge(late, 3)

	// Then the oldest message is dropped and the late one sits at its place
	req.Len(page.Messages, 3)
	req.Equal(late.ID, page.Messages[1].ID)
	req.Equal(at.Add(2*time.Minute), page.Messages[2].CreatedAt)
}

func TestMessagePage_Merge_Replaces_Same_ID(t *testing.T) {
	req := require.New(t)
	msg := Message{ID: uuid.New(), Content: "before", CreatedAt: time.Now()}
	page := MessagePage{}.Merge(msg, 10)

	msg.Content = "after"
	page = page.Merge(msg, 10)

	req.Len(page.Messages, 1)
	req.Equal("after", page.Messages[0].Content)
}

func TestNormalizeProfile_Defaults_Missing_Fields(t *testing.T) {
	req := require.New(t)

	profile := NormalizeProfile(Profile{ID: "user-1"})

	req.Equal(PlaceholderDisplayName, profile.DisplayName)
	req.Equal(DefaultAvatarURL("user-1"), profile.AvatarURL)
	req.Equal(profile, NormalizeProfile(profile))
	req.NotEqual(DefaultAvatarURL("user-1"), DefaultAvatarURL("user-2"))
}
