package search

import (
	"chat-core/domain"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewSearchQuery_Parses_Flags(t *testing.T) {
	req := require.New(t)

	query := NewSearchQuery(`/find "invoice" overdue --room r42 --lang EN --limit 10`)

	req.Equal("invoice overdue", query.Terms)
	req.NotNil(query.RoomID)
	req.Equal(domain.RoomID("r42"), *query.RoomID)
	req.Equal("en", query.Language)
	req.Equal(10, query.Limit)
}

func TestNewSearchQuery_Caps_Limit(t *testing.T) {
	req := require.New(t)

	req.Equal(MaxLimit, NewSearchQuery("hello --limit 500").Limit)
	req.Equal(MaxLimit, NewSearchQuery("hello --limit -3").Limit)
	req.Equal(DefaultLimit, NewSearchQuery("hello").Limit)
}

func TestQuery_WithRoom_Overrides_Flag(t *testing.T) {
	req := require.New(t)
	room := domain.RoomID("r1")

	query := NewSearchQuery("hello --room r2").WithRoom(&room)

	req.Equal(room, *query.RoomID)
	req.Nil(NewSearchQuery("hello").WithRoom(nil).RoomID)
	req.True(NewSearchQuery("--room r2").IsEmpty())
}
