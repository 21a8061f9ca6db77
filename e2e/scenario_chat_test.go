package e2e

import (
	"context"
	"net/http"
	"testing"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
)

type room struct {
	ID string `json:"id"`
}

type message struct {
	ID      string `json:"id"`
	Content string `json:"content"`
}

type frame struct {
	Type    string         `json:"type"`
	RoomID  string         `json:"room_id"`
	Payload map[string]any `json:"payload"`
}

type testChatSuite struct {
	BaseHTTPSuite
}

func TestChatSuite(t *testing.T) {
	suite.Run(t, &testChatSuite{})
}

func (s *testChatSuite) TestPrivateRoomConversation() {
	owner := "e2e-" + uuid.NewString()[:8]
	guest := "e2e-" + uuid.NewString()[:8]
	var created room

	s.Run("Step 1: Create a private room", func() {
		s.Step("Owner creates the room")
		status := s.Call(owner, http.MethodPost, "/v1/rooms", map[string]any{"name": "e2e", "private": true}, &created)
		s.Require().Equal(http.StatusCreated, status)

		status = s.Call(guest, http.MethodPost, "/v1/rooms/"+created.ID+"/messages", map[string]any{"content": "let me in"}, nil)
		s.Require().Equal(http.StatusForbidden, status)
	})

	s.Run("Step 2: Invite and accept", func() {
		s.Step("Owner invites the guest")
		var invitation struct {
			ID string `json:"id"`
		}
		status := s.Call(owner, http.MethodPost, "/v1/rooms/"+created.ID+"/invitations", map[string]any{"user_id": guest}, &invitation)
		s.Require().Equal(http.StatusCreated, status)

		status = s.Call(guest, http.MethodPost, "/v1/invitations/"+invitation.ID, map[string]any{"accept": true}, nil)
		s.Require().Equal(http.StatusOK, status)
	})

	s.Run("Step 3: Live delivery", func() {
		s.WithRealtime("Guest subscribes to the room", guest, func(ctx context.Context, conn *websocket.Conn) {
			s.Require().NoError(wsjson.Write(ctx, conn, map[string]string{"type": "subscribe", "room_id": created.ID}))
			s.waitFor(ctx, conn, "subscribed")

			var posted message
			status := s.Call(owner, http.MethodPost, "/v1/rooms/"+created.ID+"/messages", map[string]any{"content": "welcome aboard"}, &posted)
			s.Require().Equal(http.StatusCreated, status)

			received := s.waitFor(ctx, conn, "message")
			s.Require().Equal(posted.ID, received.Payload["id"])
		})
	})
}

func (s *testChatSuite) waitFor(ctx context.Context, conn *websocket.Conn, frameType string) frame {
	for {
		var f frame
		s.Require().NoError(wsjson.Read(ctx, conn, &f))
		if f.Type == frameType {
			return f
		}
		s.Require().NotEqual("error", f.Type, "unexpected error frame: %v", f.Payload)
	}
}
