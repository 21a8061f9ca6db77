package gateway

import (
	"chat-core/domain"
	"chat-core/services"
	"context"
	"fmt"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

const outboundBuffer = 64

const (
	frameSubscribe    = "subscribe"
	frameUnsubscribe  = "unsubscribe"
	frameTyping       = "typing"
	frameSubscribed   = "subscribed"
	frameUnsubscribed = "unsubscribed"
	frameMessage      = "message"
	framePresence     = "presence"
	frameError        = "error"
)

type inboundFrame struct {
	Type   string `json:"type"`
	RoomID string `json:"room_id"`
}

type outboundFrame struct {
	Type    string `json:"type"`
	RoomID  string `json:"room_id,omitempty"`
	Payload any    `json:"payload,omitempty"`
}

// realtime upgrades the request and serves one client. The client drives its
// subscriptions with subscribe, unsubscribe and typing frames and receives
// message, presence, typing and error frames. At most the configured number
// of rooms are subscribed at once; the least recently active one is dropped
// silently when a new one is subscribed.
func (g *Gateway) realtime(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		g.log.Debug(fmt.Sprintf("WebSocket upgrade failed: %v", err))
		return
	}
	defer conn.CloseNow()

	service, err := services.NewChatService(g.log, g.deps, g.options)
	if err != nil {
		_ = conn.Close(websocket.StatusInternalError, "service unavailable")
		return
	}
	defer service.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	s := &session{ctx: ctx, service: service, out: make(chan outboundFrame, outboundBuffer), gateway: g}
	go s.write(conn, cancel)

	for {
		var frame inboundFrame
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			if status := websocket.CloseStatus(err); status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && ctx.Err() == nil {
				g.log.Debug(fmt.Sprintf("Realtime connection closed: %v", err))
			}
			return
		}
		s.handle(frame)
	}
}

type session struct {
	ctx     context.Context
	service *services.ChatService
	out     chan outboundFrame
	gateway *Gateway
}

func (s *session) handle(frame inboundFrame) {
	room := domain.RoomID(frame.RoomID)
	switch frame.Type {
	case frameSubscribe:
		_, err := s.service.JoinRoom(s.ctx, room, s.handlers(room))
		if err != nil {
			s.fail(room, err)
			return
		}
		s.push(outboundFrame{Type: frameSubscribed, RoomID: frame.RoomID})
	case frameUnsubscribe:
		s.service.LeaveRoom(s.ctx, room)
		s.push(outboundFrame{Type: frameUnsubscribed, RoomID: frame.RoomID})
	case frameTyping:
		if err := s.service.SendTyping(s.ctx, room); err != nil {
			s.fail(room, err)
		}
	default:
		s.push(outboundFrame{Type: frameError, RoomID: frame.RoomID, Payload: errorResponse{Error: fmt.Sprintf("unknown frame type %q", frame.Type)}})
	}
}

func (s *session) handlers(room domain.RoomID) services.Handlers {
	roomID := string(room)
	return services.Handlers{
		OnMessage: func(m domain.Message) {
			s.push(outboundFrame{Type: frameMessage, RoomID: roomID, Payload: toMessageResponse(m)})
		},
		OnPresence: func(entries []domain.PresenceEntry) {
			s.push(outboundFrame{Type: framePresence, RoomID: roomID, Payload: toPresenceResponses(entries)})
		},
		OnTyping: func(userID string) {
			s.push(outboundFrame{Type: frameTyping, RoomID: roomID, Payload: map[string]string{"user_id": userID}})
		},
		OnError: func(err error) {
			s.fail(room, err)
		},
	}
}

func (s *session) fail(room domain.RoomID, err error) {
	s.push(outboundFrame{Type: frameError, RoomID: string(room), Payload: errorResponse{Error: err.Error()}})
}

// push never blocks the delivery goroutine of a subscription: a client that
// does not read loses frames.
func (s *session) push(frame outboundFrame) {
	select {
	case <-s.ctx.Done():
	case s.out <- frame:
	default:
		s.gateway.log.Warn(fmt.Sprintf("Realtime client too slow, dropping %s frame", frame.Type))
	}
}

func (s *session) write(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	for {
		select {
		case <-s.ctx.Done():
			return
		case frame := <-s.out:
			if err := wsjson.Write(s.ctx, conn, frame); err != nil {
				return
			}
		}
	}
}
