// Package gateway exposes the chat services over HTTP and WebSocket.
package gateway

import (
	"chat-core/auth"
	"chat-core/domain"
	"chat-core/errors"
	"chat-core/observability"
	"chat-core/services"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Gateway routes REST calls to one shared chat service and gives every
// realtime connection its own service, so that subscription slots and
// presence state belong to one client.
type Gateway struct {
	log      *slog.Logger
	deps     services.Dependencies
	options  services.Options
	issuer   *auth.TokenIssuer
	limiter  *RateLimiter
	gatherer prometheus.Gatherer
	health   func() observability.MonitoringStats
	rest     *services.ChatService
}

type Config struct {
	Issuer   *auth.TokenIssuer
	Limiter  *RateLimiter
	Gatherer prometheus.Gatherer
	Health   func() observability.MonitoringStats
}

func New(log *slog.Logger, deps services.Dependencies, options services.Options, config Config) (*Gateway, error) {
	rest, err := services.NewChatService(log, deps, options)
	if err != nil {
		return nil, err
	}
	return &Gateway{
		log:      log,
		deps:     deps,
		options:  options,
		issuer:   config.Issuer,
		limiter:  config.Limiter,
		gatherer: config.Gatherer,
		health:   config.Health,
		rest:     rest,
	}, nil
}

func (g *Gateway) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", g.healthz).Methods(http.MethodGet)
	if g.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(g.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.Use(auth.Middleware(g.issuer, g.log))
	if g.limiter != nil {
		v1.Use(g.limiter.Middleware)
	}

	v1.HandleFunc("/realtime", g.realtime).Methods(http.MethodGet)

	v1.HandleFunc("/rooms", g.listRooms).Methods(http.MethodGet)
	v1.HandleFunc("/rooms", g.createRoom).Methods(http.MethodPost)
	v1.HandleFunc("/rooms/{room}/messages", g.fetchMessages).Methods(http.MethodGet)
	v1.HandleFunc("/rooms/{room}/messages", g.postMessage).Methods(http.MethodPost)
	v1.HandleFunc("/rooms/{room}/members", g.members).Methods(http.MethodGet)
	v1.HandleFunc("/rooms/{room}/invitations", g.invite).Methods(http.MethodPost)

	v1.HandleFunc("/messages/{id}", g.editMessage).Methods(http.MethodPatch)
	v1.HandleFunc("/messages/{id}", g.deleteMessage).Methods(http.MethodDelete)
	v1.HandleFunc("/messages/{id}/reactions", g.reactions).Methods(http.MethodGet)
	v1.HandleFunc("/messages/{id}/reactions", g.addReaction).Methods(http.MethodPost)
	v1.HandleFunc("/messages/{id}/reactions/{emoji}", g.removeReaction).Methods(http.MethodDelete)

	v1.HandleFunc("/search", g.search).Methods(http.MethodGet)

	v1.HandleFunc("/invitations", g.pendingInvitations).Methods(http.MethodGet)
	v1.HandleFunc("/invitations/{id}", g.respondInvitation).Methods(http.MethodPost)

	v1.HandleFunc("/notifications", g.listNotifications).Methods(http.MethodGet)
	v1.HandleFunc("/notifications/read", g.markAllRead).Methods(http.MethodPost)
	v1.HandleFunc("/notifications/{id}/read", g.markRead).Methods(http.MethodPost)

	v1.HandleFunc("/profile", g.updateProfile).Methods(http.MethodPut)
	return r
}

// Close releases the shared REST service.
func (g *Gateway) Close() {
	g.rest.Close()
}

func (g *Gateway) healthz(w http.ResponseWriter, r *http.Request) {
	if g.health == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	writeJSON(w, http.StatusOK, g.health())
}

func (g *Gateway) listRooms(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("joined") == "true" {
		writeJSON(w, http.StatusOK, toRoomResponses(g.rest.ListJoinedRooms(r.Context())))
		return
	}
	writeJSON(w, http.StatusOK, toRoomResponses(g.rest.ListRooms(r.Context())))
}

type createRoomRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Private     bool   `json:"private"`
}

func (g *Gateway) createRoom(w http.ResponseWriter, r *http.Request) {
	var req createRoomRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	room, err := g.rest.CreateRoom(r.Context(), req.Name, req.Description, req.Private)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRoomResponse(room))
}

func (g *Gateway) fetchMessages(w http.ResponseWriter, r *http.Request) {
	var cursor *string
	if value := r.URL.Query().Get("cursor"); value != "" {
		cursor = &value
	}
	page := g.rest.FetchMessages(r.Context(), roomVar(r), cursor)
	writeJSON(w, http.StatusOK, toPageResponse(page))
}

type postMessageRequest struct {
	Content    string         `json:"content"`
	Kind       string         `json:"kind"`
	ActionData map[string]any `json:"action_data"`
	ReplyTo    string         `json:"reply_to"`
	ImageURL   string         `json:"image_url"`
}

func (g *Gateway) postMessage(w http.ResponseWriter, r *http.Request) {
	var req postMessageRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	message, err := g.post(r.Context(), roomVar(r), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toMessageResponse(message))
}

func (g *Gateway) post(ctx context.Context, room domain.RoomID, req postMessageRequest) (domain.Message, error) {
	switch domain.MessageKind(req.Kind) {
	case domain.KindReply:
		target, err := uuid.Parse(req.ReplyTo)
		if err != nil {
			return domain.Message{}, fmt.Errorf("%w: reply_to", errors.ErrInvalidContent)
		}
		return g.rest.SendReply(ctx, room, target, req.Content)
	case domain.KindVisualShare:
		return g.rest.SendVisualShare(ctx, room, req.Content, req.ImageURL)
	case domain.KindAction:
		return g.rest.SendAction(ctx, room, req.Content, req.ActionData)
	case domain.KindSystem:
		return domain.Message{}, fmt.Errorf("%w: system messages are not posted by clients", errors.ErrInvalidContent)
	default:
		return g.rest.SendMessage(ctx, room, req.Content)
	}
}

func (g *Gateway) members(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, g.rest.Members(r.Context(), roomVar(r)))
}

type inviteRequest struct {
	UserID string `json:"user_id"`
}

func (g *Gateway) invite(w http.ResponseWriter, r *http.Request) {
	var req inviteRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	invitation, err := g.rest.Invite(r.Context(), roomVar(r), req.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toInvitationResponse(invitation))
}

type editMessageRequest struct {
	Content string `json:"content"`
}

func (g *Gateway) editMessage(w http.ResponseWriter, r *http.Request) {
	id, err := uuidVar(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	var req editMessageRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	message, err := g.rest.EditMessage(r.Context(), id, req.Content)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMessageResponse(message))
}

func (g *Gateway) deleteMessage(w http.ResponseWriter, r *http.Request) {
	id, err := uuidVar(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	if err := g.rest.DeleteMessage(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (g *Gateway) reactions(w http.ResponseWriter, r *http.Request) {
	id, err := uuidVar(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toReactionResponses(g.rest.Reactions(r.Context(), id)))
}

type reactionRequest struct {
	Emoji string `json:"emoji"`
}

func (g *Gateway) addReaction(w http.ResponseWriter, r *http.Request) {
	id, err := uuidVar(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	var req reactionRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := g.rest.AddReaction(r.Context(), id, req.Emoji); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (g *Gateway) removeReaction(w http.ResponseWriter, r *http.Request) {
	id, err := uuidVar(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	if err := g.rest.RemoveReaction(r.Context(), id, mux.Vars(r)["emoji"]); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (g *Gateway) search(w http.ResponseWriter, r *http.Request) {
	var room *domain.RoomID
	if value := r.URL.Query().Get("room"); value != "" {
		scoped := domain.RoomID(value)
		room = &scoped
	}
	results := g.rest.SearchMessages(r.Context(), r.URL.Query().Get("q"), room)
	writeJSON(w, http.StatusOK, toMessageResponses(results))
}

func (g *Gateway) pendingInvitations(w http.ResponseWriter, r *http.Request) {
	invitations := g.rest.PendingInvitations(r.Context())
	response := make([]invitationResponse, 0, len(invitations))
	for _, invitation := range invitations {
		response = append(response, toInvitationResponse(invitation))
	}
	writeJSON(w, http.StatusOK, response)
}

type respondInvitationRequest struct {
	Accept bool `json:"accept"`
}

func (g *Gateway) respondInvitation(w http.ResponseWriter, r *http.Request) {
	var req respondInvitationRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	invitation, err := g.rest.RespondInvitation(r.Context(), mux.Vars(r)["id"], req.Accept)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toInvitationResponse(invitation))
}

func (g *Gateway) listNotifications(w http.ResponseWriter, r *http.Request) {
	unreadOnly, _ := strconv.ParseBool(r.URL.Query().Get("unread"))
	writeJSON(w, http.StatusOK, toNotificationResponses(g.rest.ListNotifications(r.Context(), unreadOnly)))
}

func (g *Gateway) markRead(w http.ResponseWriter, r *http.Request) {
	id, err := uuidVar(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	if err := g.rest.MarkRead(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (g *Gateway) markAllRead(w http.ResponseWriter, r *http.Request) {
	updated, err := g.rest.MarkAllRead(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"updated": updated})
}

type profileRequest struct {
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url"`
	Bio         string `json:"bio"`
	Status      string `json:"status"`
}

func (g *Gateway) updateProfile(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	profile, err := g.rest.UpdateProfile(r.Context(), domain.Profile{
		DisplayName: req.DisplayName,
		AvatarURL:   req.AvatarURL,
		Bio:         req.Bio,
		Status:      req.Status,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProfileResponse(profile))
}

func roomVar(r *http.Request) domain.RoomID {
	return domain.RoomID(mux.Vars(r)["room"])
}

func uuidVar(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(mux.Vars(r)[name])
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %s", errors.ErrInvalidContent, name)
	}
	return id, nil
}
