package runtime

import (
	"chat-core/domain"
	"chat-core/domain/event"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Registry tracks which channels are joined to which room and the presence
// payload each channel published.
type Registry struct {
	mu       sync.RWMutex
	channels map[domain.RoomID]map[uuid.UUID]*Channel               // room -> joined channels
	presence map[domain.RoomID]map[uuid.UUID]event.PresencePayload // room -> tracked payloads
}

func NewRegistry() *Registry {
	return &Registry{
		channels: make(map[domain.RoomID]map[uuid.UUID]*Channel),
		presence: make(map[domain.RoomID]map[uuid.UUID]event.PresencePayload),
	}
}

// ChannelsForRoom retrieves all joined channels of a room.
// Returns nil if the room has no channel.
func (r *Registry) ChannelsForRoom(roomID domain.RoomID) []*Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members, ok := r.channels[roomID]
	if !ok {
		return nil
	}
	channels := make([]*Channel, 0, len(members))
	for _, ch := range members {
		channels = append(channels, ch)
	}
	return channels
}

// Join registers a channel in its room. The room entry is created on the fly.
func (r *Registry) Join(ch *Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.channels[ch.Room]; !ok {
		r.channels[ch.Room] = make(map[uuid.UUID]*Channel)
	}
	r.channels[ch.Room][ch.ID] = ch
}

// Leave removes a channel and its presence. It reports whether a presence
// payload was dropped, in which case the room needs a new sync.
// Empty rooms are removed to prevent memory leaks over time.
func (r *Registry) Leave(ch *Channel) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if members, ok := r.channels[ch.Room]; ok {
		delete(members, ch.ID)
		if len(members) == 0 {
			delete(r.channels, ch.Room)
		}
	}

	tracked, ok := r.presence[ch.Room]
	if !ok {
		return false
	}
	_, had := tracked[ch.ID]
	delete(tracked, ch.ID)
	if len(tracked) == 0 {
		delete(r.presence, ch.Room)
	}
	return had
}

// Track sets the presence payload of a joined channel.
func (r *Registry) Track(ch *Channel, payload event.PresencePayload) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, joined := r.channels[ch.Room][ch.ID]; !joined {
		return false
	}
	if _, ok := r.presence[ch.Room]; !ok {
		r.presence[ch.Room] = make(map[uuid.UUID]event.PresencePayload)
	}
	r.presence[ch.Room][ch.ID] = payload
	return true
}

// PresenceState returns the full participant set of a room, one payload per
// user (the earliest online_at wins when a user has several channels),
// ordered by online_at then user id.
func (r *Registry) PresenceState(roomID domain.RoomID) []event.PresencePayload {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byUser := make(map[string]event.PresencePayload)
	for _, payload := range r.presence[roomID] {
		current, ok := byUser[payload.UserID]
		if !ok || payload.OnlineAt.Before(current.OnlineAt) {
			byUser[payload.UserID] = payload
		}
	}

	state := make([]event.PresencePayload, 0, len(byUser))
	for _, payload := range byUser {
		state = append(state, payload)
	}
	sort.Slice(state, func(i, j int) bool {
		if !state[i].OnlineAt.Equal(state[j].OnlineAt) {
			return state[i].OnlineAt.Before(state[j].OnlineAt)
		}
		return state[i].UserID < state[j].UserID
	})
	return state
}

// Stats returns the number of joined channels and of rooms with at least one.
func (r *Registry) Stats() (channels, rooms int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, members := range r.channels {
		channels += len(members)
	}
	return channels, len(r.channels)
}
