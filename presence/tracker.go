// Package presence keeps the live participant set of each subscribed room.
//
// A room's state is rebuilt in full on every sync rather than patched, so a
// missed join or leave heals on the next sync. Typing flags arrive through a
// separate broadcast and live beside the synced set, not inside it. They are
// never cleared automatically: callers that show typing indicators must
// expire them with their own timeout (ClearTyping).
package presence

import (
	"chat-core/domain"
	"sort"
	"sync"
)

type Tracker struct {
	mu    sync.RWMutex
	rooms map[domain.RoomID]*roomState
}

// roomState keeps the synced participant set apart from the typing flags so
// that a sync installs exactly the set it carries.
type roomState struct {
	entries map[string]domain.PresenceEntry
	typing  map[string]struct{}
}

func NewTracker() *Tracker {
	return &Tracker{rooms: make(map[domain.RoomID]*roomState)}
}

// Sync replaces the participant set of a room with entries. Typing flags
// survive for users still present and are dropped for the others.
func (t *Tracker) Sync(room domain.RoomID, entries []domain.PresenceEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()

	next := &roomState{
		entries: make(map[string]domain.PresenceEntry, len(entries)),
		typing:  make(map[string]struct{}),
	}
	for _, entry := range entries {
		if entry.UserID == "" {
			continue
		}
		entry.Profile = domain.NormalizeProfile(entry.Profile)
		entry.Profile.ID = entry.UserID
		next.entries[entry.UserID] = entry
	}
	if previous, ok := t.rooms[room]; ok {
		for userID := range previous.typing {
			if _, present := next.entries[userID]; present {
				next.typing[userID] = struct{}{}
			}
		}
	}
	t.rooms[room] = next
}

// Entries returns the participant set of the last sync, ordered by online
// time then id.
func (t *Tracker) Entries(room domain.RoomID) []domain.PresenceEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.sorted(room, false)
}

// Snapshot is Entries with the current typing flags applied.
func (t *Tracker) Snapshot(room domain.RoomID) []domain.PresenceEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.sorted(room, true)
}

func (t *Tracker) sorted(room domain.RoomID, withTyping bool) []domain.PresenceEntry {
	state, ok := t.rooms[room]
	if !ok {
		return []domain.PresenceEntry{}
	}
	entries := make([]domain.PresenceEntry, 0, len(state.entries))
	for userID, entry := range state.entries {
		if withTyping {
			_, entry.Typing = state.typing[userID]
		}
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].OnlineAt.Equal(entries[j].OnlineAt) {
			return entries[i].OnlineAt.Before(entries[j].OnlineAt)
		}
		return entries[i].UserID < entries[j].UserID
	})
	return entries
}

func (t *Tracker) Lookup(room domain.RoomID, userID string) (domain.PresenceEntry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	state, ok := t.rooms[room]
	if !ok {
		return domain.PresenceEntry{}, false
	}
	entry, ok := state.entries[userID]
	return entry, ok
}

// SetTyping flags a present user as typing. Unknown users are ignored
// because a typing signal may outlive the presence it belongs to.
func (t *Tracker) SetTyping(room domain.RoomID, userID string, typing bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.rooms[room]
	if !ok {
		return false
	}
	if _, present := state.entries[userID]; !present {
		return false
	}
	if typing {
		state.typing[userID] = struct{}{}
	} else {
		delete(state.typing, userID)
	}
	return true
}

func (t *Tracker) ClearTyping(room domain.RoomID, userID string) {
	t.SetTyping(room, userID, false)
}

// Typing returns the users currently flagged as typing in a room.
func (t *Tracker) Typing(room domain.RoomID) []string {
	var users []string
	for _, entry := range t.Snapshot(room) {
		if entry.Typing {
			users = append(users, entry.UserID)
		}
	}
	return users
}

// Clear forgets a room, typically once its subscription is torn down.
func (t *Tracker) Clear(room domain.RoomID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.rooms, room)
}

func (t *Tracker) Rooms() []domain.RoomID {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rooms := make([]domain.RoomID, 0, len(t.rooms))
	for room := range t.rooms {
		rooms = append(rooms, room)
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i] < rooms[j] })
	return rooms
}
