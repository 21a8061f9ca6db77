package cache

import (
	"chat-core/domain"
	"chat-core/observability"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestProfileCache_Evicts_Least_Recently_Used(t *testing.T) {
	req := require.New(t)
	profiles, err := NewProfileCache(ProfileCacheSize, nil)
	req.NoError(err)

	// Given 500 resolved users, the first one being touched again
	for i := 0; i < ProfileCacheSize; i++ {
		id := fmt.Sprintf("user-%d", i)
		profiles.Put(id, domain.Profile{ID: id})
	}
	_, ok := profiles.Get("user-0")
	req.True(ok)

	// When a 501st user is resolved
	evicted := profiles.Put("user-500", domain.Profile{ID: "user-500"})

	// Then the least recently used one (user-1) is gone and the rest remain
	req.True(evicted)
	req.Equal(ProfileCacheSize, profiles.Len())
	req.False(profiles.Contains("user-1"))
	req.True(profiles.Contains("user-0"))
	for i := 2; i <= ProfileCacheSize; i++ {
		req.True(profiles.Contains(fmt.Sprintf("user-%d", i)))
	}
}

func TestProfileCache_Without_Touch_Evicts_First_Inserted(t *testing.T) {
	req := require.New(t)
	profiles, err := NewProfileCache(0, nil)
	req.NoError(err)

	for i := 0; i <= ProfileCacheSize; i++ {
		id := fmt.Sprintf("user-%d", i)
		profiles.Put(id, domain.Profile{ID: id})
	}

	req.False(profiles.Contains("user-0"))
	req.Equal("user-1", profiles.Keys()[0])
	req.Equal("user-500", profiles.Keys()[ProfileCacheSize-1])
}

func TestMessageCache_Holds_Twenty_Rooms(t *testing.T) {
	req := require.New(t)
	pages, err := NewMessageCache(0, nil)
	req.NoError(err)

	for i := 0; i < MessageCacheSize+1; i++ {
		room := domain.RoomID(fmt.Sprintf("room-%d", i))
		pages.Put(room, domain.MessagePage{RoomID: room})
	}

	req.Equal(MessageCacheSize, pages.Len())
	_, ok := pages.Get("room-0")
	req.False(ok)
	page, ok := pages.Get("room-20")
	req.True(ok)
	req.Equal(domain.RoomID("room-20"), page.RoomID)
}

func TestLRU_Records_Hits_And_Misses(t *testing.T) {
	req := require.New(t)
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	profiles, err := NewProfileCache(2, metrics)
	req.NoError(err)

	profiles.Put("alice", domain.Profile{ID: "alice"})
	profiles.Get("alice")
	profiles.Get("bob")

	req.Equal(1.0, testutil.ToFloat64(metrics.CacheLookups.WithLabelValues("profile", "hit")))
	req.Equal(1.0, testutil.ToFloat64(metrics.CacheLookups.WithLabelValues("profile", "miss")))
}
