package internal

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"
)

func TestDefaultMapper_Message_Key(t *testing.T) {
	req := require.New(t)
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	key := fmt.Sprintf("msg:team%%3Aops:%019d:8f0c2d1e-0000-0000-0000-000000000000", at.UnixNano())

	row := DefaultMapper(key, []byte(`{"content":"Hello"}`))

	req.Equal("MSG", row.Type)
	req.Equal("team:ops", row.Namespace)
	req.Equal("2026-01-02 03:04:05", row.Timestamp)
	req.Equal("8f0c2d1e", row.EntityID)
	req.Equal("Hello", row.Detail)
}

func TestDefaultMapper_Raw_Value(t *testing.T) {
	req := require.New(t)

	row := DefaultMapper("msgid:abc", []byte("msg:room:1:abc"))

	req.Equal("MSGID", row.Type)
	req.Equal("abc", row.EntityID)
	req.Equal("Size: 14 bytes", row.Detail)
}

func TestInspectHandler_Lists_Prefix(t *testing.T) {
	req := require.New(t)
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	req.NoError(err)
	defer db.Close()

	// Given two rooms and a profile
	req.NoError(db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte("room:general"), []byte(`{"name":"General"}`)); err != nil {
			return err
		}
		if err := txn.Set([]byte("room:random"), []byte(`{"name":"Random"}`)); err != nil {
			return err
		}
		return txn.Set([]byte("profile:alice"), []byte(`{"display_name":"Alice"}`))
	}))

	rows, err := Scan(db, "room:", 1, nil)
	req.NoError(err)
	req.Len(rows, 1)
	req.Equal("General", rows[0].Detail)

	// When the inspector is asked for rooms
	server := httptest.NewServer(NewInspectHandler(db, nil, func() map[string]any {
		return map[string]any{"Mode": "test"}
	}))
	defer server.Close()
	response, err := http.Get(server.URL + "/inspect?prefix=room:")
	req.NoError(err)
	defer response.Body.Close()
	body, err := io.ReadAll(response.Body)
	req.NoError(err)

	// Then only rooms are listed
	req.Equal(http.StatusOK, response.StatusCode)
	req.Contains(string(body), "General")
	req.Contains(string(body), "Random")
	req.NotContains(string(body), "Alice")
	req.Contains(string(body), "test")
}
