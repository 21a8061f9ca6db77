package search

import (
	"chat-core/domain"
	"strconv"
	"strings"
)

const (
	DefaultLimit = 50
	MaxLimit     = 50
)

// Query represents the structured parameters of a message search.
// It decouples the raw chat input from the index requirements.
type Query struct {
	RawInput string         // The original input from the user
	Terms    string         // The actual text to search in Bluge
	RoomID   *domain.RoomID // Optional room scope
	Language string         // Optional ISO 639-1 filter
	Limit    int            // Never above MaxLimit
}

// NewSearchQuery parses a raw string to extract command-line style arguments.
// Example: /find "invoice" --room 8c6f... --lang en --limit 20
func NewSearchQuery(input string) Query {
	query := Query{
		RawInput: input,
		Limit:    DefaultLimit,
	}

	parts := strings.Fields(input)
	var textTerms []string

	for i := 0; i < len(parts); i++ {
		part := parts[i]

		if strings.HasPrefix(part, "--") && i+1 < len(parts) {
			key := strings.TrimPrefix(part, "--")
			val := parts[i+1]

			switch key {
			case "room":
				room := domain.RoomID(val)
				query.RoomID = &room
			case "lang":
				query.Language = strings.ToLower(val)
			case "limit":
				if limit, err := strconv.Atoi(val); err == nil {
					query.Limit = limit
				}
			}
			i++ // Skip the value part in next iteration
			continue
		}

		if !strings.HasPrefix(part, "/") {
			textTerms = append(textTerms, strings.Trim(part, `"`))
		}
	}

	query.Terms = strings.TrimSpace(strings.Join(textTerms, " "))
	return query.Normalize()
}

// WithRoom scopes the query, overriding any --room flag.
func (q Query) WithRoom(room *domain.RoomID) Query {
	if room != nil {
		q.RoomID = room
	}
	return q
}

// Normalize bounds the limit to [1, MaxLimit].
func (q Query) Normalize() Query {
	if q.Limit <= 0 || q.Limit > MaxLimit {
		q.Limit = MaxLimit
	}
	return q
}

func (q Query) IsEmpty() bool {
	return q.Terms == ""
}
