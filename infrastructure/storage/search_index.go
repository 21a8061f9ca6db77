package storage

import (
	"chat-core/domain"
	"chat-core/domain/search"
	"context"
	"fmt"
	"log/slog"

	"github.com/blugelabs/bluge"
	"github.com/google/uuid"
)

const (
	fieldID        = "_id"
	fieldContent   = "content"
	fieldRoom      = "room_id"
	fieldLanguage  = "lang"
	fieldCreatedAt = "created_at"
)

// SearchIndex keeps message bodies searchable. Badger stays the source of
// truth: the index only maps terms to message identifiers.
type SearchIndex struct {
	writer *bluge.Writer
	log    *slog.Logger
}

func NewSearchIndex(writer *bluge.Writer, log *slog.Logger) *SearchIndex {
	return &SearchIndex{writer: writer, log: log}
}

// OpenSearchIndex opens a disk index at path, or an in-memory one when path
// is empty.
func OpenSearchIndex(path string, log *slog.Logger) (*SearchIndex, error) {
	config := bluge.InMemoryOnlyConfig()
	if path != "" {
		config = bluge.DefaultConfig(path)
	}
	writer, err := bluge.OpenWriter(config)
	if err != nil {
		return nil, fmt.Errorf("failed to open bluge writer: %w", err)
	}
	return NewSearchIndex(writer, log), nil
}

// Index adds or replaces the document of a message.
func (s *SearchIndex) Index(message domain.Message) error {
	doc := bluge.NewDocument(message.ID.String()).
		AddField(bluge.NewTextField(fieldContent, message.Content)).
		AddField(bluge.NewKeywordField(fieldRoom, string(message.RoomID))).
		AddField(bluge.NewDateTimeField(fieldCreatedAt, message.CreatedAt).Sortable())
	if message.Language != "" {
		doc.AddField(bluge.NewKeywordField(fieldLanguage, message.Language))
	}
	return s.writer.Update(doc.ID(), doc)
}

func (s *SearchIndex) Delete(id uuid.UUID) error {
	return s.writer.Delete(bluge.Identifier(id.String()))
}

// Search returns the identifiers of matching messages, newest first.
func (s *SearchIndex) Search(ctx context.Context, query search.Query) ([]uuid.UUID, error) {
	query = query.Normalize()
	if query.IsEmpty() {
		return nil, nil
	}

	boolean := bluge.NewBooleanQuery().
		AddMust(bluge.NewMatchQuery(query.Terms).
			SetField(fieldContent).
			SetOperator(bluge.MatchQueryOperatorAnd))
	if query.RoomID != nil {
		boolean.AddMust(bluge.NewTermQuery(string(*query.RoomID)).SetField(fieldRoom))
	}
	if query.Language != "" {
		boolean.AddMust(bluge.NewTermQuery(query.Language).SetField(fieldLanguage))
	}
	request := bluge.NewTopNSearch(query.Limit, boolean).
		SortBy([]string{"-" + fieldCreatedAt})

	reader, err := s.writer.Reader()
	if err != nil {
		return nil, fmt.Errorf("open index reader: %w", err)
	}
	defer func() { _ = reader.Close() }()

	matches, err := reader.Search(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query.Terms, err)
	}

	var ids []uuid.UUID
	match, err := matches.Next()
	for err == nil && match != nil {
		err = match.VisitStoredFields(func(field string, value []byte) bool {
			if field != fieldID {
				return true
			}
			if id, parseErr := uuid.Parse(string(value)); parseErr == nil {
				ids = append(ids, id)
			}
			return false
		})
		if err != nil {
			break
		}
		match, err = matches.Next()
	}
	if err != nil {
		return nil, fmt.Errorf("iterate search results: %w", err)
	}
	s.log.Debug(fmt.Sprintf("Search %q matched %d messages", query.Terms, len(ids)))
	return ids, nil
}

func (s *SearchIndex) Close() error {
	return s.writer.Close()
}
