package repositories

import (
	"chat-hub/domain/search"
	"context"
	"log/slog"

	"github.com/blugelabs/bluge"
)

type ISearchRepository interface {
	IndexMessage(message DiskMessage) error
	Search(ctx context.Context, query *search.Query) ([]DiskMessage, error)
}

// SearchRepository maintains a full-text index of the message log next to
// the badger store. Indexing is best effort: a failed index write never
// blocks message delivery.
type SearchRepository struct {
	writer *bluge.Writer
	log    *slog.Logger
}

func NewSearchRepository(writer *bluge.Writer, log *slog.Logger) *SearchRepository {
	return &SearchRepository{writer: writer, log: log}
}

func (s *SearchRepository) IndexMessage(message DiskMessage) error {
	doc := bluge.NewDocument(message.ID.String()).
		AddField(bluge.NewTextField("content", message.Content).StoreValue()).
		AddField(bluge.NewKeywordField("room", message.Room).StoreValue()).
		AddField(bluge.NewKeywordField("author", message.Author).StoreValue()).
		AddField(bluge.NewDateTimeField("at", message.At).StoreValue())

	return s.writer.Update(doc.ID(), doc)
}

// Search runs a match query on message content, restricted to a room, and
// rebuilds stored records from the indexed fields.
func (s *SearchRepository) Search(ctx context.Context, query *search.Query) ([]DiskMessage, error) {
	q := bluge.NewBooleanQuery().
		AddMust(bluge.NewMatchQuery(query.Terms).SetField("content"))
	if query.Room != "" {
		q.AddMust(bluge.NewTermQuery(query.Room).SetField("room"))
	}

	reader, err := s.writer.Reader()
	if err != nil {
		return nil, err
	}
	defer func() { _ = reader.Close() }()

	req := bluge.NewTopNSearch(query.Limit, q)
	iter, err := reader.Search(ctx, req)
	if err != nil {
		return nil, err
	}

	var results []DiskMessage
	match, err := iter.Next()
	for err == nil && match != nil {
		var dm DiskMessage
		visitErr := match.VisitStoredFields(func(field string, value []byte) bool {
			switch field {
			case "content":
				dm.Content = string(value)
			case "room":
				dm.Room = string(value)
			case "author":
				dm.Author = string(value)
			case "at":
				if at, err := bluge.DecodeDateTime(value); err == nil {
					dm.At = at
				}
			}
			return true
		})
		if visitErr != nil {
			return nil, visitErr
		}
		results = append(results, dm)
		match, err = iter.Next()
	}
	if err != nil {
		return nil, err
	}
	return results, nil
}
