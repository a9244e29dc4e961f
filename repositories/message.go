package repositories

import (
	"chat-hub/domain"
	apperrors "chat-hub/errors"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/abadojack/whatlanggo"
	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

type IMessageRepository interface {
	StoreMessage(message DiskMessage) error
	GetMessages(room string) ([]DiskMessage, error)
}

// MessageRepository is the append-only message log. Messages are never
// mutated or deleted once stored.
type MessageRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewMessageRepository(db *badger.DB, log *slog.Logger) MessageRepository {
	return MessageRepository{db: db, log: log}
}

type DiskMessage struct {
	ID      uuid.UUID `json:"id"`
	Room    string    `json:"room"`
	Author  string    `json:"author"`
	Content string    `json:"content"`
	Lang    string    `json:"lang,omitempty"`
	At      time.Time `json:"at"`
}

// NewDiskMessage builds a stored record from a domain message, tagging the
// detected language at append time.
func NewDiskMessage(msg domain.Message) DiskMessage {
	lang := msg.Lang
	if lang == "" {
		info := whatlanggo.Detect(msg.Content)
		lang = info.Lang.Iso6391()
	}
	return DiskMessage{
		ID:      msg.ID,
		Room:    msg.Room,
		Author:  msg.Author,
		Content: msg.Content,
		Lang:    lang,
		At:      msg.At,
	}
}

// messageKey formats "msg:{room}:{timestamp_padded}:{uuid}" to:
//  1. Ensure chronological sorting using 19-digit zero padding
//     (lexicographical order).
//  2. Prevent data loss by using UUID as a collision disconnector if two
//     messages arrive at the same nanosecond.
func messageKey(message DiskMessage) []byte {
	return []byte(fmt.Sprintf("msg:%s:%019d:%s",
		message.Room,
		message.At.UnixNano(),
		message.ID,
	))
}

// StoreMessage persists a message in BadgerDB. A storage fault is wrapped
// in ErrStorageUnavailable; the caller logs it and drops the message, the
// connection stays alive.
func (m MessageRepository) StoreMessage(message DiskMessage) error {
	bytes, err := json.Marshal(message)
	if err != nil {
		return err
	}
	err = m.db.Update(func(txn *badger.Txn) error {
		return txn.Set(messageKey(message), bytes)
	})
	if err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrStorageUnavailable, err)
	}
	return nil
}

// GetMessages retrieves every message of a room using a prefix scan.
// Thanks to the padded timestamp in the key, messages come back naturally
// sorted by time, ascending. Unbounded; acceptable for this scope.
func (m MessageRepository) GetMessages(room string) ([]DiskMessage, error) {
	var raw [][]byte
	err := m.db.View(func(txn *badger.Txn) error {
		prefix := []byte(fmt.Sprintf("msg:%s:", room))
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(value []byte) error {
				raw = append(raw, append([]byte(nil), value...))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrStorageUnavailable, err)
	}

	messages := make([]DiskMessage, 0, len(raw))
	for _, b := range raw {
		var dm DiskMessage
		if err = json.Unmarshal(b, &dm); err != nil {
			return nil, err
		}
		messages = append(messages, dm)
	}
	return messages, nil
}

// ToDomain converts stored records back to domain messages.
func ToDomain(messages []DiskMessage) []domain.Message {
	return lo.Map(messages, func(item DiskMessage, _ int) domain.Message {
		return domain.Message{
			ID:      item.ID,
			Room:    item.Room,
			Author:  item.Author,
			Content: item.Content,
			Lang:    item.Lang,
			At:      item.At,
		}
	})
}
