package search

import (
	"strconv"
	"strings"
)

const defaultLimit = 10

// Query represents the structured parameters of a history search.
// It decouples the raw chat input from the index engine requirements.
type Query struct {
	RawInput string // the original message from the user
	Terms    string // the actual text to search in the index
	Room     string // target room; empty means the sender's current room
	Limit    int    // number of results
}

// Parse extracts command-line style arguments from a chat message.
// Example: /find invoice late --room General --limit 5
func Parse(input string) *Query {
	query := &Query{
		RawInput: input,
		Limit:    defaultLimit,
	}

	parts := strings.Fields(input)
	var textTerms []string
	var roomWords []string
	inRoom := false

	for i := 0; i < len(parts); i++ {
		part := parts[i]

		if strings.HasPrefix(part, "--") {
			inRoom = false
			key := strings.TrimPrefix(part, "--")
			switch key {
			case "room":
				// Room names may contain spaces; collect words until the
				// next flag.
				inRoom = true
			case "limit":
				if i+1 < len(parts) {
					if n, err := strconv.Atoi(parts[i+1]); err == nil && n > 0 {
						query.Limit = n
					}
					i++
				}
			}
			continue
		}

		if inRoom {
			roomWords = append(roomWords, part)
			continue
		}

		// If it's not a flag, it's a search term
		if !strings.HasPrefix(part, "/") {
			textTerms = append(textTerms, part)
		}
	}

	query.Room = strings.Join(roomWords, " ")
	query.Terms = strings.Join(textTerms, " ")
	return query
}

// IsSearch reports whether a message body is a /find query rather than a
// chat message.
func IsSearch(body string) bool {
	return strings.HasPrefix(strings.TrimSpace(body), "/find")
}
