package projection

import (
	"chat-hub/domain/event"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTimeline_Consume_RoomMessage(t *testing.T) {
	req := require.New(t)
	timeline := NewTimeline()
	ctx := context.Background()

	evt1 := event.RoomMessage{Room: "General", Author: "Alice", Content: "Hello Bob", At: time.Now()}
	evt2 := event.RoomMessage{Room: "General", Author: "Clara", Content: "Hi Bob", At: time.Now().Add(time.Second)}
	other := event.RoomMessage{Room: "Movies", Author: "Bob", Content: "elsewhere", At: time.Now()}

	req.NoError(timeline.Consume(ctx, evt1))
	req.NoError(timeline.Consume(ctx, evt2))
	req.NoError(timeline.Consume(ctx, other))

	recent := timeline.Recent("General")
	req.Len(recent, 2)
	req.Equal("Alice", recent[0].Author)
	req.Equal("Clara", recent[1].Author)
	req.Len(timeline.Recent("Movies"), 1)
}

func TestTimeline_Ignores_Other_Events(t *testing.T) {
	req := require.New(t)
	timeline := NewTimeline()

	req.NoError(timeline.Consume(context.Background(), event.Status{Room: "General", Msg: "x", Type: "join"}))
	req.Empty(timeline.Recent("General"))
}

func TestTimeline_Caps_Retained_Messages(t *testing.T) {
	req := require.New(t)
	timeline := NewTimeline()
	timeline.keep = 3

	for i := 0; i < 5; i++ {
		req.NoError(timeline.Consume(context.Background(), event.RoomMessage{
			Room: "General", Author: "Alice", Content: string(rune('a' + i)), At: time.Now()}))
	}

	recent := timeline.Recent("General")
	req.Len(recent, 3)
	req.Equal("c", recent[0].Content)
	req.Equal("e", recent[2].Content)
}
