package events

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPublishReachesTypedAndWildcardHandlers(t *testing.T) {
	p := NewPublisher()

	var mu sync.Mutex
	var got []string

	p.Subscribe(EventGameFinished, func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, "typed:"+e.RoomID)
	})
	p.Subscribe(EventRoomCreated, func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, "other:"+e.RoomID)
	})
	p.SubscribeAll(func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, "all:"+string(e.Type))
	})

	p.Publish(Event{Type: EventGameFinished, RoomID: "r1"})
	p.Wait()

	assert.ElementsMatch(t, []string{"typed:r1", "all:GAME_FINISHED"}, got)
}

func TestPublishWithoutSubscribers(t *testing.T) {
	p := NewPublisher()
	p.Publish(Event{Type: EventRoomReclaimed})
	p.Wait()
}
