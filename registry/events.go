package registry

import (
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/sealedvote/sealedvote-node/types"
)

// EventType identifies the kind of registry event.
type EventType string

const (
	EventPollCreated      EventType = "poll-created"
	EventVoteCast         EventType = "vote-cast"
	EventPollFinalized    EventType = "poll-finalized"
	EventResultsPublished EventType = "results-published"
)

// Event is the notification emitted by the registry on every state
// transition. Only the fields relevant to the event type are set. The
// vote-cast event carries the voter address but never the choice.
type Event struct {
	Type      EventType       `json:"type"`
	PollID    types.PollID    `json:"pollId"`
	Name      string          `json:"name,omitempty"`
	Options   []string        `json:"options,omitempty"`
	StartTime time.Time       `json:"startTime,omitempty"`
	EndTime   time.Time       `json:"endTime,omitempty"`
	Voter     common.Address  `json:"voter,omitempty"`
	Results   []*types.BigInt `json:"results,omitempty"`
}

// eventBufferSize is the per-subscriber channel capacity. A subscriber that
// falls further behind than this drops events instead of blocking the
// registry.
const eventBufferSize = 16

type eventBus struct {
	mu          sync.Mutex
	subscribers []chan Event
}

// Subscribe returns a channel that receives all future registry events. The
// channel is never closed. Slow subscribers lose events once their buffer
// fills up.
func (b *eventBus) Subscribe() <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan Event, eventBufferSize)
	b.subscribers = append(b.subscribers, ch)
	return ch
}

// publish fans the event out to all subscribers without ever blocking.
func (b *eventBus) publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- ev:
		default:
		}
	}
}
