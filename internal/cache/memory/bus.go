// Package memory provides in-process stand-ins for the Redis bus and rate
// limiter, used when the engine runs standalone.
package memory

import (
	"context"
	"fmt"
	"path"
	"strconv"
	"sync"

	"github.com/alanyoungcy/easybet/internal/domain"
)

var _ domain.SignalBus = (*Bus)(nil)

const subscriberBuffer = 128

type subscriber struct {
	pattern string
	ch      chan []byte
}

// Bus is an in-process domain.SignalBus. Publish never blocks: a subscriber
// whose buffer is full misses the message, as a slow Redis Pub/Sub client
// would.
type Bus struct {
	mu      sync.RWMutex
	subs    map[*subscriber]struct{}
	streams map[string][]domain.StreamMessage
	maxLen  int
	nextID  uint64
}

// NewBus creates a Bus whose streams keep at most maxLen messages.
func NewBus(maxLen int) *Bus {
	if maxLen <= 0 {
		maxLen = 10000
	}
	return &Bus{
		subs:    make(map[*subscriber]struct{}),
		streams: make(map[string][]domain.StreamMessage),
		maxLen:  maxLen,
	}
}

func (b *Bus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for s := range b.subs {
		if ok, _ := path.Match(s.pattern, channel); !ok {
			continue
		}
		select {
		case s.ch <- payload:
		default:
		}
	}
	return nil
}

// Subscribe accepts exact names and glob patterns. The channel closes when
// ctx is cancelled.
func (b *Bus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	if _, err := path.Match(channel, ""); err != nil {
		return nil, fmt.Errorf("memory: subscribe %s: %w", channel, err)
	}
	s := &subscriber{pattern: channel, ch: make(chan []byte, subscriberBuffer)}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, s)
		close(s.ch)
		b.mu.Unlock()
	}()
	return s.ch, nil
}

func (b *Bus) StreamAppend(_ context.Context, stream string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	msgs := append(b.streams[stream], domain.StreamMessage{
		ID:      strconv.FormatUint(b.nextID, 10) + "-0",
		Payload: payload,
	})
	if over := len(msgs) - b.maxLen; over > 0 {
		msgs = append(msgs[:0:0], msgs[over:]...)
	}
	b.streams[stream] = msgs
	return nil
}

// StreamRead returns up to count messages with an id after lastID. "0" and
// "0-0" read from the start.
func (b *Bus) StreamRead(_ context.Context, stream string, lastID string, count int) ([]domain.StreamMessage, error) {
	after, err := streamSeq(lastID)
	if err != nil {
		return nil, fmt.Errorf("memory: stream read %s: %w", stream, err)
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []domain.StreamMessage
	for _, m := range b.streams[stream] {
		seq, _ := streamSeq(m.ID)
		if seq <= after {
			continue
		}
		out = append(out, m)
		if count > 0 && len(out) == count {
			break
		}
	}
	return out, nil
}

func streamSeq(id string) (uint64, error) {
	if i := len(id) - 2; i > 0 && id[i:] == "-0" {
		id = id[:i]
	}
	if id == "" || id == "0-0" {
		return 0, nil
	}
	return strconv.ParseUint(id, 10, 64)
}
