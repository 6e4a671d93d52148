package memory

import (
	"context"
	"sync"
	"time"

	"github.com/rs/xid"

	"pixrecon/internal/app/apperr"
	"pixrecon/internal/app/queue"
)

// queue.Queue interface implementation
var _ queue.Queue = (*Queue)(nil)

type entry struct {
	id        string
	body      []byte
	receipt   string
	attempts  int
	invisible time.Time
}

// Queue is an in-process queue with SQS-like visibility timeout semantics.
type Queue struct {
	mu         sync.Mutex
	entries    []*entry
	visibility time.Duration
	notify     chan struct{}
	now        func() time.Time
}

type Option func(*Queue)

func WithClock(now func() time.Time) Option {
	return func(q *Queue) {
		q.now = now
	}
}

func New(visibility time.Duration, opts ...Option) *Queue {
	if visibility <= 0 {
		visibility = 30 * time.Second
	}

	q := &Queue{
		visibility: visibility,
		notify:     make(chan struct{}),
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(q)
	}

	return q
}

func (q *Queue) LoggerComponent() string {
	return "MemoryQueue"
}

// Enqueue implementation of interface queue.Producer
func (q *Queue) Enqueue(_ context.Context, body []byte) error {
	b := make([]byte, len(body))
	copy(b, body)

	q.mu.Lock()
	q.entries = append(q.entries, &entry{id: xid.New().String(), body: b})
	q.wakeLocked()
	q.mu.Unlock()

	return nil
}

// Receive implementation of interface queue.Consumer
func (q *Queue) Receive(ctx context.Context, max int, wait time.Duration) ([]queue.Message, error) {
	t := time.NewTimer(wait)
	defer t.Stop()

	// picks up entries whose visibility timeout expired meanwhile
	poll := q.visibility / 4
	if poll <= 0 {
		poll = time.Millisecond
	}
	tick := time.NewTicker(poll)
	defer tick.Stop()

	for {
		q.mu.Lock()
		res := q.takeLocked(max)
		notify := q.notify
		q.mu.Unlock()

		if len(res) > 0 {
			return res, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.C:
			return nil, nil
		case <-notify:
		case <-tick.C:
		}
	}
}

// Ack implementation of interface queue.Consumer
func (q *Queue) Ack(_ context.Context, m queue.Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, e := range q.entries {
		if e.id != m.ID {
			continue
		}
		if e.receipt != m.Receipt {
			// redelivered to someone else after the visibility timeout
			return apperr.ErrPreconditionFailed
		}
		q.entries = append(q.entries[:i], q.entries[i+1:]...)
		return nil
	}

	return apperr.ErrNotFound
}

// Len returns number of not yet acknowledged messages
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.entries)
}

func (q *Queue) takeLocked(max int) []queue.Message {
	now := q.now()
	res := make([]queue.Message, 0, max)

	for _, e := range q.entries {
		if len(res) >= max {
			break
		}
		if now.Before(e.invisible) {
			continue
		}
		e.attempts++
		e.receipt = xid.New().String()
		e.invisible = now.Add(q.visibility)
		res = append(res, queue.Message{
			ID:      e.id,
			Receipt: e.receipt,
			Body:    e.body,
			Attempt: e.attempts,
		})
	}

	return res
}

func (q *Queue) wakeLocked() {
	close(q.notify)
	q.notify = make(chan struct{})
}
