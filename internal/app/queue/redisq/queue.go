package redisq

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"pixrecon/internal/app/logger"
	"pixrecon/internal/app/queue"
)

// queue.Queue interface implementation
var _ queue.Queue = (*Queue)(nil)

const payloadField = "payload"

// Queue is a redis stream consumed through a consumer group. Entries delivered but
// not acknowledged within the visibility timeout are claimed by the next Receive.
type Queue struct {
	rdb        redis.UniversalClient
	stream     string
	group      string
	consumer   string
	visibility time.Duration
	logger     logger.Logger
}

func (q *Queue) LoggerComponent() string {
	return "RedisQueue"
}

func New(ctx context.Context, rdb redis.UniversalClient, stream, group, consumer string, visibility time.Duration) (*Queue, error) {
	q := &Queue{
		rdb:        rdb,
		stream:     stream,
		group:      group,
		consumer:   consumer,
		visibility: visibility,
	}
	q.logger = logger.Logger{Logger: logger.Global().Component(q).With().Str("stream", stream).Logger()}

	err := rdb.XGroupCreateMkStream(ctx, stream, group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return nil, fmt.Errorf("group create: %w", err)
	}

	return q, nil
}

// Enqueue implementation of interface queue.Producer
func (q *Queue) Enqueue(ctx context.Context, body []byte) error {
	id, err := q.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		Values: map[string]interface{}{payloadField: string(body)},
	}).Result()
	if err != nil {
		return fmt.Errorf("xadd: %w", err)
	}

	q.logger.Debug().Str("message_id", id).Msg("Enqueued")

	return nil
}

// Receive implementation of interface queue.Consumer
func (q *Queue) Receive(ctx context.Context, max int, wait time.Duration) ([]queue.Message, error) {
	res, err := q.claimStale(ctx, max)
	if err != nil {
		return nil, err
	}
	if len(res) > 0 {
		return res, nil
	}

	if wait < time.Millisecond {
		wait = time.Millisecond
	}

	streams, err := q.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.group,
		Consumer: q.consumer,
		Streams:  []string{q.stream, ">"},
		Count:    int64(max),
		Block:    wait,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("xreadgroup: %w", err)
	}

	for _, s := range streams {
		for _, m := range s.Messages {
			res = append(res, toMessage(m, 1))
		}
	}

	return res, nil
}

// Ack implementation of interface queue.Consumer
func (q *Queue) Ack(ctx context.Context, m queue.Message) error {
	if err := q.rdb.XAck(ctx, q.stream, q.group, m.ID).Err(); err != nil {
		return fmt.Errorf("xack: %w", err)
	}
	if err := q.rdb.XDel(ctx, q.stream, m.ID).Err(); err != nil {
		return fmt.Errorf("xdel: %w", err)
	}

	return nil
}

// claimStale takes over pending entries idle for longer than the visibility timeout
func (q *Queue) claimStale(ctx context.Context, max int) ([]queue.Message, error) {
	pending, err := q.rdb.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: q.stream,
		Group:  q.group,
		Start:  "-",
		End:    "+",
		Count:  int64(max),
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("xpending: %w", err)
	}

	ids := make([]string, 0, len(pending))
	attempts := make(map[string]int, len(pending))
	for _, p := range pending {
		if p.Idle < q.visibility {
			continue
		}
		ids = append(ids, p.ID)
		attempts[p.ID] = int(p.RetryCount) + 1
	}
	if len(ids) == 0 {
		return nil, nil
	}

	claimed, err := q.rdb.XClaim(ctx, &redis.XClaimArgs{
		Stream:   q.stream,
		Group:    q.group,
		Consumer: q.consumer,
		MinIdle:  q.visibility,
		Messages: ids,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("xclaim: %w", err)
	}

	res := make([]queue.Message, 0, len(claimed))
	for _, m := range claimed {
		res = append(res, toMessage(m, attempts[m.ID]))
	}

	if len(res) > 0 {
		q.logger.Info().Int("count", len(res)).Msg("Claimed stale messages")
	}

	return res, nil
}

func toMessage(m redis.XMessage, attempt int) queue.Message {
	var body []byte
	switch v := m.Values[payloadField].(type) {
	case string:
		body = []byte(v)
	case []byte:
		body = v
	}

	return queue.Message{
		ID:      m.ID,
		Receipt: m.ID,
		Body:    body,
		Attempt: attempt,
	}
}
