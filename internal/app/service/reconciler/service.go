package reconciler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"pixrecon/internal/app/apperr"
	"pixrecon/internal/app/logger"
	"pixrecon/internal/app/model"
	"pixrecon/internal/app/queue"
	"pixrecon/internal/app/service/classifier"
	"pixrecon/internal/app/storage"
)

var ErrReceiveFailed = errors.New("queue receive keeps failing")

type Outcome string

const (
	OutcomeApplied          Outcome = "applied"
	OutcomeDuplicate        Outcome = "duplicate"
	OutcomeNeutral          Outcome = "neutral"
	OutcomeUnrecognized     Outcome = "unrecognized"
	OutcomeUnknownReference Outcome = "unknown_reference"
	OutcomeTransient        Outcome = "transient"
)

// Ack reports whether a message with this outcome may leave the queue.
func (o Outcome) Ack() bool {
	return o != OutcomeTransient
}

type Config struct {
	BatchSize        int
	PollTimeout      time.Duration
	WorkerCount      int
	OperationTimeout time.Duration
	// NotFoundRetries bounds re-lookups of an unknown reference before giving up on it
	NotFoundRetries int
	NotFoundBackoff time.Duration
	// MaxReceiveFailures consecutive receive errors stop Run, zero means never
	MaxReceiveFailures int
}

func DefaultConfig() Config {
	return Config{
		BatchSize:          10,
		PollTimeout:        5 * time.Second,
		WorkerCount:        2,
		OperationTimeout:   10 * time.Second,
		NotFoundBackoff:    500 * time.Millisecond,
		MaxReceiveFailures: 10,
	}
}

type Service struct {
	name     string
	kind     model.Kind
	cfg      Config
	consumer queue.Consumer
	store    storage.TransactionRepository
	logger   logger.Logger
	now      func() time.Time
	observer func(queue.Message, Outcome)
}

type Option func(*Service)

// WithKind binds the service to one transaction kind, records of another kind are
// treated as unknown references.
func WithKind(kind model.Kind) Option {
	return func(s *Service) {
		s.kind = kind
	}
}

func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		s.logger = l
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithObserver registers a callback invoked after every handled message.
func WithObserver(fn func(queue.Message, Outcome)) Option {
	return func(s *Service) {
		s.observer = fn
	}
}

func New(name string, consumer queue.Consumer, store storage.TransactionRepository, cfg Config, opts ...Option) *Service {
	def := DefaultConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = def.PollTimeout
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = def.WorkerCount
	}
	if cfg.OperationTimeout <= 0 {
		cfg.OperationTimeout = def.OperationTimeout
	}

	s := &Service{
		name:     name,
		cfg:      cfg,
		consumer: consumer,
		store:    store,
		logger:   *logger.Global(),
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	s.logger = s.logger.WithComponent("Reconciler." + name)

	return s
}

// Run starts the workers and blocks until ctx is cancelled or a worker gives up on
// the queue. Messages already received when ctx is cancelled are still handled.
func (s *Service) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.logger.Info().
		Int("workers", s.cfg.WorkerCount).
		Int("batch_size", s.cfg.BatchSize).
		Dur("poll_timeout", s.cfg.PollTimeout).
		Msg("Starting consumer")

	errCh := make(chan error, s.cfg.WorkerCount)
	var wg sync.WaitGroup

	for i := 0; i < s.cfg.WorkerCount; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			if err := s.work(ctx, workerID); err != nil {
				errCh <- err
				cancel()
			}
		}(i)
	}

	wg.Wait()
	close(errCh)

	s.logger.Info().Msg("Consumer stopped")

	return <-errCh
}

func (s *Service) work(ctx context.Context, workerID int) error {
	l := s.logger.With().Int("worker_id", workerID).Logger()
	failures := 0

	for {
		if ctx.Err() != nil {
			return nil
		}

		msgs, err := s.consumer.Receive(ctx, s.cfg.BatchSize, s.cfg.PollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			failures++
			l.Error().Err(err).Int("failures", failures).Msg("Receive failed")
			if s.cfg.MaxReceiveFailures > 0 && failures >= s.cfg.MaxReceiveFailures {
				return fmt.Errorf("%s: %w: %v", s.name, ErrReceiveFailed, err)
			}
			if !sleep(ctx, backoff(failures)) {
				return nil
			}
			continue
		}
		failures = 0

		if len(msgs) == 0 {
			continue
		}

		l.Debug().Int("count", len(msgs)).Msg("Batch received")

		// the batch is in flight, finish it even if we are shutting down
		bctx := context.WithoutCancel(ctx)
		for _, m := range msgs {
			s.Process(bctx, m)
		}
	}
}

// Process handles a single message and acknowledges it unless the failure is
// transient. It never panics the batch: a panic is reported as a transient outcome.
func (s *Service) Process(ctx context.Context, m queue.Message) (outcome Outcome) {
	l := s.logger.With().
		Str("message_id", m.ID).
		Int("attempt", m.Attempt).
		Logger()
	ctx = l.WithContext(ctx)

	defer func() {
		if r := recover(); r != nil {
			l.Error().Interface("panic", r).Msg("Message handling panicked")
			outcome = OutcomeTransient
		}

		if outcome.Ack() {
			actx, cancel := context.WithTimeout(ctx, s.cfg.OperationTimeout)
			defer cancel()
			if err := s.consumer.Ack(actx, m); err != nil {
				// the message comes back and is applied as a no-op
				l.Warn().Err(err).Str("outcome", string(outcome)).Msg("Ack failed")
			}
		}

		if s.observer != nil {
			s.observer(m, outcome)
		}
	}()

	return s.handle(ctx, logger.Logger{Logger: l}, m.Body)
}

// Handle applies a raw notification to the store and reports the outcome. It does
// not touch the queue.
func (s *Service) Handle(ctx context.Context, raw []byte) Outcome {
	return s.handle(ctx, s.logger, raw)
}

// handle logs through l rather than the context logger, a disabled logger is never
// stored in a context and would fall back to the global one
func (s *Service) handle(ctx context.Context, l logger.Logger, raw []byte) Outcome {
	e, err := classifier.Classify(raw)
	if err != nil {
		l.Warn().Err(err).Str("payload", string(raw)).Msg("Dropping unrecognized notification")
		return OutcomeUnrecognized
	}

	l = logger.Logger{Logger: l.With().
		Str("gateway_reference", e.GatewayReference).
		Str("event", e.Name).
		Logger()}

	if !e.Transition() {
		l.Debug().Msg("Neutral event")
		return OutcomeNeutral
	}

	m, outcome := s.lookup(ctx, l, e.GatewayReference)
	if m == nil {
		return outcome
	}

	l = logger.Logger{Logger: l.With().
		Str("transaction_id", m.ID.String()).
		Str("status", string(m.Status)).
		Logger()}

	if m.Status != model.StatusPending {
		l.Info().Msg("Transaction already settled, skipping")
		return OutcomeDuplicate
	}

	processedAt := s.now().UTC()

	tctx, cancel := context.WithTimeout(ctx, s.cfg.OperationTimeout)
	defer cancel()

	err = s.store.Transition(tctx, m.ID, model.StatusPending, e.Target, processedAt)
	switch {
	case err == nil:
		l.Info().Str("target", string(e.Target)).Msg("Transaction settled")
		return OutcomeApplied
	case errors.Is(err, apperr.ErrPreconditionFailed):
		l.Info().Msg("Transaction settled concurrently, skipping")
		return OutcomeDuplicate
	case errors.Is(err, apperr.ErrNotFound):
		l.Warn().Msg("Transaction vanished before transition")
		return OutcomeUnknownReference
	default:
		l.Error().Err(err).Msg("Transition failed")
		return OutcomeTransient
	}
}

func (s *Service) lookup(ctx context.Context, l logger.Logger, ref string) (*model.Transaction, Outcome) {
	for attempt := 0; ; attempt++ {
		rctx, cancel := context.WithTimeout(ctx, s.cfg.OperationTimeout)
		m, err := s.store.ReadByGatewayReference(rctx, ref)
		cancel()

		switch {
		case err == nil && (s.kind == "" || m.Kind == s.kind):
			return m, ""
		case err == nil:
			l.Warn().Str("kind", string(m.Kind)).Msg("Reference belongs to another kind")
			return nil, OutcomeUnknownReference
		case !errors.Is(err, apperr.ErrNotFound):
			l.Error().Err(err).Msg("Lookup failed")
			return nil, OutcomeTransient
		}

		if attempt >= s.cfg.NotFoundRetries || !sleep(ctx, s.cfg.NotFoundBackoff) {
			l.Warn().Int("lookups", attempt+1).Msg("Unknown gateway reference")
			return nil, OutcomeUnknownReference
		}
	}
}

func backoff(failures int) time.Duration {
	d := 100 * time.Millisecond << uint(failures)
	if d > 10*time.Second || d <= 0 {
		d = 10 * time.Second
	}
	return d
}

// sleep returns false if ctx is done first
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
