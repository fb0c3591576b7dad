package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/clinicbook/libs/db"
	"github.com/md-rashed-zaman/clinicbook/libs/kafkax"
	otelx "github.com/md-rashed-zaman/clinicbook/libs/otel"
	"github.com/segmentio/kafka-go"
)

// MessageWriter is the subset of *kafka.Writer the publisher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Publisher struct {
	pool        *db.Pool
	repo        *Repository
	logger      *slog.Logger
	brokers     []string
	pollEvery   time.Duration
	batchSize   int
	maxAttempts int
	newWriter   func([]string) MessageWriter
}

type PublisherConfig struct {
	Brokers     []string
	PollEvery   time.Duration
	BatchSize   int
	MaxAttempts int
}

func NewPublisher(pool *db.Pool, repo *Repository, logger *slog.Logger, cfg PublisherConfig) *Publisher {
	if cfg.PollEvery <= 0 {
		cfg.PollEvery = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 20
	}
	return &Publisher{
		pool:        pool,
		repo:        repo,
		logger:      logger,
		brokers:     cfg.Brokers,
		pollEvery:   cfg.PollEvery,
		batchSize:   cfg.BatchSize,
		maxAttempts: cfg.MaxAttempts,
		newWriter:   func(b []string) MessageWriter { return kafkax.NewWriter(b) },
	}
}

func (p *Publisher) Run(ctx context.Context) {
	if len(p.brokers) == 0 {
		p.logger.Warn("outbox publisher disabled (no kafka brokers configured)")
		return
	}

	writer := p.newWriter(p.brokers)
	defer func() { _ = writer.Close() }()

	ticker := time.NewTicker(p.pollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := p.publishBatch(ctx, writer)
			if err != nil {
				p.logger.Error("outbox publish failed", "err", err)
				continue
			}
			if n > 0 {
				p.logger.Debug("outbox batch published", "count", n)
			}
		}
	}
}

func (p *Publisher) publishBatch(ctx context.Context, writer MessageWriter) (int, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	records, err := p.repo.FetchUnpublished(ctx, tx, p.batchSize, p.maxAttempts)
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, tx.Commit(ctx)
	}

	msgs := make([]kafka.Message, 0, len(records))
	ids := make([]int64, 0, len(records))
	for _, r := range records {
		msgCtx := otelx.ContextWithTraceContext(ctx, r.Traceparent, r.Tracestate)
		msgs = append(msgs, kafkax.NewMessage(msgCtx, kafkax.Envelope{
			EventID:     r.EventID,
			EventType:   r.EventType,
			AggregateID: r.AggregateID,
			OccurredAt:  r.CreatedAt,
		}, r.Payload))
		ids = append(ids, r.ID)
	}

	if werr := writer.WriteMessages(ctx, msgs...); werr != nil {
		// Keep the rows for the next tick but remember why they failed.
		if err := p.repo.MarkFailed(ctx, tx, ids, werr.Error()); err != nil {
			return 0, err
		}
		if err := tx.Commit(ctx); err != nil {
			return 0, err
		}
		return 0, werr
	}

	if err := p.repo.MarkPublished(ctx, tx, ids); err != nil {
		return 0, err
	}
	return len(records), tx.Commit(ctx)
}
