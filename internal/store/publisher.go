package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/flowforge/orchestrator/internal/platform/logger"
)

// wakeChannel is the Postgres NOTIFY channel schedulers LISTEN on for a
// low-latency wake-up when new work is enqueued.
const wakeChannel = "orchestrator_runs"

// Publisher holds a dedicated pgx connection used purely for
// LISTEN/NOTIFY. It is a latency optimization layered on top of the
// poll-ticker scheduler: a missed or dropped notification never loses
// work, because the ticker picks up anything NOTIFY failed to signal
// on its next pass.
type Publisher struct {
	dsn string
	log *logger.Logger
}

// NewPublisher builds a Publisher against the same DSN the Store uses.
func NewPublisher(dsn string, log *logger.Logger) *Publisher {
	return &Publisher{dsn: dsn, log: log}
}

// NotifyRunEnqueued sends a NOTIFY on wakeChannel. Callers invoke this
// after committing work a scheduler should look at soon (a new task, a
// recorded decision, a kick, a verified webhook); it opens and closes a
// short-lived connection rather than holding one open for every writer.
func (p *Publisher) NotifyRunEnqueued(ctx context.Context) {
	conn, err := pgx.Connect(ctx, p.dsn)
	if err != nil {
		p.log.Warn("publisher: notify connect failed", "error", err)
		return
	}
	defer conn.Close(ctx)

	if _, err := conn.Exec(ctx, fmt.Sprintf("NOTIFY %s", wakeChannel)); err != nil {
		p.log.Warn("publisher: notify failed", "error", err)
	}
}

// Listen blocks, delivering a value on the returned channel each time a
// NOTIFY arrives on wakeChannel, until ctx is canceled. The caller's
// scheduler selects on this channel alongside its poll ticker so it can
// wake early instead of waiting out the full poll interval.
func Listen(ctx context.Context, dsn string, log *logger.Logger) (<-chan struct{}, error) {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("store: listen connect: %w", err)
	}
	if _, err := conn.Exec(ctx, fmt.Sprintf("LISTEN %s", wakeChannel)); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("store: listen: %w", err)
	}

	wake := make(chan struct{}, 1)
	go func() {
		defer conn.Close(ctx)
		for {
			waitCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			_, err := conn.WaitForNotification(waitCtx)
			cancel()
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				continue
			}
			select {
			case wake <- struct{}{}:
			default:
			}
		}
	}()
	return wake, nil
}
