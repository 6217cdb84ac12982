package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/baharkarakas/ledger-backend/internal/metrics"
	"github.com/baharkarakas/ledger-backend/internal/worker"
)

const defaultPublishTimeout = 2 * time.Second

// Dispatcher hands events to a Publisher on the worker pool. Notify never
// blocks the caller and never reports failure to it.
type Dispatcher struct {
	pub     Publisher
	pool    *worker.Pool
	timeout time.Duration
}

func NewDispatcher(pub Publisher, pool *worker.Pool) *Dispatcher {
	return &Dispatcher{pub: pub, pool: pool, timeout: defaultPublishTimeout}
}

func (d *Dispatcher) Notify(receiverID string, ev Event) {
	if d == nil || d.pub == nil || d.pool == nil {
		return
	}
	ok := d.pool.Submit(func() {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()
		if err := d.pub.Publish(ctx, receiverID, ev); err != nil {
			metrics.NotificationsTotal.WithLabelValues("failed").Inc()
			slog.Warn("notification publish failed", "receiver_id", receiverID, "err", err)
		}
	})
	if !ok {
		metrics.NotificationsTotal.WithLabelValues("dropped").Inc()
		slog.Warn("notification dropped: worker queue full", "receiver_id", receiverID)
	}
}
