package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/baharkarakas/ledger-backend/internal/models"
	repo "github.com/baharkarakas/ledger-backend/internal/repository"
	"github.com/baharkarakas/ledger-backend/internal/worker"
)

const auditWriteTimeout = 3 * time.Second

// Auditor writes audit entries off the request path. A nil pool makes
// writes synchronous.
type Auditor struct {
	logs repo.AuditLogs
	pool *worker.Pool
}

func NewAuditor(logs repo.AuditLogs, pool *worker.Pool) *Auditor {
	return &Auditor{logs: logs, pool: pool}
}

func (a *Auditor) Record(entityType, entityID, action string, details map[string]any) {
	if a == nil || a.logs == nil {
		return
	}
	entry := models.AuditLog{
		EntityType: entityType,
		EntityID:   &entityID,
		Action:     action,
		Details:    details,
	}
	write := func() {
		ctx, cancel := context.WithTimeout(context.Background(), auditWriteTimeout)
		defer cancel()
		if err := a.logs.Create(ctx, entry); err != nil {
			slog.Warn("audit write failed", "entity_id", entityID, "action", action, "err", err)
		}
	}
	if a.pool == nil {
		write()
		return
	}
	if !a.pool.Submit(write) {
		slog.Warn("audit entry dropped: worker queue full", "entity_id", entityID, "action", action)
	}
}
