package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"licensehub/internal/domain"
	"licensehub/internal/infrastructure"
)

// Expirer is the background sweep that moves overdue licenses from
// valid to expired, evicts their cached status and records each
// expiration in the audit trail. It also clears expired idempotency
// records.
type Expirer struct {
	licenses    LicenseStore
	cache       StatusCacher
	audit       AuditSink
	idempotency IdempotencySweeper
	interval    time.Duration
	now         func() time.Time
}

// NewExpirer creates an Expirer. cache, audit and idempotency may be
// nil.
func NewExpirer(licenses LicenseStore, cache StatusCacher, audit AuditSink, idempotency IdempotencySweeper, interval time.Duration) *Expirer {
	return &Expirer{
		licenses:    licenses,
		cache:       cache,
		audit:       audit,
		idempotency: idempotency,
		interval:    interval,
		now:         time.Now,
	}
}

// Run sweeps on the configured interval until ctx is cancelled.
func (e *Expirer) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	infrastructure.GetLogger().Info("expirer started", "interval", e.interval.String())
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			e.Sweep(ctx)
		}
	}
}

// Sweep runs one expiration pass. The conditional UPDATE in the store
// makes concurrent sweeps safe; each license is expired exactly once.
func (e *Expirer) Sweep(ctx context.Context) {
	logger := infrastructure.GetLogger()
	now := e.now().UTC()

	expired, err := e.licenses.ExpireDue(ctx, now)
	if err != nil {
		logger.Error("expiration sweep failed", "error", err)
		return
	}
	for _, lic := range expired {
		logger.Info("license expired",
			"license_id", lic.ID.String(),
			"license_key_id", lic.LicenseKeyID.String())
		e.invalidate(ctx, lic)
		e.record(ctx, lic, now)
	}
	if len(expired) > 0 {
		logger.Info("expiration sweep done", "expired", len(expired))
	}

	if e.idempotency != nil {
		if n, err := e.idempotency.DeleteExpired(ctx, now); err != nil {
			logger.Error("idempotency cleanup failed", "error", err)
		} else if n > 0 {
			logger.Info("idempotency records cleaned", "deleted", n)
		}
	}
}

// record writes the audit row for one swept license. Best-effort: the
// sweep itself already committed.
func (e *Expirer) record(ctx context.Context, lic *domain.License, now time.Time) {
	if e.audit == nil {
		return
	}
	brandID, err := e.licenses.BrandOfLicense(ctx, lic.ID)
	if err != nil {
		infrastructure.GetLogger().Warn("audit entry skipped, brand lookup failed",
			"license_id", lic.ID.String(), "error", err)
		return
	}
	entry := &domain.AuditEntry{
		ID:         uuid.New(),
		BrandID:    brandID,
		EntityType: "license",
		EntityID:   lic.ID.String(),
		Action:     "license.expired",
		Changes: map[string]any{
			"status":     string(domain.StatusExpired),
			"expires_at": lic.ExpiresAt,
		},
		Actor:     "system",
		CreatedAt: now,
	}
	if err := e.audit.Append(ctx, entry); err != nil {
		infrastructure.GetLogger().Warn("audit entry write failed",
			"license_id", lic.ID.String(), "error", err)
	}
}

func (e *Expirer) invalidate(ctx context.Context, lic *domain.License) {
	if e.cache == nil {
		return
	}
	key, err := e.licenses.GetKey(ctx, lic.LicenseKeyID)
	if err != nil {
		infrastructure.GetLogger().Warn("cache eviction skipped, key lookup failed",
			"license_key_id", lic.LicenseKeyID.String(), "error", err)
		return
	}
	e.cache.Delete(ctx, key.Key)
}
