package services

import (
	"context"
	"time"
)

// Pinger checks reachability of one dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthReport summarizes dependency health.
type HealthReport struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	CheckedAt time.Time         `json:"checked_at"`
}

// HealthService answers liveness and readiness probes.
type HealthService struct {
	db    Pinger
	cache Pinger
}

// NewHealthService creates a HealthService. cache may be nil when
// Redis is disabled.
func NewHealthService(db, cache Pinger) *HealthService {
	return &HealthService{db: db, cache: cache}
}

// CheckDB reports database reachability.
func (s *HealthService) CheckDB(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// CheckCache reports cache reachability. A nil cache is healthy by
// definition.
func (s *HealthService) CheckCache(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Ping(ctx)
}

// Report runs all checks. The cache is best-effort, so only the
// database gates overall readiness.
func (s *HealthService) Report(ctx context.Context) HealthReport {
	report := HealthReport{
		Status:    "ok",
		Checks:    map[string]string{},
		CheckedAt: time.Now().UTC(),
	}
	if err := s.CheckDB(ctx); err != nil {
		report.Status = "degraded"
		report.Checks["database"] = err.Error()
	} else {
		report.Checks["database"] = "ok"
	}
	if err := s.CheckCache(ctx); err != nil {
		report.Checks["cache"] = err.Error()
	} else {
		report.Checks["cache"] = "ok"
	}
	return report
}

// Ready reports whether the service can take traffic.
func (s *HealthService) Ready(ctx context.Context) bool {
	return s.CheckDB(ctx) == nil
}
