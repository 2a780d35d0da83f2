package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

func TestHealthReportAllHealthy(t *testing.T) {
	svc := NewHealthService(stubPinger{}, stubPinger{})
	report := svc.Report(context.Background())

	assert.Equal(t, "ok", report.Status)
	assert.Equal(t, "ok", report.Checks["database"])
	assert.Equal(t, "ok", report.Checks["cache"])
	assert.True(t, svc.Ready(context.Background()))
}

func TestHealthReportDatabaseDownGatesReadiness(t *testing.T) {
	svc := NewHealthService(stubPinger{err: errors.New("connection refused")}, stubPinger{})
	report := svc.Report(context.Background())

	assert.Equal(t, "degraded", report.Status)
	assert.False(t, svc.Ready(context.Background()))
}

func TestHealthReportCacheDownStaysReady(t *testing.T) {
	svc := NewHealthService(stubPinger{}, stubPinger{err: errors.New("redis down")})
	report := svc.Report(context.Background())

	// The cache is best-effort: its failure degrades nothing.
	assert.Equal(t, "ok", report.Status)
	assert.True(t, svc.Ready(context.Background()))
}

func TestHealthReportNilCache(t *testing.T) {
	svc := NewHealthService(stubPinger{}, nil)
	assert.NoError(t, svc.CheckCache(context.Background()))
	assert.True(t, svc.Ready(context.Background()))
}
