package events

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"licensehub/internal/domain"
)

type recordingHandler struct {
	name string
	mu   sync.Mutex
	seen []domain.Event
	err  error
}

func (h *recordingHandler) Name() string { return h.name }

func (h *recordingHandler) Handle(_ context.Context, e domain.Event) error {
	h.mu.Lock()
	h.seen = append(h.seen, e)
	h.mu.Unlock()
	return h.err
}

func (h *recordingHandler) events() []domain.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]domain.Event(nil), h.seen...)
}

func TestMemoryBusDeliversToSubscribers(t *testing.T) {
	bus := NewMemoryBus()
	h := &recordingHandler{name: "rec"}
	bus.Subscribe(h, domain.EventLicenseRenewed)

	key, err := domain.NewLicenseKey(uuid.New(), "AC", "c@example.com")
	require.NoError(t, err)
	lic, err := domain.NewLicense(key.ID, uuid.New(), 3, nil)
	require.NoError(t, err)

	bus.Publish(context.Background(), domain.NewLicenseRenewed(lic, key.BrandID))
	bus.Wait()

	seen := h.events()
	require.Len(t, seen, 1)
	assert.Equal(t, domain.EventLicenseRenewed, seen[0].Type)
	assert.Equal(t, lic.ID, seen[0].LicenseID)
}

func TestMemoryBusPublishWaitsForHandlers(t *testing.T) {
	bus := NewMemoryBus()
	var done atomic.Bool
	bus.Subscribe(HandlerFunc{
		HandlerName: "slow",
		Fn: func(context.Context, domain.Event) error {
			time.Sleep(50 * time.Millisecond)
			done.Store(true)
			return nil
		},
	}, domain.EventLicenseSuspended)

	key, err := domain.NewLicenseKey(uuid.New(), "AC", "c@example.com")
	require.NoError(t, err)
	lic, err := domain.NewLicense(key.ID, uuid.New(), 1, nil)
	require.NoError(t, err)

	bus.Publish(context.Background(), domain.NewLicenseSuspended(lic, key.BrandID, "overdue"))
	assert.True(t, done.Load(), "Publish must not return before its handlers finish")
}

func TestMemoryBusFiltersByEventType(t *testing.T) {
	bus := NewMemoryBus()
	h := &recordingHandler{name: "rec"}
	bus.Subscribe(h, domain.EventLicenseSuspended)

	key, err := domain.NewLicenseKey(uuid.New(), "AC", "c@example.com")
	require.NoError(t, err)

	bus.Publish(context.Background(), domain.NewLicenseKeyCreated(key))
	bus.Wait()

	assert.Empty(t, h.events())
}

func TestMemoryBusEmptySubscriptionMeansAllTypes(t *testing.T) {
	bus := NewMemoryBus()
	h := &recordingHandler{name: "rec"}
	bus.Subscribe(h)

	key, err := domain.NewLicenseKey(uuid.New(), "AC", "c@example.com")
	require.NoError(t, err)
	lic, err := domain.NewLicense(key.ID, uuid.New(), 3, nil)
	require.NoError(t, err)

	bus.Publish(context.Background(),
		domain.NewLicenseKeyCreated(key),
		domain.NewLicenseProvisioned(lic, key.BrandID),
		domain.NewLicenseResumed(lic, key.BrandID),
	)
	bus.Wait()

	assert.Len(t, h.events(), 3)
}

func TestMemoryBusIsolatesFailingHandler(t *testing.T) {
	bus := NewMemoryBus()
	failing := &recordingHandler{name: "failing", err: errors.New("boom")}
	healthy := &recordingHandler{name: "healthy"}
	bus.Subscribe(failing, domain.EventLicenseRenewed)
	bus.Subscribe(healthy, domain.EventLicenseRenewed)

	key, err := domain.NewLicenseKey(uuid.New(), "AC", "c@example.com")
	require.NoError(t, err)
	lic, err := domain.NewLicense(key.ID, uuid.New(), 3, nil)
	require.NoError(t, err)

	bus.Publish(context.Background(), domain.NewLicenseRenewed(lic, key.BrandID))
	bus.Wait()

	assert.Len(t, failing.events(), 1)
	assert.Len(t, healthy.events(), 1, "failure of one handler must not starve others")
}

func TestMemoryBusIsolatesPanickingHandler(t *testing.T) {
	bus := NewMemoryBus()
	bus.Subscribe(HandlerFunc{
		HandlerName: "panicking",
		Fn:          func(context.Context, domain.Event) error { panic("boom") },
	}, domain.EventLicenseRenewed)
	healthy := &recordingHandler{name: "healthy"}
	bus.Subscribe(healthy, domain.EventLicenseRenewed)

	key, err := domain.NewLicenseKey(uuid.New(), "AC", "c@example.com")
	require.NoError(t, err)
	lic, err := domain.NewLicense(key.ID, uuid.New(), 3, nil)
	require.NoError(t, err)

	bus.Publish(context.Background(), domain.NewLicenseRenewed(lic, key.BrandID))
	bus.Wait()

	assert.Len(t, healthy.events(), 1)
}

func TestRoutingKey(t *testing.T) {
	key, err := domain.NewLicenseKey(uuid.New(), "AC", "c@example.com")
	require.NoError(t, err)
	e := domain.NewLicenseKeyCreated(key)
	assert.Equal(t, "event.licensekeycreated", e.RoutingKey())
}

func TestEnvelopeOmitsNilAggregates(t *testing.T) {
	e := domain.Event{ID: uuid.New(), Type: domain.EventLicenseKeyCreated, AggregateID: "x"}
	env := toEnvelope(e)
	assert.Empty(t, env.BrandID)
	assert.Empty(t, env.LicenseID)
	assert.Empty(t, env.LicenseKeyID)
	assert.NotNil(t, env.Data)
}
