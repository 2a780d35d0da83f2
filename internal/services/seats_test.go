package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"licensehub/internal/domain"
)

type seatEnv struct {
	f       *fixture
	bus     *recordBus
	svc     *SeatManager
	brand   *domain.Brand
	product *domain.Product
	key     *domain.LicenseKey
	lic     *domain.License
}

func newSeatEnv(t *testing.T, seats int) *seatEnv {
	t.Helper()
	f := newFixture()
	bus := &recordBus{}
	brand := f.addBrand(t, "AC")
	product := f.addProduct(t, brand)
	key := f.addKey(t, brand)
	lic := f.addLicense(t, key, product, seats, nil)
	return &seatEnv{
		f: f, bus: bus, svc: NewSeatManager(f, f, f, bus),
		brand: brand, product: product, key: key, lic: lic,
	}
}

func (e *seatEnv) activate(identifier string) (*ActivationResult, error) {
	return e.svc.Activate(context.Background(), e.key, e.product.ID, identifier, domain.InstanceURL, nil)
}

func TestActivateConsumesSeat(t *testing.T) {
	env := newSeatEnv(t, 3)

	res, err := env.activate("https://site-a.example")
	require.NoError(t, err)
	assert.Equal(t, OutcomeCreated, res.Outcome)
	assert.Equal(t, 1, res.SeatsUsed)
	assert.Equal(t, 3, res.SeatLimit)
	assert.True(t, res.Activation.IsActive)

	events := env.bus.byType(domain.EventLicenseActivated)
	require.Len(t, events, 1)
	assert.Equal(t, env.key.ID, events[0].LicenseKeyID)
}

func TestActivateDuplicateActiveInstance(t *testing.T) {
	env := newSeatEnv(t, 3)

	_, err := env.activate("https://site-a.example")
	require.NoError(t, err)

	_, err = env.activate("https://site-a.example")
	require.Error(t, err)
	assert.Equal(t, domain.CodeDuplicateActive, domain.CodeOf(err))

	// The failed attempt must not burn a seat.
	used, err := env.f.CountActive(context.Background(), env.lic.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, used)
}

func TestActivateSeatLimit(t *testing.T) {
	env := newSeatEnv(t, 2)

	_, err := env.activate("a")
	require.NoError(t, err)
	_, err = env.activate("b")
	require.NoError(t, err)

	_, err = env.activate("c")
	require.Error(t, err)
	assert.Equal(t, domain.CodeSeatLimitExceeded, domain.CodeOf(err))
}

func TestActivateReactivatesFreedSeat(t *testing.T) {
	env := newSeatEnv(t, 1)
	ctx := context.Background()

	res, err := env.activate("a")
	require.NoError(t, err)

	_, err = env.svc.DeactivateForKey(ctx, env.key, res.Activation.ID)
	require.NoError(t, err)

	again, err := env.svc.Activate(ctx, env.key, env.product.ID, "a", domain.InstanceURL, map[string]any{"v": "2"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeReactivated, again.Outcome)
	assert.Equal(t, res.Activation.ID, again.Activation.ID, "the existing row is reused")
	assert.Equal(t, "2", again.Activation.InstanceMetadata["v"])
	assert.True(t, again.Activation.ActivatedAt.After(res.Activation.ActivatedAt))
}

// suspendingLocker commits a suspend between the license lookup and the
// lock acquisition, the way a concurrent lifecycle request would.
type suspendingLocker struct {
	f *fixture
}

func (l *suspendingLocker) WithLicenseLock(ctx context.Context, licenseID uuid.UUID, fn func(ctx context.Context) error) error {
	lic, err := l.f.GetLicense(ctx, licenseID)
	if err != nil {
		return err
	}
	suspended, err := lic.Suspend(time.Now().UTC())
	if err != nil {
		return err
	}
	if err := l.f.UpdateLicense(ctx, &suspended); err != nil {
		return err
	}
	return l.f.WithLicenseLock(ctx, licenseID, fn)
}

func TestActivateSeesLifecycleChangeRacingTheLock(t *testing.T) {
	env := newSeatEnv(t, 3)
	svc := NewSeatManager(env.f, env.f, &suspendingLocker{f: env.f}, env.bus)

	_, err := svc.Activate(context.Background(), env.key, env.product.ID, "https://site-a.example", domain.InstanceURL, nil)
	require.Error(t, err)
	assert.Equal(t, domain.CodeLicenseSuspended, domain.CodeOf(err))

	used, err := env.f.CountActive(context.Background(), env.lic.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, used, "no seat is consumed on a license suspended mid-flight")
}

func TestActivateRejectsInvalidLicenseStates(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(l domain.License) (domain.License, error)
		wantCode string
	}{
		{
			"suspended",
			func(l domain.License) (domain.License, error) { return l.Suspend(time.Now().UTC()) },
			domain.CodeLicenseSuspended,
		},
		{
			"cancelled",
			func(l domain.License) (domain.License, error) { return l.Cancel(time.Now().UTC()) },
			domain.CodeLicenseCancelled,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newSeatEnv(t, 3)
			mutated, err := tt.mutate(*env.lic)
			require.NoError(t, err)
			require.NoError(t, env.f.UpdateLicense(context.Background(), &mutated))

			_, err = env.activate("a")
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, domain.CodeOf(err))
		})
	}
}

func TestActivatePastExpiryFailsEvenBeforeSweep(t *testing.T) {
	env := newSeatEnv(t, 3)
	stored, err := env.f.GetLicense(context.Background(), env.lic.ID)
	require.NoError(t, err)
	past := time.Now().UTC().Add(-time.Minute)
	stored.ExpiresAt = &past
	require.NoError(t, env.f.UpdateLicense(context.Background(), stored))

	_, err = env.activate("a")
	require.Error(t, err)
	assert.Equal(t, domain.CodeLicenseExpired, domain.CodeOf(err))
}

func TestActivateRejectsBadInput(t *testing.T) {
	env := newSeatEnv(t, 3)
	ctx := context.Background()

	_, err := env.svc.Activate(ctx, env.key, env.product.ID, "", domain.InstanceURL, nil)
	require.Error(t, err)
	assert.Equal(t, domain.CodeInvalidInstanceIdentifier, domain.CodeOf(err))

	_, err = env.svc.Activate(ctx, env.key, env.product.ID, "a", domain.InstanceType("container"), nil)
	require.Error(t, err)
	assert.Equal(t, domain.CodeInvalidInstanceIdentifier, domain.CodeOf(err))
}

func TestConcurrentActivationsRespectSeatLimit(t *testing.T) {
	const seats = 3
	const attempts = 10
	env := newSeatEnv(t, seats)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		limited   int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := env.activate(fmt.Sprintf("instance-%d", i))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case domain.IsCode(err, domain.CodeSeatLimitExceeded):
				limited++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, seats, succeeded)
	assert.Equal(t, attempts-seats, limited)

	used, err := env.f.CountActive(context.Background(), env.lic.ID)
	require.NoError(t, err)
	assert.Equal(t, seats, used)
}

func TestDeactivateIsIdempotent(t *testing.T) {
	env := newSeatEnv(t, 1)
	ctx := context.Background()

	res, err := env.activate("a")
	require.NoError(t, err)

	first, err := env.svc.DeactivateForKey(ctx, env.key, res.Activation.ID)
	require.NoError(t, err)
	assert.False(t, first.IsActive)

	second, err := env.svc.DeactivateForKey(ctx, env.key, res.Activation.ID)
	require.NoError(t, err)
	assert.False(t, second.IsActive)

	// Only the first call frees a seat and emits an event.
	assert.Len(t, env.bus.byType(domain.EventSeatDeactivated), 1)
}

func TestDeactivateForKeyRejectsForeignActivation(t *testing.T) {
	env := newSeatEnv(t, 1)
	ctx := context.Background()

	res, err := env.activate("a")
	require.NoError(t, err)

	otherKey := env.f.addKey(t, env.brand)
	_, err = env.svc.DeactivateForKey(ctx, otherKey, res.Activation.ID)
	require.Error(t, err)
	assert.Equal(t, domain.CodeForbidden, domain.CodeOf(err))
}

func TestDeactivateForBrandChecksOwnership(t *testing.T) {
	env := newSeatEnv(t, 1)
	ctx := context.Background()

	res, err := env.activate("a")
	require.NoError(t, err)

	other := env.f.addBrand(t, "RM")
	_, err = env.svc.DeactivateForBrand(ctx, other.ID, res.Activation.ID)
	require.Error(t, err)
	assert.Equal(t, domain.CodeForbidden, domain.CodeOf(err))

	a, err := env.svc.DeactivateForBrand(ctx, env.brand.ID, res.Activation.ID)
	require.NoError(t, err)
	assert.False(t, a.IsActive)
}

func TestListActivationsFilters(t *testing.T) {
	env := newSeatEnv(t, 3)
	ctx := context.Background()

	a, err := env.activate("a")
	require.NoError(t, err)
	_, err = env.activate("b")
	require.NoError(t, err)
	_, err = env.svc.DeactivateForKey(ctx, env.key, a.Activation.ID)
	require.NoError(t, err)

	all, err := env.svc.ListActivations(ctx, env.key, env.product.ID, false, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	active, err := env.svc.ListActivations(ctx, env.key, env.product.ID, true, "")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "b", active[0].InstanceIdentifier)

	one, err := env.svc.ListActivations(ctx, env.key, env.product.ID, false, "a")
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.False(t, one[0].IsActive)
}
