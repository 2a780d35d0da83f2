package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"licensehub/internal/domain"
)

// fixture is an in-memory store implementing the service ports. Seat
// accounting uses a per-license mutex, mirroring the row lock the real
// store takes.
type fixture struct {
	mu          sync.Mutex
	brands      map[uuid.UUID]*domain.Brand
	products    map[uuid.UUID]*domain.Product
	keys        map[uuid.UUID]*domain.LicenseKey
	licenses    map[uuid.UUID]*domain.License
	activations map[uuid.UUID]*domain.Activation
	locks       map[uuid.UUID]*sync.Mutex
}

func newFixture() *fixture {
	return &fixture{
		brands:      map[uuid.UUID]*domain.Brand{},
		products:    map[uuid.UUID]*domain.Product{},
		keys:        map[uuid.UUID]*domain.LicenseKey{},
		licenses:    map[uuid.UUID]*domain.License{},
		activations: map[uuid.UUID]*domain.Activation{},
		locks:       map[uuid.UUID]*sync.Mutex{},
	}
}

func (f *fixture) addBrand(t *testing.T, prefix string) *domain.Brand {
	t.Helper()
	b, err := domain.NewBrand("Acme "+prefix, "acme-"+uuid.NewString()[:8], prefix)
	require.NoError(t, err)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.brands[b.ID] = b
	return b
}

func (f *fixture) addProduct(t *testing.T, brand *domain.Brand) *domain.Product {
	t.Helper()
	p, err := domain.NewProduct(brand.ID, "Widget", "widget-"+uuid.NewString()[:8])
	require.NoError(t, err)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.products[p.ID] = p
	return p
}

func (f *fixture) addKey(t *testing.T, brand *domain.Brand) *domain.LicenseKey {
	t.Helper()
	k, err := domain.NewLicenseKey(brand.ID, brand.Prefix, "customer@example.com")
	require.NoError(t, err)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys[k.ID] = k
	return k
}

func (f *fixture) addLicense(t *testing.T, key *domain.LicenseKey, product *domain.Product, seats int, expiresAt *time.Time) *domain.License {
	t.Helper()
	lic, err := domain.NewLicense(key.ID, product.ID, seats, expiresAt)
	require.NoError(t, err)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.licenses[lic.ID] = lic
	return lic
}

// CatalogStore

func (f *fixture) GetBrand(_ context.Context, id uuid.UUID) (*domain.Brand, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b, ok := f.brands[id]; ok {
		c := *b
		return &c, nil
	}
	return nil, domain.ErrBrandNotFound
}

func (f *fixture) GetProduct(_ context.Context, id uuid.UUID) (*domain.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.products[id]; ok {
		c := *p
		return &c, nil
	}
	return nil, domain.ErrProductNotFound
}

// LicenseStore

func (f *fixture) Provision(_ context.Context, key *domain.LicenseKey, licenses []*domain.License) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := *key
	f.keys[key.ID] = &k
	for _, lic := range licenses {
		c := *lic
		f.licenses[lic.ID] = &c
	}
	return nil
}

func (f *fixture) GetKeyByHash(_ context.Context, keyHash string) (*domain.LicenseKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range f.keys {
		if k.KeyHash == keyHash {
			c := *k
			return &c, nil
		}
	}
	return nil, domain.ErrInvalidLicenseKey
}

func (f *fixture) GetKey(_ context.Context, id uuid.UUID) (*domain.LicenseKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if k, ok := f.keys[id]; ok {
		c := *k
		return &c, nil
	}
	return nil, domain.ErrLicenseNotFound
}

func (f *fixture) ListKeysByEmail(_ context.Context, brandID uuid.UUID, email string) ([]*domain.LicenseKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.LicenseKey
	for _, k := range f.keys {
		if k.BrandID == brandID && k.CustomerEmail == email {
			c := *k
			out = append(out, &c)
		}
	}
	return out, nil
}

func (f *fixture) GetLicense(_ context.Context, id uuid.UUID) (*domain.License, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if lic, ok := f.licenses[id]; ok {
		c := *lic
		return &c, nil
	}
	return nil, domain.ErrLicenseNotFound
}

func (f *fixture) GetLicenseByKeyAndProduct(_ context.Context, licenseKeyID, productID uuid.UUID) (*domain.License, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, lic := range f.licenses {
		if lic.LicenseKeyID == licenseKeyID && lic.ProductID == productID {
			c := *lic
			return &c, nil
		}
	}
	return nil, domain.ErrLicenseNotFound
}

func (f *fixture) ListLicensesByKey(_ context.Context, licenseKeyID uuid.UUID) ([]*domain.License, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.License
	for _, lic := range f.licenses {
		if lic.LicenseKeyID == licenseKeyID {
			c := *lic
			out = append(out, &c)
		}
	}
	return out, nil
}

func (f *fixture) UpdateLicense(_ context.Context, lic *domain.License) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.licenses[lic.ID]; !ok {
		return domain.ErrLicenseNotFound
	}
	c := *lic
	f.licenses[lic.ID] = &c
	return nil
}

func (f *fixture) ExpireDue(_ context.Context, now time.Time) ([]*domain.License, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.License
	for _, lic := range f.licenses {
		if lic.Status == domain.StatusValid && lic.ExpiresAt != nil && !lic.ExpiresAt.After(now) {
			lic.Status = domain.StatusExpired
			lic.UpdatedAt = now
			c := *lic
			out = append(out, &c)
		}
	}
	return out, nil
}

func (f *fixture) BrandOfLicense(_ context.Context, licenseID uuid.UUID) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	lic, ok := f.licenses[licenseID]
	if !ok {
		return uuid.Nil, domain.ErrLicenseNotFound
	}
	key, ok := f.keys[lic.LicenseKeyID]
	if !ok {
		return uuid.Nil, domain.ErrLicenseNotFound
	}
	return key.BrandID, nil
}

// ActivationStore

func (f *fixture) Create(_ context.Context, a *domain.Activation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.activations {
		if existing.LicenseID == a.LicenseID && existing.InstanceIdentifier == a.InstanceIdentifier {
			return domain.ErrDuplicateActive
		}
	}
	c := *a
	f.activations[a.ID] = &c
	return nil
}

func (f *fixture) Update(_ context.Context, a *domain.Activation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.activations[a.ID]; !ok {
		return domain.ErrActivationNotFound
	}
	c := *a
	f.activations[a.ID] = &c
	return nil
}

func (f *fixture) Get(_ context.Context, id uuid.UUID) (*domain.Activation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a, ok := f.activations[id]; ok {
		c := *a
		return &c, nil
	}
	return nil, domain.ErrActivationNotFound
}

func (f *fixture) GetByInstance(_ context.Context, licenseID uuid.UUID, identifier string) (*domain.Activation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.activations {
		if a.LicenseID == licenseID && a.InstanceIdentifier == identifier {
			c := *a
			return &c, nil
		}
	}
	return nil, domain.ErrActivationNotFound
}

func (f *fixture) CountActive(_ context.Context, licenseID uuid.UUID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, a := range f.activations {
		if a.LicenseID == licenseID && a.IsActive {
			n++
		}
	}
	return n, nil
}

func (f *fixture) List(_ context.Context, licenseID uuid.UUID, activeOnly bool, identifier string) ([]*domain.Activation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Activation
	for _, a := range f.activations {
		if a.LicenseID != licenseID {
			continue
		}
		if activeOnly && !a.IsActive {
			continue
		}
		if identifier != "" && a.InstanceIdentifier != identifier {
			continue
		}
		c := *a
		out = append(out, &c)
	}
	return out, nil
}

func (f *fixture) TouchChecked(_ context.Context, licenseID uuid.UUID, identifier string, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.activations {
		if a.LicenseID == licenseID && a.IsActive && (identifier == "" || a.InstanceIdentifier == identifier) {
			a.LastCheckedAt = now
		}
	}
	return nil
}

// Locker

func (f *fixture) WithLicenseLock(ctx context.Context, licenseID uuid.UUID, fn func(ctx context.Context) error) error {
	f.mu.Lock()
	if _, ok := f.licenses[licenseID]; !ok {
		f.mu.Unlock()
		return domain.ErrLicenseNotFound
	}
	lock, ok := f.locks[licenseID]
	if !ok {
		lock = &sync.Mutex{}
		f.locks[licenseID] = lock
	}
	f.mu.Unlock()

	lock.Lock()
	defer lock.Unlock()
	return fn(ctx)
}

// recordBus captures published events synchronously.
type recordBus struct {
	mu     sync.Mutex
	events []domain.Event
}

func (b *recordBus) Publish(_ context.Context, events ...domain.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, events...)
}

func (b *recordBus) byType(eventType string) []domain.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []domain.Event
	for _, e := range b.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

// fakeCache is an in-memory StatusCacher.
type fakeCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	hits    int
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: map[string][]byte{}}
}

func (c *fakeCache) Get(_ context.Context, raw string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	payload, ok := c.entries[raw]
	if ok {
		c.hits++
	}
	return payload, ok
}

func (c *fakeCache) Set(_ context.Context, raw string, payload []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[raw] = payload
}

func (c *fakeCache) Delete(_ context.Context, raw string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, raw)
}

func ptrTime(t time.Time) *time.Time { return &t }
