package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLicense(t *testing.T, status LicenseStatus, expiresAt *time.Time) License {
	t.Helper()
	lic, err := NewLicense(uuid.New(), uuid.New(), 2, expiresAt)
	require.NoError(t, err)
	lic.Status = status
	return *lic
}

func ptrTime(t time.Time) *time.Time { return &t }

func TestNewLicenseDefaults(t *testing.T) {
	lic, err := NewLicense(uuid.New(), uuid.New(), 1, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusValid, lic.Status)
	assert.Equal(t, 1, lic.SeatLimit)
	assert.Nil(t, lic.ExpiresAt)
}

func TestNewLicenseRejectsZeroSeatLimit(t *testing.T) {
	_, err := NewLicense(uuid.New(), uuid.New(), 0, nil)
	require.Error(t, err)
	assert.Equal(t, CodeValidationError, CodeOf(err))
}

func TestLicenseIsValid(t *testing.T) {
	now := time.Now().UTC()

	tests := []struct {
		name      string
		status    LicenseStatus
		expiresAt *time.Time
		want      bool
	}{
		{"valid no expiration", StatusValid, nil, true},
		{"valid future expiration", StatusValid, ptrTime(now.Add(time.Hour)), true},
		{"valid past expiration", StatusValid, ptrTime(now.Add(-time.Second)), false},
		{"expires exactly now counts as expired", StatusValid, ptrTime(now), false},
		{"suspended", StatusSuspended, nil, false},
		{"cancelled", StatusCancelled, nil, false},
		{"expired", StatusExpired, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lic := newTestLicense(t, tt.status, tt.expiresAt)
			assert.Equal(t, tt.want, lic.IsValid(now))
		})
	}
}

func TestLicenseTransitions(t *testing.T) {
	now := time.Now().UTC()
	future := now.Add(30 * 24 * time.Hour)

	tests := []struct {
		name     string
		from     LicenseStatus
		apply    func(License) (License, error)
		wantCode string
		wantTo   LicenseStatus
	}{
		{"renew valid", StatusValid, func(l License) (License, error) { return l.Renew(future, now) }, "", StatusValid},
		{"renew suspended keeps suspension", StatusSuspended, func(l License) (License, error) { return l.Renew(future, now) }, "", StatusSuspended},
		{"renew expired revives", StatusExpired, func(l License) (License, error) { return l.Renew(future, now) }, "", StatusValid},
		{"renew cancelled fails", StatusCancelled, func(l License) (License, error) { return l.Renew(future, now) }, CodeInvalidLicenseStatus, StatusCancelled},
		{"renew into past fails", StatusValid, func(l License) (License, error) { return l.Renew(now.Add(-time.Hour), now) }, CodeInvalidExpiration, StatusValid},
		{"suspend valid", StatusValid, func(l License) (License, error) { return l.Suspend(now) }, "", StatusSuspended},
		{"suspend suspended fails", StatusSuspended, func(l License) (License, error) { return l.Suspend(now) }, CodeInvalidLicenseStatus, StatusSuspended},
		{"suspend cancelled fails", StatusCancelled, func(l License) (License, error) { return l.Suspend(now) }, CodeInvalidLicenseStatus, StatusCancelled},
		{"resume suspended", StatusSuspended, func(l License) (License, error) { return l.Resume(now) }, "", StatusValid},
		{"resume valid fails", StatusValid, func(l License) (License, error) { return l.Resume(now) }, CodeInvalidLicenseStatus, StatusValid},
		{"resume cancelled fails", StatusCancelled, func(l License) (License, error) { return l.Resume(now) }, CodeInvalidLicenseStatus, StatusCancelled},
		{"cancel valid", StatusValid, func(l License) (License, error) { return l.Cancel(now) }, "", StatusCancelled},
		{"cancel suspended", StatusSuspended, func(l License) (License, error) { return l.Cancel(now) }, "", StatusCancelled},
		{"cancel expired", StatusExpired, func(l License) (License, error) { return l.Cancel(now) }, "", StatusCancelled},
		{"cancel cancelled fails", StatusCancelled, func(l License) (License, error) { return l.Cancel(now) }, CodeInvalidLicenseStatus, StatusCancelled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lic := newTestLicense(t, tt.from, nil)
			got, err := tt.apply(lic)
			if tt.wantCode != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantCode, CodeOf(err))
				// Failed transitions must not mutate state.
				assert.Equal(t, tt.from, got.Status)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantTo, got.Status)
		})
	}
}

func TestLicenseMarkExpired(t *testing.T) {
	now := time.Now().UTC()

	t.Run("valid past expiration becomes expired", func(t *testing.T) {
		lic := newTestLicense(t, StatusValid, ptrTime(now.Add(-time.Second)))
		got, err := lic.MarkExpired(now)
		require.NoError(t, err)
		assert.Equal(t, StatusExpired, got.Status)
	})

	t.Run("valid future expiration untouched", func(t *testing.T) {
		lic := newTestLicense(t, StatusValid, ptrTime(now.Add(time.Hour)))
		_, err := lic.MarkExpired(now)
		require.Error(t, err)
	})

	t.Run("suspended untouched by sweep", func(t *testing.T) {
		lic := newTestLicense(t, StatusSuspended, ptrTime(now.Add(-time.Hour)))
		_, err := lic.MarkExpired(now)
		require.Error(t, err)
	})

	t.Run("cancelled untouched by sweep", func(t *testing.T) {
		lic := newTestLicense(t, StatusCancelled, ptrTime(now.Add(-time.Hour)))
		_, err := lic.MarkExpired(now)
		require.Error(t, err)
	})
}

func TestLicenseValidityError(t *testing.T) {
	now := time.Now().UTC()

	tests := []struct {
		name      string
		status    LicenseStatus
		expiresAt *time.Time
		wantCode  string
	}{
		{"valid", StatusValid, nil, ""},
		{"suspended", StatusSuspended, nil, CodeLicenseSuspended},
		{"cancelled", StatusCancelled, nil, CodeLicenseCancelled},
		{"expired status", StatusExpired, nil, CodeLicenseExpired},
		{"valid but past expiry", StatusValid, ptrTime(now.Add(-time.Minute)), CodeLicenseExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lic := newTestLicense(t, tt.status, tt.expiresAt)
			err := lic.ValidityError(now)
			if tt.wantCode == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, CodeOf(err))
		})
	}
}

func TestRenewExpiredRestoresActivationEligibility(t *testing.T) {
	now := time.Now().UTC()
	lic := newTestLicense(t, StatusValid, ptrTime(now.Add(-time.Second)))

	expired, err := lic.MarkExpired(now)
	require.NoError(t, err)
	require.Error(t, expired.ValidityError(now))

	renewed, err := expired.Renew(now.Add(30*24*time.Hour), now)
	require.NoError(t, err)
	assert.Equal(t, StatusValid, renewed.Status)
	assert.NoError(t, renewed.ValidityError(now))
}
