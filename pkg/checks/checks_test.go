package checks

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRegistry struct {
	count int
	err   error
}

func (f fakeRegistry) CountInstances(context.Context) (int, error) {
	return f.count, f.err
}

func TestCheckSingleInstance(t *testing.T) {
	logger, _ := test.NewNullLogger()

	tests := []struct {
		name     string
		registry fakeRegistry
		wantErr  error
	}{
		{name: "only this session", registry: fakeRegistry{count: 1}},
		{name: "not registered yet", registry: fakeRegistry{count: 0}},
		{name: "second instance", registry: fakeRegistry{count: 2}, wantErr: ErrAlreadyRunning},
		{name: "async jobs of a previous run", registry: fakeRegistry{count: 5}, wantErr: ErrAlreadyRunning},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckSingleInstance(context.Background(), tt.registry, logger)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestCheckSingleInstanceRegistryError(t *testing.T) {
	logger, _ := test.NewNullLogger()
	err := CheckSingleInstance(context.Background(), fakeRegistry{err: errors.New("timeout")}, logger)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrAlreadyRunning)
	assert.ErrorContains(t, err, "timeout")
}

func TestHostLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pgvacuum.lock")

	first, err := AcquireHostLock(path)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, path, first.Path())

	_, err = AcquireHostLock(path)
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	require.NoError(t, first.Release())

	again, err := AcquireHostLock(path)
	require.NoError(t, err)
	require.NoError(t, again.Release())
}

func TestHostLockDisabled(t *testing.T) {
	lock, err := AcquireHostLock("")
	require.NoError(t, err)
	assert.Nil(t, lock)
	assert.NoError(t, lock.Release())
	assert.Empty(t, lock.Path())
}
