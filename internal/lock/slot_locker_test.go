package lock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNilLockerIsNoop(t *testing.T) {
	locker := NewSlotLocker(nil, zap.NewNop())
	assert.Nil(t, locker)

	lease, err := locker.Acquire(context.Background(), []string{"a", "b"}, time.Second)
	require.NoError(t, err)
	require.NotNil(t, lease)
	lease.Release(context.Background())

	var nilLease *Lease
	nilLease.Release(context.Background())
}

func TestSlotKey(t *testing.T) {
	date := time.Date(2026, 2, 14, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "boukii:slot:77:2026-02-14", SlotKey(77, date))
}
