package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewAvailabilityClampsRemaining(t *testing.T) {
	a := NewAvailability(1, 2, 3, 5)
	assert.Equal(t, 0, a.Remaining)
	assert.Equal(t, 5, a.Occupied)

	a = NewAvailability(1, 2, 10, 4)
	assert.Equal(t, 6, a.Remaining)
}

func TestAdmits(t *testing.T) {
	assert.True(t, NewAvailability(1, 2, 3, 1).Admits(2))
	assert.False(t, NewAvailability(1, 2, 3, 2).Admits(2))
	assert.False(t, NewAvailability(1, 2, 0, 0).Admits(1))
	assert.False(t, NewAvailability(1, 2, 3, 0).Admits(0))
}
