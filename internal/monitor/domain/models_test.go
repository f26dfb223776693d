package domain

import (
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	base := snowflake.ID(10)

	got := Resolve(&base, nil)
	require.NotNil(t, got)
	assert.Equal(t, base, *got)

	got = Resolve(&base, &IntervalMonitor{MonitorID: 20, Active: true})
	require.NotNil(t, got)
	assert.EqualValues(t, 20, *got)

	got = Resolve(&base, &IntervalMonitor{MonitorID: 20, Active: false})
	require.NotNil(t, got)
	assert.Equal(t, base, *got)

	assert.Nil(t, Resolve(nil, nil))
	assert.Nil(t, Resolve(nil, &IntervalMonitor{MonitorID: 20}))
}

func TestResolveDoesNotAliasInputs(t *testing.T) {
	base := snowflake.ID(10)
	got := Resolve(&base, nil)
	*got = 99
	assert.EqualValues(t, 10, base)
}
