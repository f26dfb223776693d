package correlation

import (
	"context"
	"strings"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureCorrelationIDGeneratesULID(t *testing.T) {
	ctx, cid := EnsureCorrelationID(context.Background())
	require.NotEmpty(t, cid)
	_, err := ulid.ParseStrict(cid)
	require.NoError(t, err)
	assert.Equal(t, cid, ExtractCorrelationID(ctx))
}

func TestEnsureCorrelationIDKeepsExisting(t *testing.T) {
	ctx := ContextWithCorrelationID(context.Background(), " reserve-42 ")
	_, cid := EnsureCorrelationID(ctx)
	assert.Equal(t, "reserve-42", cid)
}

func TestContextWithCorrelationIDIgnoresBlank(t *testing.T) {
	ctx := ContextWithCorrelationID(context.Background(), "  ")
	assert.Empty(t, ExtractCorrelationID(ctx))
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "checkout:77", Sanitize(" checkout:77 "))
	assert.Empty(t, Sanitize("drop table;"))
	assert.Empty(t, Sanitize(strings.Repeat("a", 65)))
	assert.Equal(t, strings.Repeat("a", 64), Sanitize(strings.Repeat("a", 64)))
}
