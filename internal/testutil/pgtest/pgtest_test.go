package pgtest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithSearchPath(t *testing.T) {
	assert.Equal(t, "host=db user=app search_path=s1", withSearchPath("host=db user=app", "s1"))
	assert.Equal(t, "postgres://app@db/boukii?search_path=s1", withSearchPath("postgres://app@db/boukii", "s1"))
	assert.Equal(t, "postgres://app@db/boukii?sslmode=disable&search_path=s1",
		withSearchPath("postgres://app@db/boukii?sslmode=disable", "s1"))
}
