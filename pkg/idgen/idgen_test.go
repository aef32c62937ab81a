package idgen

import (
	"testing"

	"github.com/GlebRadaev/coursepay/pkg/validate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerator_NextOrderNumber(t *testing.T) {
	gen, err := New(1)
	require.NoError(t, err)

	seen := make(map[string]struct{})
	for i := 0; i < 1000; i++ {
		n := gen.NextOrderNumber()
		assert.True(t, validate.IsLuna(n), n)
		_, dup := seen[n]
		assert.False(t, dup)
		seen[n] = struct{}{}
	}
}

func TestNew_InvalidNode(t *testing.T) {
	_, err := New(-1)
	assert.Error(t, err)
}
