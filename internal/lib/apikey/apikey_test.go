package apikey

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate(t *testing.T) {
	key, err := Generate()
	require.NoError(t, err)
	assert.Len(t, key, Len)

	_, err = hex.DecodeString(key)
	assert.NoError(t, err, "api key should be a hex string")
}

func TestGenerateUnique(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		key, err := Generate()
		require.NoError(t, err)
		_, dup := seen[key]
		require.False(t, dup, "generated duplicate api key")
		seen[key] = struct{}{}
	}
}
