package password

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestGenerateTemporary(t *testing.T) {
	seen := make(map[string]struct{})
	for range 50 {
		pw, err := GenerateTemporary()
		require.NoError(t, err)
		require.Len(t, pw, TemporaryLength)
		for _, r := range pw {
			assert.True(t, strings.ContainsRune(TemporaryAlphabet, r), "unexpected rune %q", r)
		}
		seen[pw] = struct{}{}
	}
	assert.Len(t, seen, 50)
}

func TestTemporaryAlphabetHasNoConfusables(t *testing.T) {
	for _, r := range "0O1lI" {
		assert.False(t, strings.ContainsRune(TemporaryAlphabet, r), "alphabet contains %q", r)
	}
}

func TestHasherRoundTrip(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)

	hash, err := h.Hash("s3cret-Pass")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret-Pass", hash)

	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("s3cret-Pass")))
	assert.Error(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("wrong")))

	cost, err := bcrypt.Cost([]byte(hash))
	require.NoError(t, err)
	assert.Equal(t, bcrypt.MinCost, cost)
}

func TestNewHasherClampsCost(t *testing.T) {
	assert.Equal(t, bcrypt.DefaultCost, NewHasher(0).cost)
	assert.Equal(t, bcrypt.DefaultCost, NewHasher(99).cost)
}
