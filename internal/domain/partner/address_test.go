package partner

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/supplychain/backend/internal/domain/shared"
)

func TestNormalizeAddress(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"0xAA", "0xaa"},
		{"0xaa", "0xaa"},
		{"  0xAbCdEf  ", "0xabcdef"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := NormalizeAddress(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, NormalizeAddress(got), "normalization must be idempotent")
		})
	}
}

func TestSameAddress(t *testing.T) {
	assert.True(t, SameAddress("0xAA", "0xaa"))
	assert.True(t, SameAddress(" 0xAA", "0XAA "))
	assert.False(t, SameAddress("0xaa", "0xbb"))
}

func TestValidatePair(t *testing.T) {
	t.Run("accepts distinct addresses", func(t *testing.T) {
		assert.NoError(t, ValidatePair("0xAA", "0xBB"))
	})

	t.Run("rejects self reference in any casing", func(t *testing.T) {
		for _, b := range []string{"0xaa", "0xAA", "0Xaa", " 0xaA "} {
			err := ValidatePair("0xAa", b)
			require.Error(t, err, b)
			assert.True(t, shared.IsValidation(err))
			assert.ErrorIs(t, err, ErrSelfRelationship)
		}
	})

	t.Run("rejects empty self address", func(t *testing.T) {
		err := ValidatePair("   ", "0xbb")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "self_address is required")
	})

	t.Run("rejects empty company address", func(t *testing.T) {
		err := ValidatePair("0xaa", "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "company_address is required")
	})

	t.Run("rejects non-ASCII and inner whitespace", func(t *testing.T) {
		for _, a := range []string{"0xÄÖ", "ǅeer", "0x\u0130bb", "0xaa bb", "0xaa\tbb"} {
			err := ValidatePair(a, "0xbb")
			require.Error(t, err, a)
			assert.True(t, shared.IsValidation(err))
			assert.Contains(t, err.Error(), "printable ASCII")
		}
	})

	t.Run("rejects overlong address", func(t *testing.T) {
		err := ValidatePair("0x"+strings.Repeat("a", MaxAddressLength), "0xbb")
		require.Error(t, err)
		assert.True(t, shared.IsValidation(err))
	})
}
