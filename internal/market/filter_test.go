package market

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileListingFilterEmpty(t *testing.T) {
	f, err := CompileListingFilter("")
	require.NoError(t, err)
	assert.Nil(t, f)
	assert.True(t, f.Match(100, 1), "nil filter must match everything")
}

func TestCompileListingFilterInvalid(t *testing.T) {
	_, err := CompileListingFilter("UnitPrice +")
	assert.Error(t, err)

	_, err = CompileListingFilter("NoSuchField > 2")
	assert.Error(t, err)
}

func TestListingFilterMatch(t *testing.T) {
	f, err := CompileListingFilter("Quantity >= 10 && UnitPrice * Quantity <= 5000")
	require.NoError(t, err)

	assert.True(t, f.Match(100, 50))
	assert.False(t, f.Match(100, 5), "quantity below threshold")
	assert.False(t, f.Match(600, 10), "total above cap")
	assert.Equal(t, "Quantity >= 10 && UnitPrice * Quantity <= 5000", f.Source())
}
