package uuid_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orderflow/orderflow/internal/domain/uuid"
)

func TestNewUUID(t *testing.T) {
	a := uuid.NewUUID()
	b := uuid.NewUUID()

	assert.False(t, a.IsZero())
	assert.NotEqual(t, a, b)
}

func TestParseUUID_Valid(t *testing.T) {
	id, err := uuid.ParseUUID("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

	require.NoError(t, err)
	assert.Equal(t, "6ba7b810-9dad-11d1-80b4-00c04fd430c8", id.String())
}

func TestParseUUID_Invalid(t *testing.T) {
	_, err := uuid.ParseUUID("not-a-uuid")

	require.Error(t, err)
}

func TestMustParseUUID_Panics(t *testing.T) {
	assert.Panics(t, func() {
		uuid.MustParseUUID("broken")
	})
}

func TestIsZero(t *testing.T) {
	var zero uuid.UUID

	assert.True(t, zero.IsZero())
	assert.False(t, uuid.NewUUID().IsZero())
}
