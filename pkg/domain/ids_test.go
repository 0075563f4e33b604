package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "campusgate/pkg/domain-errors"
)

// TestParseUUID_Invariants validates the parsing invariant:
// "IDs must be valid, non-empty, non-nil UUIDs"
func TestParseUUID_Invariants(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseTenantID("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects invalid format", func(t *testing.T) {
		_, err := ParsePrincipalID("not-a-uuid")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects nil UUID", func(t *testing.T) {
		_, err := ParseOperationID(uuid.Nil.String())
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("accepts valid UUID", func(t *testing.T) {
		validUUID := uuid.New()
		id, err := ParseTenantID(validUUID.String())
		require.NoError(t, err)
		assert.Equal(t, TenantID(validUUID), id)
		assert.Equal(t, validUUID.String(), id.String())
	})
}

// TestTypeDistinction verifies the compiler enforces type safety.
// This is a compile-time check - if this compiles, the invariant holds.
func TestTypeDistinction(t *testing.T) {
	principalID := NewPrincipalID()
	tenantID := NewTenantID()

	// These would fail to compile if types were interchangeable:
	// var _ PrincipalID = tenantID   // compile error
	// var _ TenantID = principalID   // compile error

	assert.NotEqual(t, uuid.UUID(principalID), uuid.UUID(tenantID))
	assert.False(t, tenantID.IsNil())
	assert.True(t, TenantID{}.IsNil())
}
