// Package domain provides type-safe identifiers to prevent mixing up IDs at compile time.
package domain

import (
	"github.com/google/uuid"

	dErrors "campusgate/pkg/domain-errors"
)

// Distinct ID types - compiler prevents passing PrincipalID where TenantID is expected.
type (
	PrincipalID uuid.UUID
	TenantID    uuid.UUID
	OperationID uuid.UUID
)

// Parse functions - use at trust boundaries (handlers, token claims, event payloads).

func ParsePrincipalID(s string) (PrincipalID, error) {
	id, err := parseUUID(s, "principal ID")
	return PrincipalID(id), err
}

func ParseTenantID(s string) (TenantID, error) {
	id, err := parseUUID(s, "tenant ID")
	return TenantID(id), err
}

func ParseOperationID(s string) (OperationID, error) {
	id, err := parseUUID(s, "operation ID")
	return OperationID(id), err
}

// String methods - for logging and debugging.

func (id PrincipalID) String() string { return uuid.UUID(id).String() }
func (id TenantID) String() string    { return uuid.UUID(id).String() }
func (id OperationID) String() string { return uuid.UUID(id).String() }

// IsNil checks - used for service-layer validation.

func (id PrincipalID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id TenantID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id OperationID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

// NewTenantID and friends mint random identifiers for provisioning and tests.

func NewTenantID() TenantID       { return TenantID(uuid.New()) }
func NewPrincipalID() PrincipalID { return PrincipalID(uuid.New()) }
func NewOperationID() OperationID { return OperationID(uuid.New()) }

// parseUUID is the shared validation logic. The nil UUID is rejected: no
// tenant, principal or operation is ever addressed by it.
func parseUUID(s, label string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" cannot be empty")
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+label+" format")
	}
	if id == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" cannot be nil")
	}
	return id, nil
}
