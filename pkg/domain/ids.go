package domain

import (
	"github.com/google/uuid"

	dErrors "provenance/pkg/domain-errors"
)

// EvidenceID identifies an evidence record. It is a UUIDv7 so identifiers are
// globally unique and time-ordered, which makes them usable as locking and
// idempotency keys without a separate sequence.
type EvidenceID uuid.UUID

// NewEvidenceID generates a fresh time-ordered identifier. Generation is the
// only place an EvidenceID comes into existence; records never change theirs.
func NewEvidenceID() EvidenceID {
	id, err := uuid.NewV7()
	if err != nil {
		// NewV7 only fails when the random source does; fall back to v4
		// rather than propagate an error through every submission path.
		return EvidenceID(uuid.New())
	}
	return EvidenceID(id)
}

// ParseEvidenceID validates an identifier at trust boundaries. Empty, malformed
// and nil UUIDs are rejected so downstream code can assume a usable key.
func ParseEvidenceID(raw string) (EvidenceID, error) {
	if raw == "" {
		return EvidenceID{}, dErrors.New(dErrors.CodeValidation, "evidence id is required")
	}
	parsed, err := uuid.Parse(raw)
	if err != nil {
		return EvidenceID{}, dErrors.New(dErrors.CodeValidation, "evidence id must be a valid UUID")
	}
	if parsed == uuid.Nil {
		return EvidenceID{}, dErrors.New(dErrors.CodeValidation, "evidence id must not be the nil UUID")
	}
	return EvidenceID(parsed), nil
}

func (id EvidenceID) String() string {
	return uuid.UUID(id).String()
}

// IsZero reports whether the id is the zero value.
func (id EvidenceID) IsZero() bool {
	return uuid.UUID(id) == uuid.Nil
}

func (id EvidenceID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *EvidenceID) UnmarshalText(text []byte) error {
	parsed, err := ParseEvidenceID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
