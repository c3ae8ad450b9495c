// Package domain holds typed identifiers shared across the registration and
// payment modules. Each ID wraps a UUID so the compiler rejects passing a race
// ID where a registration ID is expected.
package domain

import (
	"github.com/google/uuid"

	dErrors "racereg/pkg/domain-errors"
)

type (
	// UserID identifies an authenticated principal: a runner or an organizer.
	UserID         uuid.UUID
	RaceID         uuid.UUID
	DistanceID     uuid.UUID
	RegistrationID uuid.UUID
)

func (id UserID) String() string         { return uuid.UUID(id).String() }
func (id RaceID) String() string         { return uuid.UUID(id).String() }
func (id DistanceID) String() string     { return uuid.UUID(id).String() }
func (id RegistrationID) String() string { return uuid.UUID(id).String() }

func (id UserID) IsNil() bool         { return uuid.UUID(id) == uuid.Nil }
func (id RaceID) IsNil() bool         { return uuid.UUID(id) == uuid.Nil }
func (id DistanceID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id RegistrationID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

func (id UserID) MarshalText() ([]byte, error)         { return []byte(id.String()), nil }
func (id RaceID) MarshalText() ([]byte, error)         { return []byte(id.String()), nil }
func (id DistanceID) MarshalText() ([]byte, error)     { return []byte(id.String()), nil }
func (id RegistrationID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

// UnmarshalText accepts the canonical UUID form and the empty string, which
// decodes to the nil ID.
func (id *UserID) UnmarshalText(b []byte) error {
	u, err := unmarshalUUID(b, "user")
	*id = UserID(u)
	return err
}

func (id *RaceID) UnmarshalText(b []byte) error {
	u, err := unmarshalUUID(b, "race")
	*id = RaceID(u)
	return err
}

func (id *DistanceID) UnmarshalText(b []byte) error {
	u, err := unmarshalUUID(b, "distance")
	*id = DistanceID(u)
	return err
}

func (id *RegistrationID) UnmarshalText(b []byte) error {
	u, err := unmarshalUUID(b, "registration")
	*id = RegistrationID(u)
	return err
}

func unmarshalUUID(b []byte, kind string) (uuid.UUID, error) {
	if len(b) == 0 {
		return uuid.Nil, nil
	}
	u, err := uuid.ParseBytes(b)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind+" ID format")
	}
	return u, nil
}

// NewRegistrationID returns a fresh random registration ID.
func NewRegistrationID() RegistrationID { return RegistrationID(uuid.New()) }

func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID(s, "user")
	return UserID(u), err
}

func ParseRaceID(s string) (RaceID, error) {
	u, err := parseUUID(s, "race")
	return RaceID(u), err
}

func ParseDistanceID(s string) (DistanceID, error) {
	u, err := parseUUID(s, "distance")
	return DistanceID(u), err
}

// ParseRegistrationID is also used to map a gateway transaction reference back
// to the registration it pays for.
func ParseRegistrationID(s string) (RegistrationID, error) {
	u, err := parseUUID(s, "registration")
	return RegistrationID(u), err
}

func parseUUID(s, kind string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" ID is required")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind+" ID format")
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" ID cannot be nil")
	}
	return u, nil
}
