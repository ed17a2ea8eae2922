package service

import (
	"encoding/json"
	"fmt"
	"time"

	"go-banking-client/internal/model"
)

const identityRecordVersion = 1

// RecordStatus is the outcome of reading the persisted identity record.
type RecordStatus int

const (
	RecordAbsent RecordStatus = iota
	RecordValid
	RecordCorrupt
)

func (s RecordStatus) String() string {
	switch s {
	case RecordAbsent:
		return "absent"
	case RecordValid:
		return "valid"
	case RecordCorrupt:
		return "corrupt"
	default:
		return "unknown"
	}
}

// ParsedRecord holds Identity only when Status is RecordValid, and Reason only
// when it is RecordCorrupt.
type ParsedRecord struct {
	Status   RecordStatus
	Identity model.Identity
	Reason   string
}

type identityRecord struct {
	Version     int       `json:"version"`
	ID          string    `json:"id" validate:"required"`
	Name        string    `json:"name" validate:"required"`
	Email       string    `json:"email" validate:"required,email"`
	AccessToken string    `json:"access_token" validate:"required"`
	IssuedAt    time.Time `json:"issued_at"`
}

func encodeIdentityRecord(identity model.Identity) ([]byte, error) {
	return json.Marshal(identityRecord{
		Version:     identityRecordVersion,
		ID:          identity.ID,
		Name:        identity.Name,
		Email:       identity.Email,
		AccessToken: identity.AccessToken,
		IssuedAt:    identity.IssuedAt.UTC(),
	})
}

// ParseIdentityRecord classifies raw stored bytes. nil or empty input is
// RecordAbsent.
func ParseIdentityRecord(raw []byte) ParsedRecord {
	if len(raw) == 0 {
		return ParsedRecord{Status: RecordAbsent}
	}

	var rec identityRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return ParsedRecord{Status: RecordCorrupt, Reason: "malformed json"}
	}

	if rec.Version != identityRecordVersion {
		return ParsedRecord{Status: RecordCorrupt, Reason: fmt.Sprintf("unsupported record version %d", rec.Version)}
	}

	if err := validate.Struct(rec); err != nil {
		return ParsedRecord{Status: RecordCorrupt, Reason: describeValidation(err)}
	}

	if rec.IssuedAt.IsZero() {
		return ParsedRecord{Status: RecordCorrupt, Reason: "issued_at missing"}
	}

	return ParsedRecord{
		Status: RecordValid,
		Identity: model.Identity{
			ID:          rec.ID,
			Name:        rec.Name,
			Email:       rec.Email,
			AccessToken: rec.AccessToken,
			IssuedAt:    rec.IssuedAt,
		},
	}
}
