package models

import "time"

type RegistrationState string

const (
	RegistrationPending    RegistrationState = "pending"
	RegistrationRegistered RegistrationState = "registered"
)

// UnknownMobileNumber is stored when a registration carries no mobile number.
const UnknownMobileNumber = "0000000000"

// VoterRecord is one row of the voters table. JSON tags follow the column
// names so the record can travel to and from the REST store unchanged.
type VoterRecord struct {
	ID              string    `json:"id,omitempty"`
	NationalID      string    `json:"aadhaar_no"`
	FullName        string    `json:"name"`
	MobileNumber    string    `json:"mobile_no"`
	DateOfBirth     string    `json:"dob"`
	Email           string    `json:"email,omitempty"`
	WalletAddress   string    `json:"metamask_address"`
	Registered      bool      `json:"is_registered"`
	FingerprintHash string    `json:"fingerprint_hash,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (r *VoterRecord) State() RegistrationState {
	if r.Registered {
		return RegistrationRegistered
	}
	return RegistrationPending
}

// RegistrationInput is the raw registration payload before normalisation.
type RegistrationInput struct {
	NationalID      string
	FullName        string
	MobileNumber    string
	DateOfBirth     string
	Email           string
	WalletAddress   string
	FingerprintHash string
}

type RegistrationResult struct {
	Record    *VoterRecord
	WasUpdate bool
}
