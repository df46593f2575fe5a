package models

import "time"

type ChallengeStatus string

const (
	ChallengeNone     ChallengeStatus = "none"
	ChallengePending  ChallengeStatus = "pending"
	ChallengeApproved ChallengeStatus = "approved"
	ChallengeDenied   ChallengeStatus = "denied"
)

// ProviderApproved is the status string an OTP provider reports for a
// correct code.
const ProviderApproved = "approved"

type OTPChallenge struct {
	Status         ChallengeStatus `json:"status"`
	ProviderStatus string          `json:"provider_status"`
	UpdatedAt      time.Time       `json:"updated_at"`
	ApprovedUntil  time.Time       `json:"approved_until"`
}

// Authorized reports whether the challenge grants a vote at the given time.
func (c OTPChallenge) Authorized(now time.Time) bool {
	return c.Status == ChallengeApproved && now.Before(c.ApprovedUntil)
}
