package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"voting-gateway/encryption"
	"voting-gateway/logging"
	"voting-gateway/models"
	"voting-gateway/otp"
)

const (
	DefaultApprovalTTL  = 10 * time.Minute
	DefaultChallengeTTL = 10 * time.Minute
)

// AuthorizationGate tracks the OTP state of each destination:
//
//	none/denied/approved --start--> pending --check--> approved | denied
//
// An approval lasts approvalTTL unless Consume is called first. Starting a
// new challenge drops any earlier approval.
type AuthorizationGate struct {
	provider      otp.Provider
	store         ApprovalStore
	cryptoService *encryption.CryptoService
	approvalTTL   time.Duration
	challengeTTL  time.Duration
	now           func() time.Time
}

// NewAuthorizationGate builds a gate. A nil provider leaves the gate
// answering every challenge operation with models.ErrProviderUnavailable.
func NewAuthorizationGate(provider otp.Provider, store ApprovalStore, approvalTTL time.Duration) *AuthorizationGate {
	if approvalTTL <= 0 {
		approvalTTL = DefaultApprovalTTL
	}
	if store == nil {
		store = NewMemoryApprovalStore()
	}
	return &AuthorizationGate{
		provider:      provider,
		store:         store,
		cryptoService: encryption.NewCryptoService(),
		approvalTTL:   approvalTTL,
		challengeTTL:  DefaultChallengeTTL,
		now:           time.Now,
	}
}

func (g *AuthorizationGate) Enabled() bool {
	return g.provider != nil
}

// StartChallenge asks the provider to deliver a code to destination.
func (g *AuthorizationGate) StartChallenge(ctx context.Context, destination string) (string, error) {
	destination = strings.TrimSpace(destination)
	if destination == "" {
		return "", fmt.Errorf("%w: 'to' is required", models.ErrMissingInput)
	}
	if !g.Enabled() {
		return "", models.ErrProviderUnavailable
	}

	status, err := g.provider.Send(ctx, destination)
	if err != nil {
		otpChallengesTotal.WithLabelValues("send", "failed").Inc()
		return "", fmt.Errorf("%w: %v", models.ErrDeliveryFailed, err)
	}

	err = g.store.Put(ctx, g.key(destination), models.OTPChallenge{
		Status:         models.ChallengePending,
		ProviderStatus: status,
		UpdatedAt:      g.now().UTC(),
	}, g.challengeTTL)
	if err != nil {
		return "", fmt.Errorf("failed to record challenge: %w", err)
	}

	otpChallengesTotal.WithLabelValues("send", status).Inc()
	return status, nil
}

// CheckChallenge verifies code for destination. Only a pending challenge
// reaches the provider; any other state answers denied without a call.
func (g *AuthorizationGate) CheckChallenge(ctx context.Context, destination, code string) (bool, string, error) {
	destination = strings.TrimSpace(destination)
	code = strings.TrimSpace(code)
	if destination == "" || code == "" {
		return false, "", fmt.Errorf("%w: 'to' and 'code' are required", models.ErrMissingInput)
	}
	if !g.Enabled() {
		return false, "", models.ErrProviderUnavailable
	}

	key := g.key(destination)
	current, err := g.store.Get(ctx, key)
	if err != nil {
		return false, "", fmt.Errorf("failed to read challenge: %w", err)
	}
	if current == nil || current.Status != models.ChallengePending {
		otpChallengesTotal.WithLabelValues("check", "no_challenge").Inc()
		return false, string(models.ChallengeDenied), nil
	}

	status, err := g.provider.Check(ctx, destination, code)
	if err != nil {
		otpChallengesTotal.WithLabelValues("check", "failed").Inc()
		return false, "", fmt.Errorf("%w: %v", models.ErrDeliveryFailed, err)
	}

	now := g.now().UTC()
	next := models.OTPChallenge{
		Status:         models.ChallengeDenied,
		ProviderStatus: status,
		UpdatedAt:      now,
	}
	approved := status == models.ProviderApproved
	if approved {
		next.Status = models.ChallengeApproved
		next.ApprovedUntil = now.Add(g.approvalTTL)
	}

	if err := g.store.Put(ctx, key, next, g.approvalTTL); err != nil {
		return false, "", fmt.Errorf("failed to record challenge: %w", err)
	}

	otpChallengesTotal.WithLabelValues("check", status).Inc()
	logging.Logger.Info().
		Str("to", logging.Mask(destination)).
		Str("state", string(next.Status)).
		Msg("otp checked")

	return approved, status, nil
}

// State reports the current challenge for destination.
func (g *AuthorizationGate) State(ctx context.Context, destination string) (models.OTPChallenge, error) {
	current, err := g.store.Get(ctx, g.key(destination))
	if err != nil {
		return models.OTPChallenge{}, fmt.Errorf("failed to read challenge: %w", err)
	}
	if current == nil {
		return models.OTPChallenge{Status: models.ChallengeNone}, nil
	}
	return *current, nil
}

// IsAuthorized is true iff the latest challenge for destination was
// approved and the approval window is still open.
func (g *AuthorizationGate) IsAuthorized(ctx context.Context, destination string) (bool, error) {
	destination = strings.TrimSpace(destination)
	if destination == "" {
		return false, nil
	}
	current, err := g.State(ctx, destination)
	if err != nil {
		return false, err
	}
	return current.Authorized(g.now()), nil
}

// Consume spends an open approval. It reports whether one was open; of
// two concurrent calls for the same approval at most one gets true.
func (g *AuthorizationGate) Consume(ctx context.Context, destination string) (bool, error) {
	destination = strings.TrimSpace(destination)
	if destination == "" {
		return false, fmt.Errorf("%w: 'to' is required", models.ErrMissingInput)
	}

	now := g.now()
	ok, err := g.store.TakeIf(ctx, g.key(destination), func(c models.OTPChallenge) bool {
		return c.Authorized(now)
	})
	if err != nil {
		return false, fmt.Errorf("failed to consume approval: %w", err)
	}
	if ok {
		otpChallengesTotal.WithLabelValues("consume", string(models.ChallengeApproved)).Inc()
	}
	return ok, nil
}

func (g *AuthorizationGate) key(destination string) string {
	return g.cryptoService.HashDestination(destination)
}
