package main

import (
	"context"
	"crypto/ecdsa"
	"fmt"

	"voting-gateway/api"
	"voting-gateway/blockchain"
	"voting-gateway/config"
	"voting-gateway/encryption"
	"voting-gateway/logging"
	"voting-gateway/otp"
	"voting-gateway/service"
	"voting-gateway/storage"
)

const redisNamespace = "voting-gateway"

// gateway holds the process-wide clients and closes them on shutdown.
type gateway struct {
	deps    api.Dependencies
	closers []func()
}

func (g *gateway) Close() {
	for i := len(g.closers) - 1; i >= 0; i-- {
		g.closers[i]()
	}
}

func buildGateway(ctx context.Context, cfg *config.Config) (*gateway, error) {
	gw := &gateway{}

	store, err := storage.Open(ctx, cfg.StoreURL, cfg.StoreKey)
	if err != nil {
		return nil, fmt.Errorf("failed to open identity store: %w", err)
	}
	gw.closers = append(gw.closers, func() {
		if err := store.Close(); err != nil {
			logging.Logger.Error().Err(err).Msg("failed to close identity store")
		}
	})

	approvals, closeApprovals, err := buildApprovalStore(ctx, cfg)
	if err != nil {
		gw.Close()
		return nil, err
	}
	gw.closers = append(gw.closers, closeApprovals)

	orchestrator, closeLedger, err := buildFunding(ctx, cfg)
	if err != nil {
		gw.Close()
		return nil, err
	}
	gw.closers = append(gw.closers, closeLedger)

	provider := buildProvider(cfg)
	if provider != nil {
		logging.Logger.Info().Str("provider", provider.Name()).Msg("OTP enabled")
	}

	gw.deps = api.Dependencies{
		Registration: service.NewRegistrationService(store),
		Gate:         service.NewAuthorizationGate(provider, approvals, cfg.OTPApprovalTTL),
		Funding:      orchestrator,
		Store:        store,
	}

	if !gw.deps.Gate.Enabled() {
		logging.Logger.Warn().Msg("OTP disabled: Twilio credentials are not set")
	}
	if !orchestrator.Enabled() {
		logging.Logger.Warn().Msg("funding disabled: RPC_URL or FUNDER_PRIVATE_KEY is not set")
	}

	return gw, nil
}

// buildProvider returns nil when OTP is disabled. The nil is returned as an
// interface value so the gate can detect it.
func buildProvider(cfg *config.Config) otp.Provider {
	switch cfg.ResolvedOTPProvider() {
	case config.OTPProviderTwilio:
		return otp.NewTwilioVerify(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioVerifySID)
	case config.OTPProviderConsole:
		logging.Logger.Warn().Msg("using the console OTP provider, codes are written to the log")
		return otp.NewConsole()
	default:
		return nil
	}
}

func buildApprovalStore(ctx context.Context, cfg *config.Config) (service.ApprovalStore, func(), error) {
	if cfg.RedisURL == "" {
		return service.NewMemoryApprovalStore(), func() {}, nil
	}

	client, err := service.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	closeClient := func() {
		if err := client.Close(); err != nil {
			logging.Logger.Error().Err(err).Msg("failed to close redis client")
		}
	}
	return service.NewRedisApprovalStore(client, redisNamespace), closeClient, nil
}

// buildFunding dials the ledger when RPC_URL is set. Missing settings leave
// the orchestrator disabled rather than failing startup.
func buildFunding(ctx context.Context, cfg *config.Config) (*service.FundingOrchestrator, func(), error) {
	fundingConfig, err := fundingConfigFrom(cfg)
	if err != nil {
		return nil, nil, err
	}

	var key *ecdsa.PrivateKey
	if cfg.FunderKey != "" {
		key, err = encryption.NewCryptoService().ParsePrivateKey(cfg.FunderKey)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid funder key: %w", err)
		}
	}

	if cfg.RPCURL == "" {
		return service.NewFundingOrchestrator(nil, key, fundingConfig), func() {}, nil
	}

	client, err := blockchain.Dial(ctx, cfg.RPCURL, cfg.ConfirmTimeout)
	if err != nil {
		return nil, nil, err
	}
	return service.NewFundingOrchestrator(client, key, fundingConfig), client.Close, nil
}

func fundingConfigFrom(cfg *config.Config) (service.FundingConfig, error) {
	reserve, err := blockchain.ParseEther(cfg.FundReserve)
	if err != nil {
		return service.FundingConfig{}, fmt.Errorf("fund-reserve: %w", err)
	}
	minBalance, err := blockchain.ParseEther(cfg.FundMinBalance)
	if err != nil {
		return service.FundingConfig{}, fmt.Errorf("fund-min-balance: %w", err)
	}
	return service.FundingConfig{
		DefaultAmount: cfg.FundAmount,
		Reserve:       reserve,
		MinBalance:    minBalance,
	}, nil
}
