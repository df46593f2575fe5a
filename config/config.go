package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"voting-gateway/blockchain"
	"voting-gateway/service"
)

// Config is the gateway configuration after flags and environment have
// been applied.
type Config struct {
	Port      int
	LogLevel  string
	LogPretty bool

	RPCURL         string
	FunderKey      string
	FundAmount     string
	FundReserve    string
	FundMinBalance string
	ConfirmTimeout time.Duration

	OTPProvider      string
	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioVerifySID  string
	OTPApprovalTTL   time.Duration
	RedisURL         string

	StoreURL string
	StoreKey string
}

const (
	OTPProviderTwilio  = "twilio"
	OTPProviderConsole = "console"
)

// Flags returns the flags shared by every command. Each one can also be set
// through the environment variable names listed in EnvVars.
func Flags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{Name: "port", Value: 4000, Usage: "HTTP listen port", EnvVars: []string{"PORT", "BACKEND_PORT"}},
		&cli.StringFlag{Name: "log-level", Value: "info", Usage: "debug, info, warn or error", EnvVars: []string{"LOG_LEVEL"}},
		&cli.BoolFlag{Name: "log-pretty", Usage: "human readable log output", EnvVars: []string{"LOG_PRETTY"}},

		&cli.StringFlag{Name: "rpc-url", Usage: "Ethereum JSON-RPC endpoint", EnvVars: []string{"RPC_URL"}},
		&cli.StringFlag{Name: "funder-key", Usage: "hex private key of the funder wallet", EnvVars: []string{"FUNDER_PRIVATE_KEY", "ADMIN_PRIVATE_KEY"}},
		&cli.StringFlag{Name: "fund-amount", Value: service.DefaultFundAmount, Usage: "default transfer in ether", EnvVars: []string{"FUND_AMOUNT_ETH"}},
		&cli.StringFlag{Name: "fund-reserve", Value: service.DefaultReserve, Usage: "ether kept in the funder wallet", EnvVars: []string{"FUND_RESERVE_ETH"}},
		&cli.StringFlag{Name: "fund-min-balance", Value: service.DefaultMinBalance, Usage: "voter balance below which gas is needed", EnvVars: []string{"FUND_MIN_BALANCE_ETH"}},
		&cli.DurationFlag{Name: "confirm-timeout", Value: blockchain.DefaultConfirmTimeout, Usage: "wait for a transfer receipt", EnvVars: []string{"FUND_CONFIRM_TIMEOUT"}},

		&cli.StringFlag{Name: "otp-provider", Usage: "twilio or console; empty selects twilio when credentials are set", EnvVars: []string{"OTP_PROVIDER"}},
		&cli.StringFlag{Name: "twilio-account-sid", EnvVars: []string{"TWILIO_ACCOUNT_SID"}},
		&cli.StringFlag{Name: "twilio-auth-token", EnvVars: []string{"TWILIO_AUTH_TOKEN"}},
		&cli.StringFlag{Name: "twilio-verify-sid", EnvVars: []string{"TWILIO_VERIFY_SID"}},
		&cli.DurationFlag{Name: "otp-approval-ttl", Value: service.DefaultApprovalTTL, Usage: "how long an approved OTP authorizes a vote", EnvVars: []string{"OTP_APPROVAL_TTL"}},
		&cli.StringFlag{Name: "redis-url", Usage: "share OTP state through redis", EnvVars: []string{"REDIS_URL"}},

		&cli.StringFlag{Name: "store-url", Usage: "identity store endpoint (https, postgres, bolt, file or memory URL)", EnvVars: []string{"SUPABASE_URL", "STORE_URL"}},
		&cli.StringFlag{Name: "store-key", Usage: "identity store service key", EnvVars: []string{"SUPABASE_SERVICE_ROLE_KEY", "STORE_KEY"}},
	}
}

func FromContext(c *cli.Context) *Config {
	return &Config{
		Port:      c.Int("port"),
		LogLevel:  c.String("log-level"),
		LogPretty: c.Bool("log-pretty"),

		RPCURL:         strings.TrimSpace(c.String("rpc-url")),
		FunderKey:      c.String("funder-key"),
		FundAmount:     strings.TrimSpace(c.String("fund-amount")),
		FundReserve:    strings.TrimSpace(c.String("fund-reserve")),
		FundMinBalance: strings.TrimSpace(c.String("fund-min-balance")),
		ConfirmTimeout: c.Duration("confirm-timeout"),

		OTPProvider:      strings.ToLower(strings.TrimSpace(c.String("otp-provider"))),
		TwilioAccountSID: strings.TrimSpace(c.String("twilio-account-sid")),
		TwilioAuthToken:  strings.TrimSpace(c.String("twilio-auth-token")),
		TwilioVerifySID:  strings.TrimSpace(c.String("twilio-verify-sid")),
		OTPApprovalTTL:   c.Duration("otp-approval-ttl"),
		RedisURL:         strings.TrimSpace(c.String("redis-url")),

		StoreURL: strings.TrimSpace(c.String("store-url")),
		StoreKey: strings.TrimSpace(c.String("store-key")),
	}
}

// TwilioConfigured reports whether all three Twilio credentials are set.
func (c *Config) TwilioConfigured() bool {
	return c.TwilioAccountSID != "" && c.TwilioAuthToken != "" && c.TwilioVerifySID != ""
}

// ResolvedOTPProvider is the provider the gateway will use, or "" when OTP
// is disabled.
func (c *Config) ResolvedOTPProvider() string {
	switch c.OTPProvider {
	case "":
		if c.TwilioConfigured() {
			return OTPProviderTwilio
		}
		return ""
	default:
		return c.OTPProvider
	}
}

// FundingConfigured reports whether the ledger and funder key are set.
func (c *Config) FundingConfigured() bool {
	return c.RPCURL != "" && strings.TrimSpace(c.FunderKey) != ""
}

// ValidateFunding checks only the settings the funding commands use.
func (c *Config) ValidateFunding() error {
	var errs []error

	for name, v := range map[string]string{
		"fund-amount":      c.FundAmount,
		"fund-reserve":     c.FundReserve,
		"fund-min-balance": c.FundMinBalance,
	} {
		if _, err := blockchain.ParseEther(v); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	if c.ConfirmTimeout <= 0 {
		errs = append(errs, errors.New("confirm-timeout must be positive"))
	}

	return errors.Join(errs...)
}

// Validate checks everything the serve command needs. The identity store
// endpoint is mandatory; other subsystems are optional.
func (c *Config) Validate() error {
	var errs []error

	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}

	if c.StoreURL == "" {
		errs = append(errs, errors.New("SUPABASE_URL (store-url) is required"))
	} else if u, err := url.Parse(c.StoreURL); err != nil {
		errs = append(errs, fmt.Errorf("store-url: %w", err))
	} else if (u.Scheme == "http" || u.Scheme == "https") && c.StoreKey == "" {
		errs = append(errs, errors.New("SUPABASE_SERVICE_ROLE_KEY (store-key) is required for a REST identity store"))
	}

	switch c.OTPProvider {
	case "", OTPProviderConsole:
	case OTPProviderTwilio:
		if !c.TwilioConfigured() {
			errs = append(errs, errors.New("otp-provider twilio needs TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN and TWILIO_VERIFY_SID"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown otp-provider %q", c.OTPProvider))
	}

	if c.OTPApprovalTTL <= 0 {
		errs = append(errs, errors.New("otp-approval-ttl must be positive"))
	}

	if err := c.ValidateFunding(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}
