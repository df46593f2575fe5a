package main

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"voting-gateway/api"
	"voting-gateway/blockchain"
	"voting-gateway/config"
	"voting-gateway/logging"
	"voting-gateway/models"
	"voting-gateway/service"
)

func main() {
	// .env is optional; real environment variables win.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logging.Logger.Warn().Err(err).Msg("failed to load .env")
	}

	if err := newApp(os.Stdout).Run(os.Args); err != nil {
		logging.Logger.Fatal().Err(err).Msg("gateway stopped")
	}
}

func newApp(out io.Writer) *cli.App {
	return &cli.App{
		Name:   "voting-gateway",
		Usage:  "voter registration, OTP authorization and gas funding",
		Flags:  config.Flags(),
		Writer: out,
		Before: func(c *cli.Context) error {
			cfg := config.FromContext(c)
			logging.Init(cfg.LogLevel, cfg.LogPretty)
			return nil
		},
		Action: serve,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "start the HTTP gateway",
				Action: serve,
			},
			{
				Name:   "funder",
				Usage:  "print the funder address, balance and readiness",
				Action: funderStatus,
			},
			{
				Name:      "fund",
				Usage:     "send gas money to a voter wallet",
				ArgsUsage: "<address> [amount]",
				Action:    fund,
			},
		},
	}
}

func serve(c *cli.Context) error {
	cfg := config.FromContext(c)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx := c.Context
	gw, err := buildGateway(ctx, cfg)
	if err != nil {
		return err
	}
	defer gw.Close()

	server, err := api.NewServer(gw.deps, api.ServerConfig{Port: cfg.Port, ConfirmTimeout: cfg.ConfirmTimeout})
	if err != nil {
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	serverChan := make(chan error, 1)
	go func() {
		serverChan <- server.ListenAndServe()
	}()

	select {
	case err := <-serverChan:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	case sig := <-sigChan:
		logging.Logger.Info().Str("signal", sig.String()).Msg("received signal")
		return server.Stop()
	}
	return nil
}

func funderStatus(c *cli.Context) error {
	cfg := config.FromContext(c)
	if err := cfg.ValidateFunding(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	orchestrator, closeLedger, err := buildFunding(c.Context, cfg)
	if err != nil {
		return err
	}
	defer closeLedger()

	address, balance, err := orchestrator.FunderStatus(c.Context)
	if err != nil {
		return err
	}

	fundingConfig, _ := fundingConfigFrom(cfg)
	needed := blockchain.MustParseEther(orchestrator.DefaultAmount())
	needed.Add(needed, fundingConfig.Reserve)

	fmt.Fprintf(c.App.Writer, "funder:  %s\n", address.Hex())
	fmt.Fprintf(c.App.Writer, "balance: %s ETH\n", blockchain.FormatEther(balance))
	fmt.Fprintf(c.App.Writer, "needed:  %s ETH per transfer of %s ETH\n", blockchain.FormatEther(needed), orchestrator.DefaultAmount())
	if balance.Cmp(needed) < 0 {
		fmt.Fprintln(c.App.Writer, "ready:   no, top up the funder wallet")
		return nil
	}
	fmt.Fprintln(c.App.Writer, "ready:   yes")
	return nil
}

func fund(c *cli.Context) error {
	if c.NArg() < 1 {
		return fmt.Errorf("%w: fund needs a destination address", models.ErrMissingInput)
	}

	cfg := config.FromContext(c)
	if err := cfg.ValidateFunding(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	orchestrator, closeLedger, err := buildFunding(c.Context, cfg)
	if err != nil {
		return err
	}
	defer closeLedger()

	result, err := orchestrator.EnsureFunded(c.Context, service.FundingInput{
		To:     c.Args().Get(0),
		Amount: c.Args().Get(1),
	})
	if err != nil {
		return err
	}

	switch {
	case result.Funded():
		fmt.Fprintf(c.App.Writer, "funded %s with %s ETH in block %d, tx %s\n",
			result.Destination, result.Amount, result.BlockNumber, result.TxHash)
	case result.Sent():
		fmt.Fprintf(c.App.Writer, "sent %s ETH to %s, tx %s\n%s\n",
			result.Amount, result.Destination, result.TxHash, result.Error)
	default:
		return fmt.Errorf("%w: %s", models.ErrBroadcastRejected, result.Error)
	}
	return nil
}
