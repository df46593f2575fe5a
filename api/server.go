package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"voting-gateway/blockchain"
	"voting-gateway/logging"
	"voting-gateway/service"
	"voting-gateway/storage"
)

type ServerConfig struct {
	Host string
	Port int

	// ConfirmTimeout is the longest /fund may wait for a receipt. The write
	// deadline is kept past it so a timed out transfer still reports its tx.
	ConfirmTimeout time.Duration
}

// writeMargin covers admission, broadcast and encoding around the wait.
const writeMargin = time.Minute

func (c ServerConfig) writeTimeout() time.Duration {
	confirm := c.ConfirmTimeout
	if confirm <= 0 {
		confirm = blockchain.DefaultConfirmTimeout
	}
	return confirm + writeMargin
}

// Dependencies are the components the gateway composes. Gate and Funding
// may be unconfigured; their endpoints then answer with an error.
type Dependencies struct {
	Registration *service.RegistrationService
	Gate         *service.AuthorizationGate
	Funding      *service.FundingOrchestrator
	Store        storage.IdentityStore
}

type Server struct {
	server *http.Server
	config ServerConfig
	deps   Dependencies
}

func NewServer(deps Dependencies, config ServerConfig) (*Server, error) {
	if deps.Registration == nil || deps.Gate == nil || deps.Funding == nil || deps.Store == nil {
		return nil, fmt.Errorf("gateway dependencies are incomplete")
	}

	s := &Server{
		config: config,
		deps:   deps,
	}

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:      s.routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: config.writeTimeout(),
	}

	return s, nil
}

func (s *Server) routes() http.Handler {
	router := mux.NewRouter()

	router.HandleFunc("/api/health", s.handleHealth).Methods(http.MethodGet)

	router.HandleFunc("/otp/send", s.handleOTPSend).Methods(http.MethodPost, http.MethodOptions)
	router.HandleFunc("/otp/verify", s.handleOTPVerify).Methods(http.MethodPost, http.MethodOptions)
	router.HandleFunc("/otp/status", s.handleOTPStatus).Methods(http.MethodGet)
	router.HandleFunc("/otp/consume", s.handleOTPConsume).Methods(http.MethodPost, http.MethodOptions)

	router.HandleFunc("/fund", s.handleFund).Methods(http.MethodPost, http.MethodOptions)
	router.HandleFunc("/fund/tx/{hash}", s.handleFundTx).Methods(http.MethodGet)

	router.HandleFunc("/api/registerVoter", s.handleRegisterVoter).Methods(http.MethodPost, http.MethodOptions)
	router.HandleFunc("/api/scanAndRegister", s.handleScanAndRegister).Methods(http.MethodPost, http.MethodOptions)

	router.HandleFunc("/vote/preflight", s.handleVotePreflight).Methods(http.MethodPost, http.MethodOptions)

	registry := prometheus.NewRegistry()
	registry.MustRegister(service.PromCollectors...)
	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	router.Use(loggingMiddleware)
	router.Use(mux.CORSMethodMiddleware(router))
	router.Use(corsMiddleware)

	return router
}

// Handler exposes the routed handler, used by tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) ListenAndServe() error {
	logging.Logger.Info().
		Str("addr", s.server.Addr).
		Bool("otp", s.deps.Gate.Enabled()).
		Bool("funding", s.deps.Funding.Enabled()).
		Msg("starting gateway")
	return s.server.ListenAndServe()
}

func (s *Server) Stop() error {
	logging.Logger.Info().Msg("shutting down gateway")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := s.server.Shutdown(ctx)
	if err != nil {
		logging.Logger.Error().Err(err).Msg("error during gateway shutdown")
	}
	return err
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	storeOK := s.deps.Store.Ping(r.Context()) == nil

	writeJSON(w, http.StatusOK, healthResponse{
		OK:      true,
		OTP:     s.deps.Gate.Enabled(),
		Funding: s.deps.Funding.Enabled(),
		Store:   storeOK,
	})
}
