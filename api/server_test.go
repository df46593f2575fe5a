package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"voting-gateway/blockchain"
	"voting-gateway/models"
	"voting-gateway/service"
)

const (
	voterPhone  = "+919876543210"
	voterWallet = "0x71562b71999873DB5b286dF957af199Ec94617F7"
)

type fundResult struct {
	OK          bool   `json:"ok"`
	Funded      bool   `json:"funded"`
	Amount      string `json:"amount"`
	Tx          string `json:"tx"`
	BlockNumber uint64 `json:"blockNumber"`
	Message     string `json:"message"`
	Error       string `json:"error"`
}

func TestNewServerRequiresDependencies(t *testing.T) {
	_, err := NewServer(Dependencies{}, ServerConfig{Port: 4000})
	require.Error(t, err)
}

func TestWriteTimeoutOutlastsConfirmation(t *testing.T) {
	require.Equal(t, blockchain.DefaultConfirmTimeout+writeMargin, ServerConfig{}.writeTimeout())

	env := startTestServer(t)
	deps := Dependencies{
		Registration: service.NewRegistrationService(env.store),
		Gate:         service.NewAuthorizationGate(nil, nil, 0),
		Funding:      service.NewFundingOrchestrator(nil, nil, service.DefaultFundingConfig()),
		Store:        env.store,
	}
	srv, err := NewServer(deps, ServerConfig{Port: 4000, ConfirmTimeout: 5 * time.Minute})
	require.NoError(t, err)
	require.Greater(t, srv.server.WriteTimeout, 5*time.Minute)
}

func TestHealth(t *testing.T) {
	env := startTestServer(t, withoutLedger())

	status, body := getJSON[healthResponse](t, env.server.URL+"/api/health")
	require.Equal(t, http.StatusOK, status)
	require.True(t, body.OK)
	require.True(t, body.OTP)
	require.False(t, body.Funding)
	require.True(t, body.Store)
}

func TestOTPFlow(t *testing.T) {
	env := startTestServer(t)

	status, sent := postJSON[otpResponse](t, env.server.URL+"/otp/send", otpSendRequest{To: voterPhone})
	require.Equal(t, http.StatusOK, status)
	require.True(t, sent.OK)
	require.Equal(t, "pending", sent.Status)

	status, state := getJSON[otpStatusResponse](t, env.server.URL+"/otp/status?to=%2B919876543210")
	require.Equal(t, http.StatusOK, status)
	require.False(t, state.Authorized)
	require.Equal(t, string(models.ChallengePending), state.Status)

	status, verified := postJSON[otpResponse](t, env.server.URL+"/otp/verify", otpVerifyRequest{To: voterPhone, Code: goodCode})
	require.Equal(t, http.StatusOK, status)
	require.True(t, verified.OK)
	require.Equal(t, models.ProviderApproved, verified.Status)

	_, state = getJSON[otpStatusResponse](t, env.server.URL+"/otp/status?to=%2B919876543210")
	require.True(t, state.Authorized)
	require.Equal(t, string(models.ChallengeApproved), state.Status)
}

func TestOTPConsume(t *testing.T) {
	env := startTestServer(t)

	status, body := postJSON[otpConsumeResponse](t, env.server.URL+"/otp/consume", otpSendRequest{To: voterPhone})
	require.Equal(t, http.StatusOK, status)
	require.False(t, body.Consumed)

	postJSON[otpResponse](t, env.server.URL+"/otp/send", otpSendRequest{To: voterPhone})
	postJSON[otpResponse](t, env.server.URL+"/otp/verify", otpVerifyRequest{To: voterPhone, Code: goodCode})

	status, body = postJSON[otpConsumeResponse](t, env.server.URL+"/otp/consume", otpSendRequest{To: voterPhone})
	require.Equal(t, http.StatusOK, status)
	require.True(t, body.OK)
	require.True(t, body.Consumed)

	_, state := getJSON[otpStatusResponse](t, env.server.URL+"/otp/status?to=%2B919876543210")
	require.False(t, state.Authorized)

	status, body = postJSON[otpConsumeResponse](t, env.server.URL+"/otp/consume", otpSendRequest{To: voterPhone})
	require.Equal(t, http.StatusOK, status)
	require.False(t, body.Consumed)

	status, _ = postJSON[otpConsumeResponse](t, env.server.URL+"/otp/consume", map[string]string{})
	require.Equal(t, http.StatusBadRequest, status)
}

func TestOTPWrongCodeIsNotAnError(t *testing.T) {
	env := startTestServer(t)

	postJSON[otpResponse](t, env.server.URL+"/otp/send", otpSendRequest{To: voterPhone})

	status, verified := postJSON[otpResponse](t, env.server.URL+"/otp/verify", otpVerifyRequest{To: voterPhone, Code: "000000"})
	require.Equal(t, http.StatusOK, status)
	require.False(t, verified.OK)
	require.Equal(t, "pending", verified.Status)

	// the challenge is spent, the right code no longer helps
	status, verified = postJSON[otpResponse](t, env.server.URL+"/otp/verify", otpVerifyRequest{To: voterPhone, Code: goodCode})
	require.Equal(t, http.StatusOK, status)
	require.False(t, verified.OK)
	require.Equal(t, string(models.ChallengeDenied), verified.Status)
}

func TestOTPMissingFields(t *testing.T) {
	env := startTestServer(t)

	status, body := postJSON[otpResponse](t, env.server.URL+"/otp/send", map[string]string{})
	require.Equal(t, http.StatusBadRequest, status)
	require.False(t, body.OK)
	require.NotEmpty(t, body.Error)

	status, body = postJSON[otpResponse](t, env.server.URL+"/otp/verify", otpVerifyRequest{To: voterPhone})
	require.Equal(t, http.StatusBadRequest, status)
	require.False(t, body.OK)

	status, _ = getJSON[otpResponse](t, env.server.URL+"/otp/status")
	require.Equal(t, http.StatusBadRequest, status)
}

func TestOTPWithoutProvider(t *testing.T) {
	env := startTestServer(t, withoutProvider())

	status, body := postJSON[otpResponse](t, env.server.URL+"/otp/send", otpSendRequest{To: voterPhone})
	require.Equal(t, http.StatusInternalServerError, status)
	require.False(t, body.OK)
	require.NotEmpty(t, body.Error)
}

func TestMalformedJSON(t *testing.T) {
	env := startTestServer(t)

	resp, err := http.Post(env.server.URL+"/otp/send", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestFundConfirmed(t *testing.T) {
	env := startTestServer(t)
	env.ledger.setBalance(env.funder, "1")

	status, body := postJSON[fundResult](t, env.server.URL+"/fund", map[string]any{"to": voterWallet})
	require.Equal(t, http.StatusOK, status)
	require.True(t, body.OK)
	require.True(t, body.Funded)
	require.Equal(t, "0.01", body.Amount)
	require.NotEmpty(t, body.Tx)
	require.Equal(t, uint64(42), body.BlockNumber)
	require.Equal(t, fmt.Sprintf("0.01 SepoliaETH funded to voter wallet. Tx: %s", body.Tx), body.Message)

	status, tx := getJSON[txStatusResponse](t, env.server.URL+"/fund/tx/"+body.Tx)
	require.Equal(t, http.StatusOK, status)
	require.True(t, tx.Confirmed)
	require.Equal(t, "success", tx.Status)
	require.Equal(t, uint64(42), tx.BlockNumber)
}

func TestFundNumericAmount(t *testing.T) {
	env := startTestServer(t)
	env.ledger.setBalance(env.funder, "1")

	status, body := postJSON[fundResult](t, env.server.URL+"/fund", map[string]any{"to": voterWallet, "amount": 0.05})
	require.Equal(t, http.StatusOK, status)
	require.True(t, body.Funded)
	require.Equal(t, "0.05", body.Amount)
}

func TestFundInsufficientBalance(t *testing.T) {
	env := startTestServer(t)
	env.ledger.setBalance(env.funder, "0.0105")

	status, body := postJSON[fundResult](t, env.server.URL+"/fund", map[string]any{"to": voterWallet, "amount": "0.01"})
	require.Equal(t, http.StatusInternalServerError, status)
	require.False(t, body.OK)
	require.False(t, body.Funded)
	require.Empty(t, body.Tx)
	require.NotEmpty(t, body.Error)
	require.Equal(t, 0, env.ledger.sent)
}

func TestFundSentUnconfirmed(t *testing.T) {
	env := startTestServer(t)
	env.ledger.setBalance(env.funder, "1")
	env.ledger.awaitErr = fmt.Errorf("%w: context deadline exceeded", models.ErrConfirmationTimeout)

	status, body := postJSON[fundResult](t, env.server.URL+"/fund", map[string]any{"to": voterWallet})
	require.Equal(t, http.StatusOK, status)
	require.True(t, body.OK)
	require.False(t, body.Funded)
	require.NotEmpty(t, body.Tx)
	require.True(t, strings.HasPrefix(body.Error, "Transaction sent but not confirmed: "))

	status, tx := getJSON[txStatusResponse](t, env.server.URL+"/fund/tx/"+body.Tx)
	require.Equal(t, http.StatusOK, status)
	require.False(t, tx.Confirmed)
	require.Empty(t, tx.Status)
}

func TestFundRejected(t *testing.T) {
	env := startTestServer(t)
	env.ledger.setBalance(env.funder, "1")
	env.ledger.sendErr = fmt.Errorf("%w: nonce too low", models.ErrBroadcastRejected)

	status, body := postJSON[fundResult](t, env.server.URL+"/fund", map[string]any{"to": voterWallet})
	require.Equal(t, http.StatusInternalServerError, status)
	require.False(t, body.OK)
	require.False(t, body.Funded)
	require.Empty(t, body.Tx)
	require.Contains(t, body.Error, "nonce too low")
}

func TestFundValidation(t *testing.T) {
	env := startTestServer(t)
	env.ledger.setBalance(env.funder, "1")

	cases := []map[string]any{
		{},
		{"to": "not-an-address"},
		{"to": voterWallet, "amount": "abc"},
		{"to": voterWallet, "amount": "-1"},
		{"to": voterWallet, "amount": true},
	}
	for _, c := range cases {
		status, body := postJSON[fundResult](t, env.server.URL+"/fund", c)
		require.Equal(t, http.StatusBadRequest, status, "%v", c)
		require.False(t, body.Funded)
	}
	require.Equal(t, 0, env.ledger.sent)
}

func TestFundUnconfigured(t *testing.T) {
	env := startTestServer(t, withoutLedger())

	status, body := postJSON[fundResult](t, env.server.URL+"/fund", map[string]any{"to": voterWallet})
	require.Equal(t, http.StatusInternalServerError, status)
	require.False(t, body.Funded)
	require.NotEmpty(t, body.Error)
}

func TestFundTxRejectsBadHash(t *testing.T) {
	env := startTestServer(t)

	status, body := getJSON[errorResponse](t, env.server.URL+"/fund/tx/0x1234")
	require.Equal(t, http.StatusBadRequest, status)
	require.False(t, body.OK)
}

func TestRegisterVoter(t *testing.T) {
	env := startTestServer(t)

	req := voterRequest{
		NationalID:    "123412341234",
		FullName:      "Asha Rao",
		DateOfBirth:   "1990-04-12T00:00:00.000Z",
		WalletAddress: voterWallet,
	}

	status, first := postJSON[registerResponse](t, env.server.URL+"/api/registerVoter", req)
	require.Equal(t, http.StatusOK, status)
	require.True(t, first.OK)
	require.False(t, first.IsUpdate)
	require.NotEmpty(t, first.ID)
	require.Equal(t, "Voter registered successfully", first.Message)

	req.FullName = "Asha R. Rao"
	status, second := postJSON[registerResponse](t, env.server.URL+"/api/registerVoter", req)
	require.Equal(t, http.StatusOK, status)
	require.True(t, second.IsUpdate)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, "Voter information updated successfully", second.Message)
	require.Equal(t, 1, env.store.Count())
}

func TestRegisterVoterAcceptsMetamaskField(t *testing.T) {
	env := startTestServer(t)

	status, body := postJSON[registerResponse](t, env.server.URL+"/api/registerVoter", map[string]string{
		"aadhaar_no":       "999988887777",
		"name":             "Ravi",
		"dob":              "1985-01-30",
		"metamask_address": voterWallet,
	})
	require.Equal(t, http.StatusOK, status)
	require.True(t, body.OK)
}

func TestRegisterVoterBadRequest(t *testing.T) {
	env := startTestServer(t)

	status, body := postJSON[errorResponse](t, env.server.URL+"/api/registerVoter", voterRequest{
		NationalID:  "123412341234",
		FullName:    "Asha Rao",
		DateOfBirth: "1990-04-12",
	})
	require.Equal(t, http.StatusBadRequest, status)
	require.False(t, body.OK)
	require.Equal(t, codeBadRequest, body.Error)
	require.NotEmpty(t, body.Message)
	require.Equal(t, 0, env.store.Count())
}

func TestRegistrationErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("%w: dob", models.ErrValidation), http.StatusBadRequest, codeBadRequest},
		{fmt.Errorf("%w: down", models.ErrStoreFailure), http.StatusInternalServerError, codeRegisterFailed},
		{errors.New("boom"), http.StatusInternalServerError, codeRegisterFailed},
	}
	for _, c := range cases {
		rec := httptest.NewRecorder()
		respondRegistrationErr(rec, c.err)
		require.Equal(t, c.status, rec.Code)
		require.Contains(t, rec.Body.String(), c.code)
	}
}

func TestScanAndRegister(t *testing.T) {
	env := startTestServer(t)

	req := voterRequest{
		NationalID:   "555566667777",
		FullName:     "Meera",
		MobileNumber: "9876500000",
		DateOfBirth:  "2000-02-29",
		Email:        "meera@example.com",
	}

	status, body := postJSON[scanResponse](t, env.server.URL+"/api/scanAndRegister", req)
	require.Equal(t, http.StatusOK, status)
	require.True(t, body.OK)
	require.True(t, body.Stored)
	require.Empty(t, body.StoreError)
	require.True(t, strings.HasPrefix(body.FingerprintHash, "fp_555566667777_"))

	// a second capture still yields a fingerprint even though the insert conflicts
	status, body = postJSON[scanResponse](t, env.server.URL+"/api/scanAndRegister", req)
	require.Equal(t, http.StatusOK, status)
	require.True(t, body.OK)
	require.False(t, body.Stored)
	require.NotEmpty(t, body.StoreError)
	require.NotEmpty(t, body.FingerprintHash)

	req.Email = ""
	status, _ = postJSON[errorResponse](t, env.server.URL+"/api/scanAndRegister", req)
	require.Equal(t, http.StatusBadRequest, status)
}

func TestVotePreflight(t *testing.T) {
	env := startTestServer(t)
	env.ledger.setBalance(common.HexToAddress(voterWallet), "0.00005")

	status, body := postJSON[preflightResponse](t, env.server.URL+"/vote/preflight", preflightRequest{To: voterPhone, Address: voterWallet})
	require.Equal(t, http.StatusOK, status)
	require.True(t, body.OK)
	require.False(t, body.Authorized)
	require.True(t, body.NeedsFunding)
	require.Equal(t, "0.00005", body.Balance)

	postJSON[otpResponse](t, env.server.URL+"/otp/send", otpSendRequest{To: voterPhone})
	postJSON[otpResponse](t, env.server.URL+"/otp/verify", otpVerifyRequest{To: voterPhone, Code: goodCode})
	env.ledger.setBalance(common.HexToAddress(voterWallet), "0.5")

	_, body = postJSON[preflightResponse](t, env.server.URL+"/vote/preflight", preflightRequest{To: voterPhone, Address: voterWallet})
	require.True(t, body.Authorized)
	require.False(t, body.NeedsFunding)

	_, body = postJSON[preflightResponse](t, env.server.URL+"/vote/preflight", map[string]any{"to": voterPhone, "address": voterWallet, "threshold": "1"})
	require.True(t, body.NeedsFunding)

	status, _ = postJSON[preflightResponse](t, env.server.URL+"/vote/preflight", map[string]any{"to": voterPhone, "address": voterWallet, "threshold": "lots"})
	require.Equal(t, http.StatusBadRequest, status)

	status, body = postJSON[preflightResponse](t, env.server.URL+"/vote/preflight", preflightRequest{To: voterPhone, Address: "nope"})
	require.Equal(t, http.StatusBadRequest, status)
	require.False(t, body.OK)
}

func TestCORSPreflight(t *testing.T) {
	env := startTestServer(t)

	req, err := http.NewRequest(http.MethodOptions, env.server.URL+"/fund", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	require.Contains(t, resp.Header.Get("Access-Control-Allow-Methods"), http.MethodPost)
}

func TestMetricsEndpoint(t *testing.T) {
	env := startTestServer(t)

	resp, err := http.Get(env.server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(payload), "voting_gateway_registration_seconds")
}

func TestStatusFor(t *testing.T) {
	require.Equal(t, http.StatusBadRequest, statusFor(models.ErrValidation))
	require.Equal(t, http.StatusBadRequest, statusFor(fmt.Errorf("x: %w", models.ErrMissingInput)))
	require.Equal(t, http.StatusInternalServerError, statusFor(models.ErrUnconfigured))
	require.Equal(t, http.StatusInternalServerError, statusFor(models.ErrInsufficientFunderBalance))
	require.Equal(t, http.StatusInternalServerError, statusFor(errors.New("boom")))
}
