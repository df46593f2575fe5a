package api

import (
	"net/http"
	"strings"

	"voting-gateway/logging"
)

func (s *Server) handleOTPSend(w http.ResponseWriter, r *http.Request) {
	var req otpSendRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, otpResponse{Error: err.Error()})
		return
	}

	status, err := s.deps.Gate.StartChallenge(r.Context(), req.To)
	if err != nil {
		logging.Logger.Error().Err(err).Str("to", logging.Mask(req.To)).Msg("otp send failed")
		writeJSON(w, statusFor(err), otpResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, otpResponse{OK: true, Status: status})
}

func (s *Server) handleOTPVerify(w http.ResponseWriter, r *http.Request) {
	var req otpVerifyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, otpResponse{Error: err.Error()})
		return
	}

	approved, status, err := s.deps.Gate.CheckChallenge(r.Context(), req.To, req.Code)
	if err != nil {
		logging.Logger.Error().Err(err).Str("to", logging.Mask(req.To)).Msg("otp verify failed")
		writeJSON(w, statusFor(err), otpResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, otpResponse{OK: approved, Status: status})
}

func (s *Server) handleOTPStatus(w http.ResponseWriter, r *http.Request) {
	to := strings.TrimSpace(r.URL.Query().Get("to"))
	if to == "" {
		writeJSON(w, http.StatusBadRequest, otpResponse{Error: "'to' is required"})
		return
	}

	state, err := s.deps.Gate.State(r.Context(), to)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, otpResponse{Error: err.Error()})
		return
	}
	authorized, err := s.deps.Gate.IsAuthorized(r.Context(), to)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, otpResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, otpStatusResponse{
		OK:         true,
		Authorized: authorized,
		Status:     string(state.Status),
	})
}

// handleOTPConsume spends the approval of a destination so it cannot
// authorize a second vote.
func (s *Server) handleOTPConsume(w http.ResponseWriter, r *http.Request) {
	var req otpSendRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, otpConsumeResponse{Error: err.Error()})
		return
	}

	consumed, err := s.deps.Gate.Consume(r.Context(), req.To)
	if err != nil {
		writeJSON(w, statusFor(err), otpConsumeResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, otpConsumeResponse{OK: consumed, Consumed: consumed})
}
