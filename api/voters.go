package api

import (
	"errors"
	"net/http"

	"voting-gateway/models"
)

const (
	codeBadRequest     = "BAD_REQUEST"
	codeRegisterFailed = "REGISTER_FAILED"
)

func (s *Server) handleRegisterVoter(w http.ResponseWriter, r *http.Request) {
	var req voterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: codeBadRequest, Message: err.Error()})
		return
	}

	result, err := s.deps.Registration.Register(r.Context(), req.input())
	if err != nil {
		respondRegistrationErr(w, err)
		return
	}

	message := "Voter registered successfully"
	if result.WasUpdate {
		message = "Voter information updated successfully"
	}
	writeJSON(w, http.StatusOK, registerResponse{
		OK:       true,
		ID:       result.Record.ID,
		Message:  message,
		IsUpdate: result.WasUpdate,
	})
}

func (s *Server) handleScanAndRegister(w http.ResponseWriter, r *http.Request) {
	var req voterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: codeBadRequest, Message: err.Error()})
		return
	}

	result, err := s.deps.Registration.Scan(r.Context(), req.input())
	if err != nil {
		respondRegistrationErr(w, err)
		return
	}

	resp := scanResponse{
		OK:              true,
		FingerprintHash: result.FingerprintHash,
		Stored:          result.Stored,
		Message:         "Fingerprint captured and stored",
	}
	if result.StoreError != nil {
		resp.StoreError = result.StoreError.Error()
		resp.Message = "Fingerprint captured, storage failed"
	}
	writeJSON(w, http.StatusOK, resp)
}

func respondRegistrationErr(w http.ResponseWriter, err error) {
	if errors.Is(err, models.ErrValidation) || errors.Is(err, models.ErrMissingInput) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: codeBadRequest, Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: codeRegisterFailed, Message: err.Error()})
}
