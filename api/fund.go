package api

import (
	"fmt"
	"math/big"
	"net/http"

	"github.com/gorilla/mux"

	"voting-gateway/blockchain"
	"voting-gateway/service"
)

func (s *Server) handleFund(w http.ResponseWriter, r *http.Request) {
	var req fundRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, fundResponse{Error: err.Error()})
		return
	}

	result, err := s.deps.Funding.EnsureFunded(r.Context(), service.FundingInput{
		To:        req.To,
		Amount:    string(req.Amount),
		FunderKey: req.AdminPrivateKey,
	})
	if err != nil {
		writeJSON(w, statusFor(err), fundResponse{Error: err.Error()})
		return
	}

	switch {
	case result.Funded():
		writeJSON(w, http.StatusOK, fundResponse{
			OK:          true,
			Funded:      true,
			Amount:      result.Amount,
			Tx:          result.TxHash,
			BlockNumber: result.BlockNumber,
			Message:     fmt.Sprintf("%s SepoliaETH funded to voter wallet. Tx: %s", result.Amount, result.TxHash),
		})
	case result.Sent():
		writeJSON(w, http.StatusOK, fundResponse{
			OK:     true,
			Amount: result.Amount,
			Tx:     result.TxHash,
			Error:  result.Error,
		})
	default:
		writeJSON(w, http.StatusInternalServerError, fundResponse{Error: result.Error})
	}
}

func (s *Server) handleFundTx(w http.ResponseWriter, r *http.Request) {
	hash := mux.Vars(r)["hash"]

	status, err := s.deps.Funding.Reconcile(r.Context(), hash)
	if err != nil {
		writeJSON(w, statusFor(err), errorResponse{Error: err.Error()})
		return
	}

	resp := txStatusResponse{
		OK:          true,
		Hash:        status.Hash,
		Confirmed:   status.Confirmed,
		BlockNumber: status.BlockNumber,
	}
	if status.Confirmed {
		resp.Status = "reverted"
		if status.Succeeded {
			resp.Status = "success"
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleVotePreflight(w http.ResponseWriter, r *http.Request) {
	var req preflightRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, preflightResponse{Error: err.Error()})
		return
	}

	authorized, err := s.deps.Gate.IsAuthorized(r.Context(), req.To)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, preflightResponse{Error: err.Error()})
		return
	}

	var threshold *big.Int
	if req.Threshold != "" {
		parsed, err := blockchain.ParseEther(string(req.Threshold))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, preflightResponse{Error: err.Error()})
			return
		}
		threshold = parsed
	}

	needsFunding, balance, err := s.deps.Funding.NeedsFunding(r.Context(), req.Address, threshold)
	if err != nil {
		writeJSON(w, statusFor(err), preflightResponse{Authorized: authorized, Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, preflightResponse{
		OK:           true,
		Authorized:   authorized,
		NeedsFunding: needsFunding,
		Balance:      blockchain.FormatEther(balance),
	})
}
