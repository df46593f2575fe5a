package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"voting-gateway/models"
)

type healthResponse struct {
	OK      bool `json:"ok"`
	OTP     bool `json:"otp"`
	Funding bool `json:"funding"`
	Store   bool `json:"store"`
}

type otpSendRequest struct {
	To string `json:"to"`
}

type otpVerifyRequest struct {
	To   string `json:"to"`
	Code string `json:"code"`
}

type otpResponse struct {
	OK     bool   `json:"ok"`
	Status string `json:"status,omitempty"`
	Error  string `json:"error,omitempty"`
}

type otpStatusResponse struct {
	OK         bool   `json:"ok"`
	Authorized bool   `json:"authorized"`
	Status     string `json:"status"`
}

type otpConsumeResponse struct {
	OK       bool   `json:"ok"`
	Consumed bool   `json:"consumed"`
	Error    string `json:"error,omitempty"`
}

// etherAmount accepts both "0.01" and 0.01. Numbers keep their literal
// text so no float rounding happens before the wei conversion.
type etherAmount string

func (a *etherAmount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*a = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*a = etherAmount(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("amount must be a string or a number")
	}
	*a = etherAmount(n.String())
	return nil
}

type fundRequest struct {
	To              string      `json:"to"`
	Amount          etherAmount `json:"amount"`
	AdminPrivateKey string      `json:"adminPrivateKey"`
}

type fundResponse struct {
	OK          bool   `json:"ok"`
	Funded      bool   `json:"funded"`
	Amount      string `json:"amount,omitempty"`
	Tx          string `json:"tx,omitempty"`
	BlockNumber uint64 `json:"blockNumber,omitempty"`
	Message     string `json:"message,omitempty"`
	Error       string `json:"error,omitempty"`
}

type txStatusResponse struct {
	OK          bool   `json:"ok"`
	Hash        string `json:"hash"`
	Confirmed   bool   `json:"confirmed"`
	BlockNumber uint64 `json:"blockNumber,omitempty"`
	Status      string `json:"status,omitempty"`
}

type voterRequest struct {
	NationalID      string `json:"aadhaar_no"`
	FullName        string `json:"name"`
	MobileNumber    string `json:"mobile_no"`
	DateOfBirth     string `json:"dob"`
	Email           string `json:"email"`
	WalletAddress   string `json:"wallet_address"`
	MetamaskAddress string `json:"metamask_address"`
	FingerprintHash string `json:"fingerprint_hash"`
}

func (v voterRequest) input() models.RegistrationInput {
	wallet := v.WalletAddress
	if strings.TrimSpace(wallet) == "" {
		wallet = v.MetamaskAddress
	}
	return models.RegistrationInput{
		NationalID:      v.NationalID,
		FullName:        v.FullName,
		MobileNumber:    v.MobileNumber,
		DateOfBirth:     v.DateOfBirth,
		Email:           v.Email,
		WalletAddress:   wallet,
		FingerprintHash: v.FingerprintHash,
	}
}

type registerResponse struct {
	OK       bool   `json:"ok"`
	ID       string `json:"id,omitempty"`
	Message  string `json:"message"`
	IsUpdate bool   `json:"isUpdate"`
}

type scanResponse struct {
	OK              bool   `json:"ok"`
	FingerprintHash string `json:"fingerprintHash"`
	Stored          bool   `json:"stored"`
	StoreError      string `json:"storeError,omitempty"`
	Message         string `json:"message"`
}

type errorResponse struct {
	OK      bool   `json:"ok"`
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

type preflightRequest struct {
	To        string      `json:"to"`
	Address   string      `json:"address"`
	Threshold etherAmount `json:"threshold"`
}

type preflightResponse struct {
	OK           bool   `json:"ok"`
	Authorized   bool   `json:"authorized"`
	NeedsFunding bool   `json:"needsFunding"`
	Balance      string `json:"balance,omitempty"`
	Error        string `json:"error,omitempty"`
}
