package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"voting-gateway/encryption"
	"voting-gateway/logging"
	"voting-gateway/models"
	"voting-gateway/storage"
)

const dateLayout = "2006-01-02"

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
}

// RegistrationService reconciles registration payloads with the identity
// store. Each call performs exactly one write.
type RegistrationService struct {
	store         storage.IdentityStore
	cryptoService *encryption.CryptoService
	now           func() time.Time
}

// ScanResult is returned by Scan. The fingerprint is always present; Stored
// reports whether the pending record reached the identity store.
type ScanResult struct {
	FingerprintHash string
	Stored          bool
	StoreError      error
}

func NewRegistrationService(store storage.IdentityStore) *RegistrationService {
	return &RegistrationService{
		store:         store,
		cryptoService: encryption.NewCryptoService(),
		now:           time.Now,
	}
}

// Register inserts a voter or updates the existing record with the same
// national id.
func (rs *RegistrationService) Register(ctx context.Context, in models.RegistrationInput) (*models.RegistrationResult, error) {
	start := time.Now()

	record, err := rs.normalize(in)
	if err != nil {
		registrationsTotal.WithLabelValues("invalid").Inc()
		return nil, err
	}

	result, err := rs.upsert(ctx, record)
	registrationDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		registrationsTotal.WithLabelValues("failed").Inc()
		logging.Logger.Error().Err(err).Str("aadhaar", logging.Mask(record.NationalID)).Msg("registration failed")
		return nil, err
	}

	if result.WasUpdate {
		registrationsTotal.WithLabelValues("updated").Inc()
	} else {
		registrationsTotal.WithLabelValues("inserted").Inc()
	}

	logging.Logger.Info().
		Str("id", result.Record.ID).
		Str("aadhaar", logging.Mask(record.NationalID)).
		Bool("update", result.WasUpdate).
		Msg("voter registered")

	return result, nil
}

// Scan records a fingerprint capture for a voter who has not linked a
// wallet yet. The store write is best effort.
func (rs *RegistrationService) Scan(ctx context.Context, in models.RegistrationInput) (*ScanResult, error) {
	in = trimInput(in)
	if in.NationalID == "" || in.FullName == "" || in.MobileNumber == "" || in.DateOfBirth == "" || in.Email == "" {
		return nil, fmt.Errorf("%w: aadhaar_no, name, mobile_no, dob and email are required", models.ErrValidation)
	}

	dob, err := NormalizeDateOfBirth(in.DateOfBirth)
	if err != nil {
		return nil, err
	}

	result := &ScanResult{
		FingerprintHash: rs.cryptoService.Fingerprint(in.NationalID, rs.now()),
	}

	_, err = rs.store.Insert(ctx, &models.VoterRecord{
		NationalID:      in.NationalID,
		FullName:        in.FullName,
		MobileNumber:    in.MobileNumber,
		DateOfBirth:     dob,
		Email:           in.Email,
		FingerprintHash: result.FingerprintHash,
	})
	if err != nil {
		result.StoreError = fmt.Errorf("%w: %v", models.ErrStoreFailure, err)
		logging.Logger.Warn().Err(err).Str("aadhaar", logging.Mask(in.NationalID)).Msg("fingerprint not stored")
		return result, nil
	}

	result.Stored = true
	return result, nil
}

func (rs *RegistrationService) normalize(in models.RegistrationInput) (*models.VoterRecord, error) {
	in = trimInput(in)

	// 1. Required fields
	if in.NationalID == "" || in.FullName == "" || in.WalletAddress == "" || in.DateOfBirth == "" {
		return nil, fmt.Errorf("%w: aadhaar_no, name, wallet_address and dob are required", models.ErrValidation)
	}

	// 2. Wallet must be a chain account
	if !common.IsHexAddress(in.WalletAddress) {
		return nil, fmt.Errorf("%w: wallet_address %q is not a valid address", models.ErrValidation, in.WalletAddress)
	}

	// 3. Calendar date of birth
	dob, err := NormalizeDateOfBirth(in.DateOfBirth)
	if err != nil {
		return nil, err
	}

	mobile := in.MobileNumber
	if mobile == "" {
		mobile = models.UnknownMobileNumber
	}

	return &models.VoterRecord{
		NationalID:      in.NationalID,
		FullName:        in.FullName,
		MobileNumber:    mobile,
		DateOfBirth:     dob,
		Email:           in.Email,
		WalletAddress:   in.WalletAddress,
		Registered:      true,
		FingerprintHash: in.FingerprintHash,
	}, nil
}

func (rs *RegistrationService) upsert(ctx context.Context, record *models.VoterRecord) (*models.RegistrationResult, error) {
	_, err := rs.store.FindByNationalID(ctx, record.NationalID)
	switch {
	case err == nil:
		return rs.update(ctx, record)
	case !errors.Is(err, models.ErrNotFound):
		return nil, fmt.Errorf("%w: lookup: %v", models.ErrStoreFailure, err)
	}

	inserted, err := rs.store.Insert(ctx, record)
	if errors.Is(err, models.ErrConflict) {
		// A concurrent first registration won the insert.
		return rs.update(ctx, record)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: insert: %v", models.ErrStoreFailure, err)
	}

	return &models.RegistrationResult{Record: inserted, WasUpdate: false}, nil
}

func (rs *RegistrationService) update(ctx context.Context, record *models.VoterRecord) (*models.RegistrationResult, error) {
	updated, err := rs.store.Update(ctx, record)
	if err != nil {
		return nil, fmt.Errorf("%w: update: %v", models.ErrStoreFailure, err)
	}
	return &models.RegistrationResult{Record: updated, WasUpdate: true}, nil
}

// NormalizeDateOfBirth reduces a date or timestamp to its UTC calendar date.
func NormalizeDateOfBirth(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: dob is required", models.ErrValidation)
	}

	if d, err := time.Parse(dateLayout, raw); err == nil {
		return d.Format(dateLayout), nil
	}

	if strings.Contains(raw, "T") {
		for _, layout := range timestampLayouts {
			if ts, err := time.Parse(layout, raw); err == nil {
				return ts.UTC().Format(dateLayout), nil
			}
		}
	}

	return "", fmt.Errorf("%w: dob %q is not a date", models.ErrValidation, raw)
}

func trimInput(in models.RegistrationInput) models.RegistrationInput {
	in.NationalID = strings.TrimSpace(in.NationalID)
	in.FullName = strings.TrimSpace(in.FullName)
	in.MobileNumber = strings.TrimSpace(in.MobileNumber)
	in.DateOfBirth = strings.TrimSpace(in.DateOfBirth)
	in.Email = strings.TrimSpace(in.Email)
	in.WalletAddress = strings.TrimSpace(in.WalletAddress)
	in.FingerprintHash = strings.TrimSpace(in.FingerprintHash)
	return in
}
