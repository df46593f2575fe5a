package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"voting-gateway/models"
)

const votersResource = "/rest/v1/voters"

// PostgRESTStore reaches the voters table through a Supabase style REST
// endpoint authenticated with a service key.
type PostgRESTStore struct {
	baseURL    string
	serviceKey string
	httpClient *http.Client
}

// restVoter mirrors a row as PostgREST returns it. id may be numeric or
// text depending on the table definition.
type restVoter struct {
	ID              json.RawMessage `json:"id"`
	NationalID      string          `json:"aadhaar_no"`
	FullName        string          `json:"name"`
	MobileNumber    *string         `json:"mobile_no"`
	DateOfBirth     string          `json:"dob"`
	Email           *string         `json:"email"`
	WalletAddress   *string         `json:"metamask_address"`
	Registered      bool            `json:"is_registered"`
	FingerprintHash *string         `json:"fingerprint_hash"`
	CreatedAt       string          `json:"created_at"`
	UpdatedAt       string          `json:"updated_at"`
}

func NewPostgRESTStore(baseURL, serviceKey string) *PostgRESTStore {
	return &PostgRESTStore{
		baseURL:    strings.TrimRight(baseURL, "/"),
		serviceKey: serviceKey,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

func (s *PostgRESTStore) FindByNationalID(ctx context.Context, nationalID string) (*models.VoterRecord, error) {
	query := url.Values{}
	query.Set("aadhaar_no", "eq."+nationalID)
	query.Set("select", "*")
	query.Set("limit", "1")

	rows, err := s.do(ctx, http.MethodGet, query, nil)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, models.ErrNotFound
	}
	return rows[0].record(), nil
}

func (s *PostgRESTStore) Insert(ctx context.Context, record *models.VoterRecord) (*models.VoterRecord, error) {
	body := writeBody(record)
	body["aadhaar_no"] = record.NationalID

	rows, err := s.do(ctx, http.MethodPost, nil, body)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("insert returned no representation")
	}
	return rows[0].record(), nil
}

func (s *PostgRESTStore) Update(ctx context.Context, record *models.VoterRecord) (*models.VoterRecord, error) {
	query := url.Values{}
	query.Set("aadhaar_no", "eq."+record.NationalID)

	body := writeBody(record)
	body["updated_at"] = time.Now().UTC().Format(time.RFC3339Nano)

	rows, err := s.do(ctx, http.MethodPatch, query, body)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, models.ErrNotFound
	}
	return rows[0].record(), nil
}

func (s *PostgRESTStore) Ping(ctx context.Context) error {
	query := url.Values{}
	query.Set("select", "id")
	query.Set("limit", "1")
	_, err := s.do(ctx, http.MethodGet, query, nil)
	return err
}

func (s *PostgRESTStore) Close() error {
	s.httpClient.CloseIdleConnections()
	return nil
}

func writeBody(record *models.VoterRecord) map[string]any {
	body := map[string]any{
		"name":             record.FullName,
		"mobile_no":        record.MobileNumber,
		"dob":              record.DateOfBirth,
		"email":            nil,
		"metamask_address": record.WalletAddress,
		"is_registered":    record.Registered,
	}
	if record.Email != "" {
		body["email"] = record.Email
	}
	if record.FingerprintHash != "" {
		body["fingerprint_hash"] = record.FingerprintHash
	}
	return body
}

func (s *PostgRESTStore) do(ctx context.Context, method string, query url.Values, body any) ([]restVoter, error) {
	endpoint := s.baseURL + votersResource
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal voter: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("apikey", s.serviceKey)
	req.Header.Set("Authorization", "Bearer "+s.serviceKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Prefer", "return=representation")
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute %s voters: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusConflict {
		return nil, models.ErrConflict
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%s voters failed with status %d: %s", method, resp.StatusCode, string(data))
	}

	var rows []restVoter
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("failed to decode voters: %w", err)
	}
	return rows, nil
}

func (r restVoter) record() *models.VoterRecord {
	return &models.VoterRecord{
		ID:              strings.Trim(string(r.ID), `"`),
		NationalID:      r.NationalID,
		FullName:        r.FullName,
		MobileNumber:    deref(r.MobileNumber),
		DateOfBirth:     r.DateOfBirth,
		Email:           deref(r.Email),
		WalletAddress:   deref(r.WalletAddress),
		Registered:      r.Registered,
		FingerprintHash: deref(r.FingerprintHash),
		CreatedAt:       parseRESTTime(r.CreatedAt),
		UpdatedAt:       parseRESTTime(r.UpdatedAt),
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// parseRESTTime accepts timestamptz and timestamp renderings.
func parseRESTTime(s string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
