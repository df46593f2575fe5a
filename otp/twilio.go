package otp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"voting-gateway/logging"
)

const DefaultTwilioBaseURL = "https://verify.twilio.com"

// TwilioVerify talks to the Twilio Verify v2 REST API.
type TwilioVerify struct {
	baseURL    string
	accountSID string
	authToken  string
	serviceSID string
	httpClient *http.Client
}

type TwilioOption func(*TwilioVerify)

// WithBaseURL points the client at another host, used by tests.
func WithBaseURL(baseURL string) TwilioOption {
	return func(c *TwilioVerify) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

func WithHTTPClient(client *http.Client) TwilioOption {
	return func(c *TwilioVerify) {
		c.httpClient = client
	}
}

func NewTwilioVerify(accountSID, authToken, serviceSID string, opts ...TwilioOption) *TwilioVerify {
	c := &TwilioVerify{
		baseURL:    DefaultTwilioBaseURL,
		accountSID: accountSID,
		authToken:  authToken,
		serviceSID: serviceSID,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *TwilioVerify) Name() string {
	return "twilio"
}

// Send starts an SMS verification for destination.
func (c *TwilioVerify) Send(ctx context.Context, destination string) (string, error) {
	form := url.Values{}
	form.Set("To", destination)
	form.Set("Channel", "sms")

	status, err := c.post(ctx, "Verifications", form)
	if err != nil {
		return "", err
	}

	logging.Logger.Info().
		Str("to", logging.Mask(destination)).
		Str("status", status).
		Msg("verification started")
	return status, nil
}

// Check submits code for the pending verification of destination.
func (c *TwilioVerify) Check(ctx context.Context, destination, code string) (string, error) {
	form := url.Values{}
	form.Set("To", destination)
	form.Set("Code", code)

	status, err := c.post(ctx, "VerificationCheck", form)
	if err != nil {
		return "", err
	}

	logging.Logger.Info().
		Str("to", logging.Mask(destination)).
		Str("status", status).
		Msg("verification checked")
	return status, nil
}

func (c *TwilioVerify) post(ctx context.Context, resource string, form url.Values) (string, error) {
	endpoint := fmt.Sprintf("%s/v2/Services/%s/%s", c.baseURL, url.PathEscape(c.serviceSID), resource)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create %s request: %w", resource, err)
	}
	req.SetBasicAuth(c.accountSID, c.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to execute %s request: %w", resource, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var apiErr struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		}
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Message != "" {
			return "", fmt.Errorf("%s failed with status %d: %s (code %d)", resource, resp.StatusCode, apiErr.Message, apiErr.Code)
		}
		return "", fmt.Errorf("%s failed with status %d: %s", resource, resp.StatusCode, string(body))
	}

	var verification struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&verification); err != nil {
		return "", fmt.Errorf("failed to decode %s response: %w", resource, err)
	}

	return verification.Status, nil
}
