package otp

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"sync"
	"time"

	"voting-gateway/logging"
)

const (
	consoleCodeLength  = 6
	consoleCodeTTL     = 5 * time.Minute
	consoleMaxAttempts = 3
)

// Console is a development provider: it keeps codes in memory and writes
// them to the log instead of sending an SMS. Statuses mirror Twilio's.
// It is the only place a code is ever logged; never enable it in production.
type Console struct {
	mu     sync.Mutex
	codes  map[string]*consoleCode
	now    func() time.Time
	random io.Reader
}

type consoleCode struct {
	code      string
	expiresAt time.Time
	attempts  int
}

func NewConsole() *Console {
	return &Console{
		codes:  make(map[string]*consoleCode),
		now:    time.Now,
		random: rand.Reader,
	}
}

func (c *Console) Name() string {
	return "console"
}

func (c *Console) Send(_ context.Context, destination string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pruneLocked()

	code, err := generateCode(c.random, consoleCodeLength)
	if err != nil {
		return "", err
	}
	c.codes[destination] = &consoleCode{
		code:      code,
		expiresAt: c.now().Add(consoleCodeTTL),
	}

	logging.Logger.Warn().
		Str("to", logging.Mask(destination)).
		Str("code", code).
		Msg("console otp issued")
	return "pending", nil
}

func (c *Console) Check(_ context.Context, destination, code string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.codes[destination]
	if !ok {
		return "not_found", nil
	}

	if c.now().After(entry.expiresAt) {
		delete(c.codes, destination)
		return "expired", nil
	}

	if entry.attempts >= consoleMaxAttempts {
		delete(c.codes, destination)
		return "max_attempts_reached", nil
	}

	if entry.code != code {
		entry.attempts++
		return "pending", nil
	}

	delete(c.codes, destination)
	return "approved", nil
}

func (c *Console) pruneLocked() {
	now := c.now()
	for dest, entry := range c.codes {
		if now.After(entry.expiresAt) {
			delete(c.codes, dest)
		}
	}
}

func generateCode(random io.Reader, length int) (string, error) {
	const digits = "0123456789"
	code := make([]byte, length)

	for i := range code {
		num, err := rand.Int(random, big.NewInt(int64(len(digits))))
		if err != nil {
			return "", fmt.Errorf("failed to generate code: %w", err)
		}
		code[i] = digits[num.Int64()]
	}

	return string(code), nil
}
