// Package billing runs the simulated checkout that unlocks a session's
// policy pack export. A checkout is paid once the caller presents the proof
// token a payment provider would hand back after a successful charge.
package billing

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/blake2b"

	"github.com/Manjussha/budgetguard/internal/db"
	"github.com/Manjussha/budgetguard/internal/sessions"
)

var (
	ErrCheckoutNotFound = errors.New("checkout not found")
	ErrInvalidProof     = errors.New("invalid payment proof")
	ErrCheckoutExpired  = errors.New("checkout expired")
	ErrNotPaid          = errors.New("checkout not paid")
)

// proofPrefix marks tokens minted by the simulated provider.
const proofPrefix = "pp_"

// Service creates and settles checkouts.
type Service struct {
	database *db.DB
	secret   []byte
	price    decimal.Decimal
	ttl      time.Duration
	now      func() time.Time
}

// New creates a Service. price is a decimal string such as "19.00".
func New(database *db.DB, secret, price string, ttl time.Duration) (*Service, error) {
	p, err := decimal.NewFromString(price)
	if err != nil {
		return nil, fmt.Errorf("billing.New: price %q: %w", price, err)
	}
	if !p.IsPositive() {
		return nil, fmt.Errorf("billing.New: price must be positive, got %s", price)
	}
	if len(secret) > blake2b.Size {
		return nil, fmt.Errorf("billing.New: secret longer than %d bytes", blake2b.Size)
	}
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Service{
		database: database,
		secret:   []byte(secret),
		price:    p,
		ttl:      ttl,
		now:      time.Now,
	}, nil
}

// Price returns the pack price formatted with two decimals.
func (s *Service) Price() string { return s.price.StringFixed(2) }

// Create opens a pending checkout for an existing session.
func (s *Service) Create(ctx context.Context, sessionID string) (*db.Checkout, error) {
	var exists int
	err := s.database.QueryRowContext(ctx, `SELECT 1 FROM sessions WHERE id=?`, sessionID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sessions.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("billing.Create: %w", err)
	}

	now := s.now().UTC()
	c := &db.Checkout{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Status:    db.CheckoutPending,
		PriceUSD:  s.Price(),
		ExpiresAt: now.Add(s.ttl),
		CreatedAt: now,
	}
	_, err = s.database.ExecContext(ctx,
		`INSERT INTO checkouts (id, session_id, status, price_usd, expires_at, created_at) VALUES (?,?,?,?,?,?)`,
		c.ID, c.SessionID, c.Status, c.PriceUSD, c.ExpiresAt, c.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("billing.Create: %w", err)
	}
	return c, nil
}

// Get fetches a checkout by id.
func (s *Service) Get(ctx context.Context, id string) (*db.Checkout, error) {
	var c db.Checkout
	err := s.database.QueryRowContext(ctx,
		`SELECT id, session_id, status, price_usd, expires_at, paid_at, created_at FROM checkouts WHERE id=?`, id,
	).Scan(&c.ID, &c.SessionID, &c.Status, &c.PriceUSD, &c.ExpiresAt, &c.PaidAt, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCheckoutNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("billing.Get: %w", err)
	}
	return &c, nil
}

// Proof is the token the simulated provider issues for a paid checkout.
func (s *Service) Proof(checkoutID string) string {
	h, err := blake2b.New256(s.secret)
	if err != nil {
		// Key length is checked in New.
		panic(err)
	}
	h.Write([]byte(checkoutID))
	return proofPrefix + hex.EncodeToString(h.Sum(nil))[:32]
}

// Confirm marks a checkout paid when proof matches. Confirming a paid
// checkout again with a valid proof succeeds without changes. first is true
// only for the call whose update moved the checkout from pending to paid.
func (s *Service) Confirm(ctx context.Context, id, proof string) (c *db.Checkout, first bool, err error) {
	c, err = s.Get(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if subtle.ConstantTimeCompare([]byte(proof), []byte(s.Proof(id))) != 1 {
		return nil, false, ErrInvalidProof
	}

	now := s.now().UTC()
	switch c.Status {
	case db.CheckoutPaid:
		return c, false, nil
	case db.CheckoutExpired:
		return nil, false, ErrCheckoutExpired
	}
	if !now.Before(c.ExpiresAt) {
		s.expire(ctx, id)
		return nil, false, ErrCheckoutExpired
	}

	res, err := s.database.ExecContext(ctx,
		`UPDATE checkouts SET status=?, paid_at=? WHERE id=? AND status=?`,
		db.CheckoutPaid, now, id, db.CheckoutPending,
	)
	if err != nil {
		return nil, false, fmt.Errorf("billing.Confirm: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("billing.Confirm: rows affected: %w", err)
	}
	if n == 1 {
		c.Status = db.CheckoutPaid
		c.PaidAt = sql.NullTime{Time: now, Valid: true}
		return c, true, nil
	}

	// Another request changed the row between Get and UPDATE.
	c, err = s.Get(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if c.Status != db.CheckoutPaid {
		return nil, false, ErrCheckoutExpired
	}
	return c, false, nil
}

// Authorize checks that checkoutID is paid and bound to sessionID.
func (s *Service) Authorize(ctx context.Context, checkoutID, sessionID string) error {
	c, err := s.Get(ctx, checkoutID)
	if errors.Is(err, ErrCheckoutNotFound) {
		return ErrNotPaid
	}
	if err != nil {
		return err
	}
	if c.Status != db.CheckoutPaid || c.SessionID != sessionID {
		return ErrNotPaid
	}
	return nil
}

// ExpireStale marks pending checkouts whose expiry has passed and returns
// how many were changed.
func (s *Service) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.database.ExecContext(ctx,
		`UPDATE checkouts SET status=? WHERE status=? AND expires_at <= ?`,
		db.CheckoutExpired, db.CheckoutPending, now.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("billing.ExpireStale: %w", err)
	}
	return res.RowsAffected()
}

func (s *Service) expire(ctx context.Context, id string) {
	_, _ = s.database.ExecContext(ctx,
		`UPDATE checkouts SET status=? WHERE id=? AND status=?`,
		db.CheckoutExpired, id, db.CheckoutPending,
	)
}
