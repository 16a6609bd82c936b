// Package receipt issues and verifies signed score receipts. A peer issues
// one to the winner when a match ends; the master checks it before minting.
package receipt

import (
	"errors"
	"fmt"
	"time"

	"github.com/automoto/arena-sync/config"
	"github.com/automoto/arena-sync/shared/netconfig"
	"github.com/benbjohnson/clock"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrNoSecret = errors.New("receipt secret is empty")

// Claims is the payload of a score receipt.
type Claims struct {
	SessionID string           `json:"sid"`
	Peer      netconfig.PeerID `json:"pid"`
	Name      string           `json:"name"`
	Score     int              `json:"score"`
	jwt.RegisteredClaims
}

type Issuer struct {
	key    []byte
	issuer string
	ttl    time.Duration
	clk    clock.Clock
}

func NewIssuer(cfg config.ReceiptConfig, clk clock.Clock) (*Issuer, error) {
	if cfg.Secret == "" {
		return nil, ErrNoSecret
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Issuer{key: []byte(cfg.Secret), issuer: cfg.Issuer, ttl: cfg.TTL, clk: clk}, nil
}

// Issue signs a receipt for peer's final score in session.
func (i *Issuer) Issue(session string, peer netconfig.PeerID, name string, score int) (string, error) {
	now := i.clk.Now()
	claims := Claims{
		SessionID: session,
		Peer:      peer,
		Name:      name,
		Score:     score,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:       uuid.NewString(),
			Issuer:   i.issuer,
			Subject:  peer.String(),
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if i.ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(i.ttl))
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.key)
	if err != nil {
		return "", fmt.Errorf("sign receipt: %w", err)
	}
	return signed, nil
}

type Verifier struct {
	key    []byte
	parser *jwt.Parser
}

func NewVerifier(secret, issuer string, clk clock.Clock) (*Verifier, error) {
	if secret == "" {
		return nil, ErrNoSecret
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Verifier{
		key: []byte(secret),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithIssuer(issuer),
			jwt.WithIssuedAt(),
			jwt.WithTimeFunc(clk.Now),
		),
	}, nil
}

// Verify checks the signature, issuer and expiry of token.
func (v *Verifier) Verify(token string) (*Claims, error) {
	var claims Claims
	_, err := v.parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return v.key, nil
	})
	if err != nil {
		return nil, fmt.Errorf("verify receipt: %w", err)
	}
	if claims.ID == "" || claims.SessionID == "" {
		return nil, fmt.Errorf("verify receipt: %w", jwt.ErrTokenInvalidClaims)
	}
	return &claims, nil
}
