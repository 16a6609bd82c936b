package main

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/automoto/arena-sync/config"
	"github.com/benbjohnson/clock"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/google/uuid"
)

const (
	mintType   = "MintAuthorization"
	evolveType = "EvolveAuthorization"
)

var authorizationTypes = apitypes.Types{
	"EIP712Domain": {
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
		{Name: "verifyingContract", Type: "address"},
	},
	mintType: {
		{Name: "player", Type: "address"},
		{Name: "level", Type: "uint256"},
		{Name: "points", Type: "uint256"},
		{Name: "nonce", Type: "uint256"},
		{Name: "deadline", Type: "uint256"},
	},
	evolveType: {
		{Name: "player", Type: "address"},
		{Name: "tokenId", Type: "uint256"},
		{Name: "level", Type: "uint256"},
		{Name: "points", Type: "uint256"},
		{Name: "nonce", Type: "uint256"},
		{Name: "deadline", Type: "uint256"},
	},
}

// Authorization is a signed permission to mint or evolve a token.
type Authorization struct {
	Signature string `json:"signature"`
	Nonce     string `json:"nonce"`
	Deadline  int64  `json:"deadline"`
	Level     int    `json:"level"`
	Points    int    `json:"points"`
}

// authorizationRequest is what gets signed. TokenID is nil for a mint.
type authorizationRequest struct {
	Player  common.Address
	TokenID *big.Int
	Level   int
	Points  int
}

// Signer produces EIP-712 signatures the token contract can verify.
type Signer struct {
	key    *ecdsa.PrivateKey
	domain apitypes.TypedDataDomain
	cfg    config.SignerConfig
	clk    clock.Clock
}

func NewSigner(cfg config.SignerConfig, clk clock.Clock) (*Signer, error) {
	if cfg.PrivateKeyHex == "" {
		return nil, errors.New("signer private key is empty")
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("signer key: %w", err)
	}
	if !common.IsHexAddress(cfg.VerifyingContract) {
		return nil, fmt.Errorf("verifying contract %q is not an address", cfg.VerifyingContract)
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Signer{
		key: key,
		domain: apitypes.TypedDataDomain{
			Name:              cfg.DomainName,
			Version:           cfg.DomainVersion,
			ChainId:           math.NewHexOrDecimal256(cfg.ChainID),
			VerifyingContract: common.HexToAddress(cfg.VerifyingContract).Hex(),
		},
		cfg: cfg,
		clk: clk,
	}, nil
}

// Address is the account the contract must trust.
func (s *Signer) Address() common.Address {
	return crypto.PubkeyToAddress(s.key.PublicKey)
}

// Sign authorizes req with a fresh nonce and deadline.
func (s *Signer) Sign(req authorizationRequest) (Authorization, error) {
	id := uuid.New()
	nonce := new(big.Int).SetBytes(id[:])
	deadline := s.clk.Now().Add(s.cfg.Validity).Unix()

	hash, _, err := apitypes.TypedDataAndHash(s.typedData(req, nonce, deadline))
	if err != nil {
		return Authorization{}, fmt.Errorf("hash typed data: %w", err)
	}
	sig, err := crypto.Sign(hash, s.key)
	if err != nil {
		return Authorization{}, fmt.Errorf("sign: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27

	return Authorization{
		Signature: hexutil.Encode(sig),
		Nonce:     nonce.String(),
		Deadline:  deadline,
		Level:     req.Level,
		Points:    req.Points,
	}, nil
}

func (s *Signer) typedData(req authorizationRequest, nonce *big.Int, deadline int64) apitypes.TypedData {
	msg := apitypes.TypedDataMessage{
		"player":   req.Player.Hex(),
		"level":    fmt.Sprint(req.Level),
		"points":   fmt.Sprint(req.Points),
		"nonce":    nonce.String(),
		"deadline": fmt.Sprint(deadline),
	}
	primary := mintType
	if req.TokenID != nil {
		primary = evolveType
		msg["tokenId"] = req.TokenID.String()
	}
	return apitypes.TypedData{
		Types:       authorizationTypes,
		PrimaryType: primary,
		Domain:      s.domain,
		Message:     msg,
	}
}
