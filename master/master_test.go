package main

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/automoto/arena-sync/config"
	"github.com/automoto/arena-sync/receipt"
	"github.com/automoto/arena-sync/results"
	"github.com/automoto/arena-sync/shared/protocol"
	"github.com/benbjohnson/clock"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testSecret = "receipt-secret"
	testPlayer = "0x00000000000000000000000000000000000000aa"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fixture struct {
	cfg    config.MasterConfig
	clk    *clock.Mock
	reg    *Registry
	signer *Signer
	issuer *receipt.Issuer
	router *gin.Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clk := clock.NewMock()
	clk.Set(time.Date(2024, 6, 1, 18, 0, 0, 0, time.UTC))

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	cfg := config.DefaultMaster()
	cfg.RateBurst = 100
	cfg.ReceiptSecret = testSecret
	cfg.Signer.PrivateKeyHex = hexutil.Encode(crypto.FromECDSA(key))
	cfg.Signer.VerifyingContract = "0x1111111111111111111111111111111111111111"

	signer, err := NewSigner(cfg.Signer, clk)
	require.NoError(t, err)
	verifier, err := receipt.NewVerifier(testSecret, cfg.ReceiptIssuer, clk)
	require.NoError(t, err)
	issuer, err := receipt.NewIssuer(config.ReceiptConfig{Secret: testSecret, Issuer: cfg.ReceiptIssuer, TTL: time.Hour}, clk)
	require.NoError(t, err)

	reg := NewRegistry(cfg.TTL, clk, zap.NewNop())
	auth := NewAuthorizer(verifier, signer, NewSpentReceipts(results.NewMemStore()), cfg.Thresholds, zap.NewNop())
	return &fixture{
		cfg:    cfg,
		clk:    clk,
		reg:    reg,
		signer: signer,
		issuer: issuer,
		router: NewRouter(cfg, reg, auth, nil, zap.NewNop()),
	}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *fixture) receipt(t *testing.T, score int) string {
	t.Helper()
	tok, err := f.issuer.Issue("s1", 2, "Bob", score)
	require.NoError(t, err)
	return tok
}

func TestSessionDirectory(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/sessions/register", protocol.RegisterRequest{
		SessionID: "s1", Name: "Arena Peer", Address: "10.0.0.2:7373", Players: 2, State: "running",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var reg protocol.RegisterResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &reg))
	require.NotEmpty(t, reg.ID)

	w = f.do(t, http.MethodPost, "/sessions/heartbeat", protocol.HeartbeatRequest{ID: reg.ID, Players: 3, State: "ended"})
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodGet, "/sessions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []protocol.SessionInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, protocol.SessionInfo{
		ID: reg.ID, SessionID: "s1", Name: "Arena Peer", Address: "10.0.0.2:7373", Players: 3, State: "ended",
	}, list[0])

	f.clk.Add(f.cfg.TTL)
	f.reg.expire()
	w = f.do(t, http.MethodPost, "/sessions/heartbeat", protocol.HeartbeatRequest{ID: reg.ID})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRegisterValidation(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodPost, "/sessions/register", protocol.RegisterRequest{Name: "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/sessions/register", bytes.NewBufferString("{"))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestMetadata(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/metadata/level3/42.json", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var meta tokenMetadata
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &meta))
	assert.Equal(t, "Arena Tank #42", meta.Name)
	assert.Equal(t, "https://example.invalid/images/level3.png", meta.Image)
	assert.Equal(t, []attribute{{TraitType: "Level", Value: 3}}, meta.Attributes)

	for _, path := range []string{
		"/metadata/level0/1.json",
		"/metadata/level11/1.json",
		"/metadata/level03/1.json",
		"/metadata/levelx/1.json",
		"/metadata/level2/abc.json",
		"/metadata/level2/-1.json",
		"/metadata/level2/1",
	} {
		assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, path, nil).Code, path)
	}
}

func TestMintAuthorization(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/mint-authorization", authRequest{
		Address: testPlayer,
		Receipt: f.receipt(t, 3),
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var auth Authorization
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &auth))
	assert.Equal(t, 1, auth.Level)
	assert.Equal(t, 3, auth.Points)
	assert.Equal(t, f.clk.Now().Add(f.cfg.Signer.Validity).Unix(), auth.Deadline)

	nonce, ok := new(big.Int).SetString(auth.Nonce, 10)
	require.True(t, ok)
	req := authorizationRequest{Player: common.HexToAddress(testPlayer), Level: 1, Points: 3}
	assertSignedBy(t, f.signer, req, nonce, auth)
}

func TestMintRejectsTokenID(t *testing.T) {
	f := newFixture(t)
	id := "7"
	w := f.do(t, http.MethodPost, "/api/mint-authorization", authRequest{
		Address: testPlayer, TokenID: &id, Receipt: f.receipt(t, 3),
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEvolveAuthorization(t *testing.T) {
	f := newFixture(t)
	id := "7"

	w := f.do(t, http.MethodPost, "/api/evolve-authorization", authRequest{
		Address: testPlayer, TokenID: &id, CurrentLevel: 2, Receipt: f.receipt(t, 11),
	})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(t, http.MethodPost, "/api/evolve-authorization", authRequest{
		Address: testPlayer, TokenID: &id, CurrentLevel: 2, Receipt: f.receipt(t, 12),
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var auth Authorization
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &auth))
	assert.Equal(t, 3, auth.Level)

	nonce, ok := new(big.Int).SetString(auth.Nonce, 10)
	require.True(t, ok)
	req := authorizationRequest{Player: common.HexToAddress(testPlayer), TokenID: big.NewInt(7), Level: 3, Points: 12}
	assertSignedBy(t, f.signer, req, nonce, auth)
}

func TestEvolveValidation(t *testing.T) {
	f := newFixture(t)
	id, bad := "7", "0x7"
	cases := []authRequest{
		{Address: testPlayer, CurrentLevel: 2, Receipt: f.receipt(t, 50)},
		{Address: testPlayer, TokenID: &bad, CurrentLevel: 2, Receipt: f.receipt(t, 50)},
		{Address: testPlayer, TokenID: &id, CurrentLevel: 10, Receipt: f.receipt(t, 500)},
		{Address: testPlayer, TokenID: &id, CurrentLevel: 0, Receipt: f.receipt(t, 500)},
		{Address: "not-an-address", TokenID: &id, CurrentLevel: 2, Receipt: f.receipt(t, 50)},
		{Address: testPlayer, TokenID: &id, CurrentLevel: 2},
	}
	for i, body := range cases {
		w := f.do(t, http.MethodPost, "/api/evolve-authorization", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, "case %d", i)
	}
}

func TestReceiptChecks(t *testing.T) {
	f := newFixture(t)
	tok := f.receipt(t, 3)

	w := f.do(t, http.MethodPost, "/api/mint-authorization", authRequest{Address: testPlayer, Receipt: "garbage"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(t, http.MethodPost, "/api/mint-authorization", authRequest{Address: testPlayer, Receipt: tok})
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodPost, "/api/mint-authorization", authRequest{Address: testPlayer, Receipt: tok})
	assert.Equal(t, http.StatusConflict, w.Code)

	expired := f.receipt(t, 3)
	f.clk.Add(2 * time.Hour)
	w = f.do(t, http.MethodPost, "/api/mint-authorization", authRequest{Address: testPlayer, Receipt: expired})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthorizationRateLimited(t *testing.T) {
	f := newFixture(t)
	f.cfg.RatePerSecond = 0.001
	f.cfg.RateBurst = 2
	router := NewRouter(f.cfg, f.reg, nil, nil, zap.NewNop())
	assert.Equal(t, http.StatusNotFound, serve(router, "/api/mint-authorization").Code)

	verifier, err := receipt.NewVerifier(testSecret, f.cfg.ReceiptIssuer, f.clk)
	require.NoError(t, err)
	auth := NewAuthorizer(verifier, f.signer, NewSpentReceipts(results.NewMemStore()), f.cfg.Thresholds, zap.NewNop())
	router = NewRouter(f.cfg, f.reg, auth, nil, zap.NewNop())

	codes := make([]int, 0, 3)
	for range 3 {
		codes = append(codes, serve(router, "/api/mint-authorization").Code)
	}
	assert.Equal(t, []int{http.StatusBadRequest, http.StatusBadRequest, http.StatusTooManyRequests}, codes)
}

func TestLimiterForgetsIdleAddresses(t *testing.T) {
	clk := clock.NewMock()
	lim := newIPLimiter(1, 1, time.Minute, clk)

	assert.True(t, lim.get("10.0.0.1").Allow())
	assert.False(t, lim.get("10.0.0.1").Allow())
	lim.get("10.0.0.2")

	clk.Add(30 * time.Second)
	lim.get("10.0.0.1")
	clk.Add(40 * time.Second)

	assert.Equal(t, 1, lim.sweep())
	assert.Equal(t, 1, lim.tracked())

	clk.Add(2 * time.Minute)
	assert.Equal(t, 1, lim.sweep())
	assert.Zero(t, lim.tracked())
	assert.True(t, lim.get("10.0.0.1").Allow(), "a forgotten address starts with a full bucket")
}

func TestLimiterRunStopsWithContext(t *testing.T) {
	lim := newIPLimiter(1, 1, time.Minute, clock.NewMock())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, lim.Run(ctx))
}

func serve(router *gin.Engine, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString("{}"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func assertSignedBy(t *testing.T, s *Signer, req authorizationRequest, nonce *big.Int, auth Authorization) {
	t.Helper()
	hash, _, err := apitypes.TypedDataAndHash(s.typedData(req, nonce, auth.Deadline))
	require.NoError(t, err)

	sig, err := hexutil.Decode(auth.Signature)
	require.NoError(t, err)
	require.Len(t, sig, crypto.SignatureLength)
	assert.Contains(t, []byte{27, 28}, sig[crypto.RecoveryIDOffset])
	sig[crypto.RecoveryIDOffset] -= 27

	pub, err := crypto.SigToPub(hash, sig)
	require.NoError(t, err)
	assert.Equal(t, s.Address(), crypto.PubkeyToAddress(*pub))
}

func TestSignerConfigErrors(t *testing.T) {
	_, err := NewSigner(config.SignerConfig{}, nil)
	assert.Error(t, err)
	_, err = NewSigner(config.SignerConfig{PrivateKeyHex: "zz"}, nil)
	assert.Error(t, err)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	_, err = NewSigner(config.SignerConfig{
		PrivateKeyHex:     hexutil.Encode(crypto.FromECDSA(key)),
		VerifyingContract: "nope",
	}, nil)
	assert.Error(t, err)
}

func TestRegistryListSorted(t *testing.T) {
	reg := NewRegistry(time.Minute, clock.NewMock(), zap.NewNop())
	reg.Register(protocol.SessionInfo{Name: "b"})
	reg.Register(protocol.SessionInfo{Name: "a"})

	list := reg.List()
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].Name)
	assert.Equal(t, "b", list[1].Name)
}
