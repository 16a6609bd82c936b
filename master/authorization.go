package main

import (
	"errors"
	"net/http"
	"sync"

	"github.com/automoto/arena-sync/receipt"
	"github.com/automoto/arena-sync/results"
	"github.com/automoto/arena-sync/shared/netconfig"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var errReceiptSpent = errors.New("receipt already spent")

// SpentReceipts remembers which receipt ids were exchanged for a signature.
type SpentReceipts struct {
	mu    sync.Mutex
	store results.Store
}

func NewSpentReceipts(store results.Store) *SpentReceipts {
	return &SpentReceipts{store: store}
}

func spentKey(id string) string { return "receipt_" + id }

// Spend marks id as used, failing with errReceiptSpent if it already was.
// sign runs under the lock and the id is only recorded when it succeeds.
func (s *SpentReceipts) Spend(id string, sign func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.store.LoadItem(spentKey(id))
	if err != nil {
		return err
	}
	if len(data) > 0 {
		return errReceiptSpent
	}
	if err := sign(); err != nil {
		return err
	}
	return s.store.SaveItem(spentKey(id), []byte{1})
}

type authRequest struct {
	Address      string  `json:"address"`
	TokenID      *string `json:"tokenId"`
	CurrentLevel int     `json:"currentLevel"`
	Receipt      string  `json:"receipt"`
}

// Authorizer turns verified score receipts into signed mint and evolve
// authorizations.
type Authorizer struct {
	verifier   *receipt.Verifier
	signer     *Signer
	spent      *SpentReceipts
	thresholds map[int]int
	log        *zap.Logger
}

func NewAuthorizer(verifier *receipt.Verifier, signer *Signer, spent *SpentReceipts,
	thresholds map[int]int, logger *zap.Logger) *Authorizer {
	return &Authorizer{
		verifier:   verifier,
		signer:     signer,
		spent:      spent,
		thresholds: thresholds,
		log:        logger.Named("authorization"),
	}
}

// Mint serves POST /api/mint-authorization.
func (a *Authorizer) Mint() gin.HandlerFunc {
	return func(c *gin.Context) {
		req, ok := a.bind(c)
		if !ok {
			return
		}
		if req.TokenID != nil {
			c.JSON(http.StatusBadRequest, errorBody("mint takes no tokenId"))
			return
		}
		a.authorize(c, req, authorizationRequest{
			Player: common.HexToAddress(req.Address),
			Level:  netconfig.MinTokenLevel,
		})
	}
}

// Evolve serves POST /api/evolve-authorization.
func (a *Authorizer) Evolve() gin.HandlerFunc {
	return func(c *gin.Context) {
		req, ok := a.bind(c)
		if !ok {
			return
		}
		if req.TokenID == nil {
			c.JSON(http.StatusBadRequest, errorBody("tokenId required"))
			return
		}
		tokenID, ok := parseTokenID(*req.TokenID)
		if !ok {
			c.JSON(http.StatusBadRequest, errorBody("invalid tokenId"))
			return
		}
		if req.CurrentLevel < netconfig.MinTokenLevel || req.CurrentLevel >= netconfig.MaxTokenLevel {
			c.JSON(http.StatusBadRequest, errorBody("token cannot evolve from this level"))
			return
		}
		a.authorize(c, req, authorizationRequest{
			Player:  common.HexToAddress(req.Address),
			TokenID: tokenID,
			Level:   req.CurrentLevel + 1,
		})
	}
}

func (a *Authorizer) bind(c *gin.Context) (authRequest, bool) {
	var req authRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody("invalid json"))
		return req, false
	}
	if !common.IsHexAddress(req.Address) {
		c.JSON(http.StatusBadRequest, errorBody("invalid address"))
		return req, false
	}
	if req.Receipt == "" {
		c.JSON(http.StatusBadRequest, errorBody("receipt required"))
		return req, false
	}
	return req, true
}

func (a *Authorizer) authorize(c *gin.Context, req authRequest, target authorizationRequest) {
	claims, err := a.verifier.Verify(req.Receipt)
	if err != nil {
		a.log.Info("receipt rejected", zap.Error(err))
		c.JSON(http.StatusUnauthorized, errorBody("invalid receipt"))
		return
	}
	target.Points = claims.Score

	need := a.thresholds[target.Level]
	if claims.Score < need {
		c.JSON(http.StatusForbidden, gin.H{
			"error":    "not enough points",
			"points":   claims.Score,
			"required": need,
		})
		return
	}

	var auth Authorization
	err = a.spent.Spend(claims.ID, func() error {
		var err error
		auth, err = a.signer.Sign(target)
		return err
	})
	switch {
	case errors.Is(err, errReceiptSpent):
		c.JSON(http.StatusConflict, errorBody(err.Error()))
		return
	case err != nil:
		a.log.Error("authorization failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorBody("authorization failed"))
		return
	}

	a.log.Info("authorization signed",
		zap.String("player", target.Player.Hex()),
		zap.Int("level", target.Level),
		zap.Int("points", target.Points),
		zap.String("receipt", claims.ID))
	c.JSON(http.StatusOK, auth)
}
