package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"dualinvest-core/internal/product"
	"dualinvest-core/internal/strategy"
	"dualinvest-core/pkg/db"
)

type evaluateRequest struct {
	Symbol  string          `json:"symbol" binding:"required,min=1"`
	Product product.Product `json:"product" binding:"required"`
}

type createInvestmentRequest struct {
	DecisionID  string  `json:"decision_id"`
	ProductID   string  `json:"product_id" binding:"required,min=1"`
	Symbol      string  `json:"symbol" binding:"required,min=1"`
	Asset       string  `json:"asset" binding:"required,min=1"`
	Currency    string  `json:"currency" binding:"required,min=1"`
	ProductType string  `json:"product_type" binding:"required,oneof=BUY_LOW SELL_HIGH"`
	StrikePrice float64 `json:"strike_price" binding:"gt=0"`
	APY         float64 `json:"apy" binding:"gt=0"`
	TermDays    int     `json:"term_days" binding:"gt=0"`
	Amount      float64 `json:"amount" binding:"gt=0"`
}

type updateStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=PENDING ACTIVE SETTLED CANCELLED"`
}

type setWeightRequest struct {
	Weight float64 `json:"weight" binding:"gt=0"`
}

type setActiveRequest struct {
	Active *bool `json:"active" binding:"required"`
}

type updateEnsembleRequest struct {
	Method        string  `json:"method"`
	MinConfidence float64 `json:"min_confidence"`
}

func respondError(c *gin.Context, status int, code, msg string) {
	c.JSON(status, gin.H{
		"code":  code,
		"error": msg,
	})
}

func queryInt(c *gin.Context, key string, fallback int) int {
	if raw := c.Query(key); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			return n
		}
	}
	return fallback
}

func (s *Server) getSystemStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"version":        s.Meta.Version,
		"testnet":        s.Meta.Testnet,
		"symbols":        s.Meta.Symbols,
		"method":         s.Manager.Method(),
		"min_confidence": s.Manager.MinConfidence(),
		"strategies":     s.Manager.Strategies(),
		"time":           time.Now().UTC(),
	})
}

// getMarketAnalysis computes a fresh snapshot from live market data.
func (s *Server) getMarketAnalysis(c *gin.Context) {
	symbol := c.Param("symbol")
	snap, err := s.Engine.AnalyzeMarket(c.Request.Context(), symbol)
	if err != nil {
		respondError(c, http.StatusBadGateway, "MARKET_DATA", err.Error())
		return
	}
	c.JSON(http.StatusOK, snap)
}

// getLatestSnapshot serves the last persisted snapshot without hitting the
// exchange.
func (s *Server) getLatestSnapshot(c *gin.Context) {
	if s.DB == nil {
		respondError(c, http.StatusServiceUnavailable, "NO_STORE", "persistence is disabled")
		return
	}
	snap, err := s.DB.LatestSnapshot(c.Request.Context(), c.Param("symbol"))
	if errors.Is(err, db.ErrNotFound) {
		respondError(c, http.StatusNotFound, "NOT_FOUND", "no snapshot stored for symbol")
		return
	}
	if err != nil {
		respondError(c, http.StatusInternalServerError, "DB", err.Error())
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (s *Server) getBestProducts(c *gin.Context) {
	symbol := c.Param("symbol")
	topN := queryInt(c, "top", 0)

	ranked, snap, err := s.Engine.BestProducts(c.Request.Context(), symbol, topN)
	if err != nil {
		respondError(c, http.StatusBadGateway, "MARKET_DATA", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"symbol":   symbol,
		"snapshot": snap,
		"ranked":   ranked,
	})
}

func (s *Server) evaluateProduct(c *gin.Context) {
	var req evaluateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	if err := req.Product.Validate(); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_PRODUCT", err.Error())
		return
	}

	res, decisionID, err := s.Engine.EvaluateProduct(c.Request.Context(), req.Symbol, req.Product)
	if err != nil {
		respondError(c, http.StatusBadGateway, "MARKET_DATA", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"decision_id": decisionID,
		"result":      res,
	})
}

func (s *Server) listDecisions(c *gin.Context) {
	if s.DB == nil {
		respondError(c, http.StatusServiceUnavailable, "NO_STORE", "persistence is disabled")
		return
	}
	out, err := s.DB.ListDecisions(c.Request.Context(), c.Query("symbol"), queryInt(c, "limit", 50))
	if err != nil {
		respondError(c, http.StatusInternalServerError, "DB", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"decisions": out, "count": len(out)})
}

func (s *Server) getDecision(c *gin.Context) {
	if s.DB == nil {
		respondError(c, http.StatusServiceUnavailable, "NO_STORE", "persistence is disabled")
		return
	}
	rec, err := s.DB.GetDecision(c.Request.Context(), c.Param("id"))
	if errors.Is(err, db.ErrNotFound) {
		respondError(c, http.StatusNotFound, "NOT_FOUND", "decision not found")
		return
	}
	if err != nil {
		respondError(c, http.StatusInternalServerError, "DB", err.Error())
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) listInvestments(c *gin.Context) {
	if s.DB == nil {
		respondError(c, http.StatusServiceUnavailable, "NO_STORE", "persistence is disabled")
		return
	}
	out, err := s.DB.ListInvestments(c.Request.Context(), c.Query("status"), queryInt(c, "limit", 50))
	if err != nil {
		respondError(c, http.StatusInternalServerError, "DB", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"investments": out, "count": len(out)})
}

// createInvestment records a subscription made off the back of a decision.
// Order placement itself happens outside this service.
func (s *Server) createInvestment(c *gin.Context) {
	if s.DB == nil {
		respondError(c, http.StatusServiceUnavailable, "NO_STORE", "persistence is disabled")
		return
	}
	var req createInvestmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	inv := db.Investment{
		ID:             "INV_" + uuid.NewString(),
		DecisionID:     req.DecisionID,
		ProductID:      req.ProductID,
		Symbol:         req.Symbol,
		Asset:          req.Asset,
		Currency:       req.Currency,
		ProductType:    req.ProductType,
		StrikePrice:    req.StrikePrice,
		APY:            req.APY,
		TermDays:       req.TermDays,
		Amount:         req.Amount,
		Status:         "PENDING",
		SettlementDate: time.Now().UTC().AddDate(0, 0, req.TermDays),
	}
	if err := s.DB.CreateInvestment(c.Request.Context(), inv); err != nil {
		respondError(c, http.StatusInternalServerError, "DB", err.Error())
		return
	}
	c.JSON(http.StatusCreated, inv)
}

func (s *Server) updateInvestmentStatus(c *gin.Context) {
	if s.DB == nil {
		respondError(c, http.StatusServiceUnavailable, "NO_STORE", "persistence is disabled")
		return
	}
	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	err := s.DB.UpdateInvestmentStatus(c.Request.Context(), c.Param("id"), req.Status)
	if errors.Is(err, db.ErrNotFound) {
		respondError(c, http.StatusNotFound, "NOT_FOUND", "investment not found")
		return
	}
	if err != nil {
		respondError(c, http.StatusInternalServerError, "DB", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "status": req.Status})
}

func (s *Server) getStrategies(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"strategies":     s.Manager.Strategies(),
		"method":         s.Manager.Method(),
		"min_confidence": s.Manager.MinConfidence(),
	})
}

func (s *Server) setStrategyWeight(c *gin.Context) {
	var req setWeightRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	err := s.Manager.SetWeight(c.Param("name"), req.Weight)
	if errors.Is(err, strategy.ErrUnknownStrategy) {
		respondError(c, http.StatusNotFound, "NOT_FOUND", "strategy not registered")
		return
	}
	if err != nil {
		respondError(c, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"name": c.Param("name"), "weight": req.Weight})
}

func (s *Server) setStrategyActive(c *gin.Context) {
	var req setActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	err := s.Manager.SetActive(c.Param("name"), *req.Active)
	if errors.Is(err, strategy.ErrUnknownStrategy) {
		respondError(c, http.StatusNotFound, "NOT_FOUND", "strategy not registered")
		return
	}
	if err != nil {
		respondError(c, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"name": c.Param("name"), "active": *req.Active})
}

// updateEnsemble tunes the combiner. Both fields are optional; only what is
// present changes, and in-flight evaluations keep the configuration they
// started with.
func (s *Server) updateEnsemble(c *gin.Context) {
	var req updateEnsembleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	if req.Method != "" {
		if err := s.Manager.SetMethod(strategy.EnsembleMethod(req.Method)); err != nil {
			respondError(c, http.StatusBadRequest, "BAD_REQUEST", err.Error())
			return
		}
	}
	if req.MinConfidence != 0 {
		if err := s.Manager.SetMinConfidence(req.MinConfidence); err != nil {
			respondError(c, http.StatusBadRequest, "BAD_REQUEST", err.Error())
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"method":         s.Manager.Method(),
		"min_confidence": s.Manager.MinConfidence(),
	})
}
