package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"dualinvest-core/internal/engine"
	"dualinvest-core/internal/events"
	"dualinvest-core/internal/strategy"
	"dualinvest-core/pkg/db"
)

// Server exposes the decision engine over HTTP.
type Server struct {
	Router  *gin.Engine
	Bus     *events.Bus
	DB      *db.Database
	Engine  *engine.Engine
	Manager *strategy.Manager
	Meta    SystemMeta
}

// SystemMeta describes runtime status reported by /api/system/status.
type SystemMeta struct {
	Version string
	Testnet bool
	Symbols []string
}

func NewServer(bus *events.Bus, database *db.Database, eng *engine.Engine, mgr *strategy.Manager, meta SystemMeta) *Server {
	r := gin.New()

	// Middleware stack (order matters!)
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(RequestLogger())
	r.Use(RateLimitMiddleware())
	r.Use(TimeoutMiddleware(60 * time.Second))
	r.Use(CORSMiddleware())

	s := &Server{
		Router:  r,
		Bus:     bus,
		DB:      database,
		Engine:  eng,
		Manager: mgr,
		Meta:    meta,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)
	s.Router.GET("/ws", s.websocket)

	api := s.Router.Group("/api")
	{
		api.GET("/system/status", s.getSystemStatus)

		api.GET("/market/:symbol/analysis", s.getMarketAnalysis)
		api.GET("/market/:symbol/snapshot", s.getLatestSnapshot)
		api.GET("/market/:symbol/best", s.getBestProducts)
		api.POST("/evaluate", s.evaluateProduct)

		api.GET("/decisions", s.listDecisions)
		api.GET("/decisions/:id", s.getDecision)

		api.GET("/investments", s.listInvestments)
		api.POST("/investments", s.createInvestment)
		api.PUT("/investments/:id/status", s.updateInvestmentStatus)

		api.GET("/strategies", s.getStrategies)
		api.PUT("/strategies/:name/weight", s.setStrategyWeight)
		api.PUT("/strategies/:name/active", s.setStrategyActive)
		api.PUT("/ensemble", s.updateEnsemble)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) Start(addr string) error {
	return s.Router.Run(addr)
}
