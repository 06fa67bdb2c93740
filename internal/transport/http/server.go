package http

import (
	"database/sql"
	"log/slog"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"checkout-core/internal/repo"
	"checkout-core/internal/service"
	"checkout-core/internal/webhook"
)

// Server owns the router and the request-handling dependencies. All of them
// are constructed once at process start; handlers share them by reference
// and keep no per-request state.
type Server struct {
	router *gin.Engine

	db       *sql.DB
	checkout service.CheckoutService
	resolver *service.Resolver
	auth     *webhook.Authenticator
	orders   repo.OrderRepo
	tokens   *TokenVerifier
	logger   *slog.Logger
}

func NewServer(
	db *sql.DB,
	checkout service.CheckoutService,
	resolver *service.Resolver,
	auth *webhook.Authenticator,
	orders repo.OrderRepo,
	tokens *TokenVerifier,
	logger *slog.Logger,
) *Server {
	router := gin.Default()
	router.Use(cors.Default())

	s := &Server{
		router:   router,
		db:       db,
		checkout: checkout,
		resolver: resolver,
		auth:     auth,
		orders:   orders,
		tokens:   tokens,
		logger:   logger,
	}

	router.GET("/health", s.handleHealth)

	api := router.Group("/api")
	api.Use(s.identifyCaller)
	{
		api.POST("/checkout", s.handleCheckout)
		api.GET("/checkout/verify", s.handleVerify)
		api.POST("/webhook", s.handleWebhook)
		api.GET("/orders", s.requireCaller, s.handleListOrders)
	}

	return s
}

func (s *Server) Run(addr string) error {
	return s.router.Run(addr)
}
