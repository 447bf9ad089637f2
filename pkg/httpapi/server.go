// Package httpapi exposes the POS engine to the cashier and kitchen screens over JSON.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"cafepos/pkg/cart"
	"cafepos/pkg/catalog"
	"cafepos/pkg/deduction"
	"cafepos/pkg/order"
	"cafepos/pkg/stock"
	"cafepos/pkg/telemetry"
	"cafepos/pkg/version"
)

// requestTimeout bounds the store work of one request.
const requestTimeout = 5 * time.Second

// Deps are the services the handlers call.
type Deps struct {
	Products    *catalog.Repository
	Ingredients *stock.Repository
	Stock       *stock.Service
	Carts       *cart.Service
	Orders      *order.Manager
	Deductions  *deduction.Transactor
	Logger      *slog.Logger
}

// Server wires HTTP endpoints to the engine services.
type Server struct {
	deps   Deps
	logger *slog.Logger
	router *gin.Engine
}

// New builds the router.
func New(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{deps: deps, logger: logger}

	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger())

	router.GET("/health", s.handleHealth)
	router.GET("/metrics", gin.WrapH(telemetry.Handler()))

	api := router.Group("/api")
	{
		api.GET("/ingredients", s.handleListIngredients)
		api.POST("/ingredients/:id/restock", s.handleRestock)
		api.POST("/ingredients/:id/adjust", s.handleAdjust)

		api.GET("/products", s.handleListProducts)

		api.POST("/cart/validate", s.handleValidateCart)
		api.POST("/cart/totals", s.handleCartTotals)
		api.POST("/cart/add", s.handleCartAdd)
		api.POST("/cart/quantity", s.handleCartQuantity)
		api.POST("/cart/remove", s.handleCartRemove)

		api.POST("/orders", s.handleCheckout)
		api.GET("/orders", s.handlePendingOrders)
		api.GET("/orders/:id", s.handleGetOrder)
		api.POST("/orders/:id/start", s.handleStartOrder)
		api.POST("/orders/:id/items/:index/done", s.handleItemDone)
		api.POST("/orders/:id/ready", s.handleReadyOrder)
		api.POST("/orders/:id/complete", s.handleCompleteOrder)
		api.POST("/orders/:id/void", s.handleVoidOrder)

		api.GET("/sales", s.handleSales)
	}
	s.router = router
	return s
}

// Handler returns the router as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "version": version.Version()})
}

// requestLogger writes one slog line per request.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := c.Writer.Status()
		attrs := []any{
			slog.String("method", c.Request.Method),
			slog.String("path", c.FullPath()),
			slog.Int("status", status),
			slog.Int64("duration_ms", time.Since(start).Milliseconds()),
		}
		switch {
		case status >= http.StatusInternalServerError:
			s.logger.Error("http request", attrs...)
		case status >= http.StatusBadRequest:
			s.logger.Warn("http request", attrs...)
		default:
			s.logger.Debug("http request", attrs...)
		}
	}
}

func requestContext(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), requestTimeout)
}

// sources loads the read models a cart check runs against. They are a snapshot for
// the screen; completion re-reads everything inside its transaction.
func (s *Server) sources(ctx context.Context) (cart.Sources, error) {
	products, err := s.deps.Products.Snapshot(ctx)
	if err != nil {
		return cart.Sources{}, err
	}
	ledger, err := s.deps.Ingredients.Ledger(ctx)
	if err != nil {
		return cart.Sources{}, err
	}
	return cart.Sources{Products: products, Stock: ledger}, nil
}
