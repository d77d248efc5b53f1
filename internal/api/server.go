// Package api is the HTTP/WebSocket boundary: order submission, order
// lookup, and the per-order event stream. It validates and forwards; all
// order logic lives behind the dispatcher.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/solrouter/swapflow/internal/order"
	"github.com/solrouter/swapflow/internal/store"
	"github.com/solrouter/swapflow/internal/ws"
)

// Submitter is the slice of the dispatcher the API needs.
type Submitter interface {
	Submit(ctx context.Context, req order.Request) (uuid.UUID, error)
	Failed(id uuid.UUID) (string, bool)
}

// Server wires the gin router.
type Server struct {
	engine     *gin.Engine
	logger     *zap.Logger
	dispatcher Submitter
	store      store.OrderStore
	hub        *ws.Hub
}

func NewServer(logger *zap.Logger, dispatcher Submitter, st store.OrderStore, hub *ws.Hub) *Server {
	s := &Server{
		logger:     logger,
		dispatcher: dispatcher,
		store:      st,
		hub:        hub,
	}

	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterValidation("asset", func(fl validator.FieldLevel) bool {
			return order.KnownAsset(fl.Field().String())
		})
	}

	engine := gin.New()
	engine.Use(ginzap.Ginzap(logger, time.RFC3339, true))
	engine.Use(ginzap.RecoveryWithZap(logger, true))
	engine.Use(cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders: []string{"Content-Length"},
	}))

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	orders := engine.Group("/api/orders")
	orders.POST("", s.submitOrder)
	orders.GET("/:id", s.getOrder)
	orders.GET("/:id/ws", s.streamOrder)

	s.engine = engine
	return s
}

// Handler exposes the router for http.Server wiring and tests.
func (s *Server) Handler() http.Handler { return s.engine }

// submitOrder accepts an OrderRequest payload and returns the generated
// order id immediately; the pipeline runs out-of-band.
func (s *Server) submitOrder(c *gin.Context) {
	var req order.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed order request: " + err.Error()})
		return
	}
	id, err := s.dispatcher.Submit(c.Request.Context(), req)
	if err != nil {
		var verr *order.ValidationError
		if errors.As(err, &verr) {
			c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error()})
			return
		}
		s.logger.Error("submitting order", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "submission failed"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"orderId": id})
}

// getOrder returns the persisted order row.
func (s *Server) getOrder(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
		return
	}
	row, err := s.store.Get(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
		return
	}
	resp := gin.H{
		"orderId":   row.ID,
		"side":      row.Side,
		"tokenIn":   row.TokenIn,
		"tokenOut":  row.TokenOut,
		"amount":    row.Amount,
		"slippage":  row.Slippage,
		"status":    row.Status,
		"updatedAt": row.UpdatedAt,
	}
	if row.SettlementRef != "" {
		resp["settlementRef"] = row.SettlementRef
		resp["executedPrice"] = row.ExecutedPrice
	}
	if reason, ok := s.dispatcher.Failed(id); ok {
		resp["error"] = reason
	} else if row.LastError != "" {
		resp["error"] = row.LastError
	}
	c.JSON(http.StatusOK, resp)
}

// streamOrder upgrades the connection and binds it as the order's
// subscriber. Binding replaces any previous subscriber for the id.
func (s *Server) streamOrder(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
		return
	}
	if err := s.hub.ServeWS(c.Writer, c.Request, id); err != nil {
		s.logger.Warn("ws upgrade failed", zap.String("order_id", id.String()), zap.Error(err))
	}
}
