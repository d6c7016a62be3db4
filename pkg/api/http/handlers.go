package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/aescanero/costume-orders/pkg/domain"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// CreateOrderRequest is the body of POST /api/v1/orders
type CreateOrderRequest struct {
	Items []domain.OrderItem `json:"items"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail represents error details
type ErrorDetail struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

const healthCheckTimeout = 2 * time.Second

// handleHealth runs every registered dependency check
func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	status := http.StatusOK
	checks := gin.H{}
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			status = http.StatusServiceUnavailable
			checks[name] = err.Error()
			continue
		}
		checks[name] = "ok"
	}

	state := "healthy"
	if status != http.StatusOK {
		state = "unhealthy"
	}

	c.JSON(status, gin.H{
		"status":    state,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks":    checks,
	})
}

// handleCreateOrder runs the order workflow and renders its result
func (s *Server) handleCreateOrder(c *gin.Context) {
	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.logger.Warn("invalid request",
			zap.String("request_id", c.GetString(ctxRequestID)),
			zap.Error(err))
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: ErrorDetail{
				Code:    "INVALID_REQUEST",
				Message: err.Error(),
			},
		})
		return
	}

	result := s.workflow.CreateOrder(c.Request.Context(), domain.WorkflowInput{Items: req.Items})
	if result.Succeeded() {
		c.Header("X-Order-Notified", strconv.FormatBool(result.Notified))
		c.JSON(http.StatusCreated, result.Order)
		return
	}

	f := result.Failure
	status, code := failureStatus(f.Kind)
	c.JSON(status, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: f.Message,
			Details: gin.H{"stage": f.Stage, "kind": f.Kind},
		},
	})
}

// failureStatus maps a workflow failure kind to an HTTP status and error code
func failureStatus(kind domain.ErrorKind) (int, string) {
	switch kind {
	case domain.KindMalformedInput:
		return http.StatusBadRequest, "MALFORMED_INPUT"
	case domain.KindTransientStore:
		return http.StatusServiceUnavailable, "STORE_UNAVAILABLE"
	case domain.KindPermanentStore:
		return http.StatusBadGateway, "STORE_REJECTED"
	case domain.KindPublishDelivery:
		return http.StatusBadGateway, "PUBLISH_FAILED"
	case domain.KindDeadlineExceeded:
		return http.StatusGatewayTimeout, "DEADLINE_EXCEEDED"
	default:
		return http.StatusInternalServerError, "INTERNAL"
	}
}

// handleGetOrder reads an order straight from the store
func (s *Server) handleGetOrder(c *gin.Context) {
	id := c.Param("id")

	order, err := s.orders.Get(c.Request.Context(), id)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, order)

	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: ErrorDetail{
				Code:    "NOT_FOUND",
				Message: "Order not found",
			},
		})

	case domain.IsTransient(err):
		s.logger.Warn("order lookup failed", zap.String("order_id", id), zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error: ErrorDetail{
				Code:    "STORE_UNAVAILABLE",
				Message: "Order store unavailable",
			},
		})

	default:
		s.logger.Error("order lookup failed", zap.String("order_id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: ErrorDetail{
				Code:    "INTERNAL",
				Message: "Order lookup failed",
			},
		})
	}
}
