package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"checkout-core/internal/database"
	"checkout-core/internal/domain"
	"checkout-core/internal/service"
)

type checkoutBody struct {
	CartItems []struct {
		ProductID string `json:"productId"`
		Quantity  int    `json:"quantity"`
	} `json:"cartItems"`
	AddressID string `json:"addressId"`
}

func (s *Server) handleCheckout(c *gin.Context) {
	var body checkoutBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "malformed request body"})
		return
	}

	req := service.CheckoutRequest{
		UserID: callerID(c),
	}

	for _, item := range body.CartItems {
		productID, err := uuid.Parse(item.ProductID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": "invalid cart items"})
			return
		}
		req.Items = append(req.Items, service.CartLine{ProductID: productID, Quantity: item.Quantity})
	}

	if body.AddressID != "" {
		addressID, err := uuid.Parse(body.AddressID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": "invalid address id"})
			return
		}
		req.AddressID = &addressID
	}

	url, err := s.checkout.Checkout(c.Request.Context(), req)
	if err != nil {
		s.renderCheckoutError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": url})
}

func (s *Server) renderCheckoutError(c *gin.Context, err error) {
	var invalidCart *domain.InvalidCartError
	switch {
	case errors.Is(err, domain.ErrEmptyCart):
		c.JSON(http.StatusBadRequest, gin.H{"message": "Cart is empty"})
	case errors.As(err, &invalidCart):
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid cart items"})
	default:
		s.logger.Error("checkout failed", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Checkout session creation failed"})
	}
}

func (s *Server) handleVerify(c *gin.Context) {
	sessionID := c.Query("session_id")
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false})
		return
	}

	settled, err := s.checkout.Verify(c.Request.Context(), sessionID)
	if err != nil {
		s.logger.Error("verify failed", "session_id", sessionID, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": settled})
}

// handleWebhook authenticates a gateway notification over the exact raw
// bytes as delivered, then acknowledges unconditionally. Only a signature
// failure withholds the acknowledgment; acking business failures keeps the
// gateway's retry policy from amplifying them into delivery storms.
func (s *Server) handleWebhook(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "unreadable body"})
		return
	}

	event, err := s.auth.Authenticate(raw, c.GetHeader("Fastpay-Signature"))
	if err != nil {
		s.logger.Error("webhook rejected", "err", err)
		c.JSON(http.StatusBadRequest, gin.H{"message": "webhook authentication failed"})
		return
	}

	if err := s.resolver.HandleEvent(c.Request.Context(), event); err != nil {
		// Still acknowledged: losing this event's secondary effects is
		// less harmful than an indefinite gateway retry loop.
		s.logger.Error("reconciliation failed", "event_id", event.ID, "type", event.Type, "err", err)
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}

func (s *Server) handleListOrders(c *gin.Context) {
	userID := callerID(c)

	orders, err := s.orders.FindByUser(c.Request.Context(), *userID)
	if err != nil {
		s.logger.Error("order listing failed", "user_id", userID, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to fetch orders"})
		return
	}

	c.JSON(http.StatusOK, toOrderViews(orders))
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, database.Health(s.db))
}

type orderView struct {
	ID            string                   `json:"id"`
	Amount        string                   `json:"amount"`
	Currency      string                   `json:"currency"`
	Items         []domain.OrderItem       `json:"items"`
	Shipping      *domain.ShippingSnapshot `json:"shipping,omitempty"`
	PaymentStatus domain.PaymentStatus     `json:"paymentStatus"`
	OrderStatus   domain.OrderStatus       `json:"orderStatus"`
	NeedsReview   bool                     `json:"needsReview"`
	CreatedAt     string                   `json:"createdAt"`
}

func toOrderViews(orders []domain.Order) []orderView {
	views := make([]orderView, 0, len(orders))
	for _, o := range orders {
		views = append(views, orderView{
			ID:            o.ID.String(),
			Amount:        o.Amount.StringFixed(2),
			Currency:      o.Currency.String(),
			Items:         o.Items,
			Shipping:      o.Shipping,
			PaymentStatus: o.PaymentStatus,
			OrderStatus:   o.OrderStatus,
			NeedsReview:   o.NeedsReview,
			CreatedAt:     o.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		})
	}
	return views
}
