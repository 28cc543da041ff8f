package api

import (
	"net/http"

	"storefront/internal/auth"
	"storefront/internal/service"

	"github.com/gin-gonic/gin"
)

type addItemRequest struct {
	ProductID int64 `json:"product_id" binding:"required"`
	Quantity  int   `json:"quantity"`
}

type updateItemRequest struct {
	Quantity int `json:"quantity"`
}

type checkoutRequest struct {
	CreditCard service.CreditCard `json:"credit_card"`
}

func (h *Handler) getCart(c *gin.Context) {
	cart, err := h.svc.Carts.GetOrCreateCart(c.Request.Context(), guestIdentity(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "", cart)
}

func (h *Handler) addCartItem(c *gin.Context) {
	var req addItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body: %v", err)
		return
	}

	cart, err := h.svc.Carts.AddItem(c.Request.Context(), guestIdentity(c), req.ProductID, req.Quantity)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "item added to cart", cart)
}

func (h *Handler) updateCartItem(c *gin.Context) {
	itemID, err := pathID(c, "item_id")
	if err != nil {
		h.fail(c, err)
		return
	}
	var req updateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body: %v", err)
		return
	}

	cart, err := h.svc.Carts.UpdateItem(c.Request.Context(), identity(c), itemID, req.Quantity)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "cart updated", cart)
}

func (h *Handler) removeCartItem(c *gin.Context) {
	itemID, err := pathID(c, "item_id")
	if err != nil {
		h.fail(c, err)
		return
	}

	cart, err := h.svc.Carts.RemoveItem(c.Request.Context(), identity(c), itemID)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "item removed", cart)
}

func (h *Handler) mergeCart(c *gin.Context) {
	profile := currentProfile(c)
	cart, err := h.svc.Carts.Merge(c.Request.Context(), profile.UserID, c.GetHeader(auth.GuestTokenHeader))
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "guest cart merged", cart)
}

func (h *Handler) checkout(c *gin.Context) {
	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body: %v", err)
		return
	}

	res, err := h.svc.Checkout.Checkout(c.Request.Context(), &service.CheckoutRequest{
		UserID:         currentProfile(c).UserID,
		IdempotencyKey: c.GetHeader("Idempotency-Key"),
		Card:           req.CreditCard,
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	if !res.Created {
		respond(c, http.StatusOK, "order already placed", res.Order)
		return
	}
	respond(c, http.StatusCreated, "order placed", res.Order)
}

func (h *Handler) listCards(c *gin.Context) {
	cards, err := h.svc.Checkout.ListCards(c.Request.Context(), currentProfile(c).UserID)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "", cards)
}
