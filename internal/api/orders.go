package api

import (
	"net/http"
	"strings"

	"storefront/internal/models"

	"github.com/gin-gonic/gin"
)

type refundRequest struct {
	Quantity int    `json:"quantity"`
	Reason   string `json:"reason"`
}

type deliveryStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

func (h *Handler) listOrders(c *gin.Context) {
	orders, err := h.svc.Orders.ListOrders(c.Request.Context(), currentProfile(c).UserID, h.now())
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "", orders)
}

func (h *Handler) latestOrder(c *gin.Context) {
	order, err := h.svc.Orders.LatestOrder(c.Request.Context(), currentProfile(c).UserID, h.now())
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "", order)
}

func (h *Handler) cancelOrder(c *gin.Context) {
	orderID, err := pathID(c, "order_id")
	if err != nil {
		h.fail(c, err)
		return
	}

	order, err := h.svc.Orders.Cancel(c.Request.Context(), currentProfile(c).UserID, orderID, h.now())
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "order canceled", order)
}

func (h *Handler) requestRefund(c *gin.Context) {
	itemID, err := pathID(c, "order_item_id")
	if err != nil {
		h.fail(c, err)
		return
	}
	var req refundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body: %v", err)
		return
	}

	refund, err := h.svc.Refunds.RequestReturn(c.Request.Context(), currentProfile(c).UserID, itemID, req.Quantity, req.Reason, h.now())
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "refund requested", gin.H{"refund_id": refund.ID, "refund": refund})
}

func (h *Handler) approveRefund(c *gin.Context) {
	refundID, err := pathID(c, "refund_id")
	if err != nil {
		h.fail(c, err)
		return
	}

	refund, err := h.svc.Refunds.Approve(c.Request.Context(), refundID, h.now())
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "refund approved", refund)
}

func (h *Handler) denyRefund(c *gin.Context) {
	refundID, err := pathID(c, "refund_id")
	if err != nil {
		h.fail(c, err)
		return
	}

	refund, err := h.svc.Refunds.Deny(c.Request.Context(), refundID, h.now())
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "refund denied", refund)
}

func (h *Handler) listRefunds(c *gin.Context) {
	status := models.RefundStatus(strings.ToUpper(c.Query("status")))
	refunds, err := h.svc.Refunds.ListRefunds(c.Request.Context(), status)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "", refunds)
}

func (h *Handler) listDeliveries(c *gin.Context) {
	deliveries, err := h.svc.Deliveries.ListDeliveries(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "", deliveries)
}

func (h *Handler) updateDeliveryStatus(c *gin.Context) {
	deliveryID, err := pathID(c, "delivery_id")
	if err != nil {
		h.fail(c, err)
		return
	}
	var req deliveryStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body: %v", err)
		return
	}

	status := models.DeliveryStatus(strings.ToUpper(req.Status))
	delivery, err := h.svc.Deliveries.UpdateStatus(c.Request.Context(), deliveryID, status, h.now())
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "delivery updated", delivery)
}

func (h *Handler) listInvoices(c *gin.Context) {
	start, end, err := dateRange(c)
	if err != nil {
		h.fail(c, err)
		return
	}

	orders, err := h.svc.Orders.ListInvoices(c.Request.Context(), start, end)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "", orders)
}

func (h *Handler) getInvoice(c *gin.Context) {
	orderID, err := pathID(c, "order_id")
	if err != nil {
		h.fail(c, err)
		return
	}

	order, err := h.svc.Orders.GetInvoice(c.Request.Context(), orderID)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "", order)
}

func (h *Handler) revenueAnalysis(c *gin.Context) {
	start, end, err := dateRange(c)
	if err != nil {
		h.fail(c, err)
		return
	}

	report, err := h.svc.Revenue.Analyze(c.Request.Context(), start, end)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "", report)
}
