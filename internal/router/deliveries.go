package router

import (
	"net/http"

	"customs_auction/internal/model"

	"github.com/gin-gonic/gin"
)

// validateDelivery 取货现场扫码核销。
func validateDelivery(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			QRCode string `json:"qr_code" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		del, err := d.Service.ValidateDeliveryQR(c.Request.Context(), req.QRCode)
		if err != nil {
			writeError(c, d, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "data": del})
	}
}

// advanceDelivery 推进交付状态（ready / in_transit / delivered / cancelled）。
func advanceDelivery(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c, "id")
		if !ok {
			return
		}
		var req struct {
			Status string `json:"status" binding:"required,oneof=ready in_transit delivered cancelled"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		del, err := d.Service.AdvanceDelivery(c.Request.Context(), id, model.DeliveryStatus(req.Status))
		if err != nil {
			writeError(c, d, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "data": del})
	}
}
