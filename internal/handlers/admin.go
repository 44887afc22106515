package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"wifiportal/internal/middleware"
	"wifiportal/internal/models"
	"wifiportal/internal/service"
)

func (h HandlerSet) AdminListHotspots(c *gin.Context) {
	hotspots, err := h.hotspots.List(c.Request.Context(), middleware.ActorFrom(c), true)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": hotspotItems(hotspots)})
}

type hotspotRequest struct {
	Name     string  `json:"name" binding:"required"`
	Location string  `json:"location" binding:"required"`
	IPOrMAC  *string `json:"ipOrMac"`
	IsActive *bool   `json:"isActive"`
}

func (r hotspotRequest) input() service.HotspotInput {
	return service.HotspotInput{
		Name:     r.Name,
		Location: r.Location,
		IPOrMAC:  r.IPOrMAC,
		IsActive: r.IsActive,
	}
}

func (h HandlerSet) AdminCreateHotspot(c *gin.Context) {
	var req hotspotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	hotspot, err := h.hotspots.Create(c.Request.Context(), middleware.ActorFrom(c), req.input())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"hotspot": newHotspotResponse(hotspot)})
}

func (h HandlerSet) AdminUpdateHotspot(c *gin.Context) {
	var req hotspotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	hotspot, err := h.hotspots.Update(c.Request.Context(), middleware.ActorFrom(c), c.Param("id"), req.input())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"hotspot": newHotspotResponse(hotspot)})
}

type hotspotStatusRequest struct {
	IsActive *bool `json:"isActive" binding:"required"`
}

func (h HandlerSet) AdminSetHotspotStatus(c *gin.Context) {
	var req hotspotStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	hotspot, err := h.hotspots.SetActive(c.Request.Context(), middleware.ActorFrom(c), c.Param("id"), *req.IsActive)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"hotspot": newHotspotResponse(hotspot)})
}

func (h HandlerSet) AdminDeleteHotspot(c *gin.Context) {
	if err := h.hotspots.Delete(c.Request.Context(), middleware.ActorFrom(c), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type voucherResponse struct {
	ID              string     `json:"id"`
	Code            string     `json:"code"`
	BatchID         *string    `json:"batchId,omitempty"`
	DurationMinutes int        `json:"durationMinutes"`
	Used            bool       `json:"used"`
	UsedAt          *time.Time `json:"usedAt,omitempty"`
	UsedBy          *string    `json:"usedBy,omitempty"`
	ExpiresAt       time.Time  `json:"expiresAt"`
	CreatedAt       time.Time  `json:"createdAt"`
}

func newVoucherResponse(v models.Voucher) voucherResponse {
	return voucherResponse{
		ID:              v.ID,
		Code:            v.Code,
		BatchID:         v.BatchID,
		DurationMinutes: v.DurationMinutes,
		Used:            v.Used,
		UsedAt:          v.UsedAt,
		UsedBy:          v.UsedBy,
		ExpiresAt:       v.ExpiresAt,
		CreatedAt:       v.CreatedAt,
	}
}

func voucherItems(vouchers []models.Voucher) []voucherResponse {
	items := make([]voucherResponse, 0, len(vouchers))
	for _, v := range vouchers {
		items = append(items, newVoucherResponse(v))
	}
	return items
}

func (h HandlerSet) AdminListVouchers(c *gin.Context) {
	page, _ := strconv.Atoi(c.Query("page"))
	perPage, _ := strconv.Atoi(c.Query("perPage"))

	vouchers, err := h.vouchers.List(c.Request.Context(), middleware.ActorFrom(c), page, perPage)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": voucherItems(vouchers)})
}

type batchRequest struct {
	Quantity        int `json:"quantity" binding:"required"`
	DurationMinutes int `json:"durationMinutes" binding:"required"`
	ValidityDays    int `json:"validityDays" binding:"required"`
}

func (h HandlerSet) AdminGenerateBatch(c *gin.Context) {
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	batch, err := h.access.GenerateVoucherBatch(c.Request.Context(), middleware.ActorFrom(c), service.BatchInput{
		Quantity:        req.Quantity,
		DurationMinutes: req.DurationMinutes,
		ValidityDays:    req.ValidityDays,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"batchId":   batch.ID,
		"expiresAt": batch.ExpiresAt,
		"vouchers":  voucherItems(batch.Vouchers),
	})
}

type exportResponse struct {
	BatchID   string    `json:"batchId"`
	Bucket    string    `json:"bucket"`
	ObjectKey string    `json:"objectKey"`
	Rows      int       `json:"rows"`
	CreatedAt time.Time `json:"createdAt"`
	URL       string    `json:"url,omitempty"`
}

func newExportResponse(e models.VoucherExport) exportResponse {
	return exportResponse{
		BatchID:   e.BatchID,
		Bucket:    e.Bucket,
		ObjectKey: e.ObjectKey,
		Rows:      e.Rows,
		CreatedAt: e.CreatedAt,
	}
}

// AdminRequestExport answers 202 when the export was queued for the worker
// and 201 when it was rendered in the request.
func (h HandlerSet) AdminRequestExport(c *gin.Context) {
	req, err := h.exports.RequestExport(c.Request.Context(), middleware.ActorFrom(c), c.Param("batchId"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	if req.Queued {
		c.JSON(http.StatusAccepted, gin.H{"batchId": req.BatchID, "queued": true})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"batchId": req.BatchID, "queued": false, "export": newExportResponse(*req.Export)})
}

func (h HandlerSet) AdminDownloadExport(c *gin.Context) {
	url, export, err := h.exports.DownloadURL(c.Request.Context(), middleware.ActorFrom(c), c.Param("batchId"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	resp := newExportResponse(export)
	resp.URL = url
	if c.Query("redirect") == "1" {
		c.Redirect(http.StatusFound, url)
		return
	}
	c.JSON(http.StatusOK, gin.H{"export": resp})
}

func (h HandlerSet) AdminVoucherQR(c *gin.Context) {
	size := 0
	if raw := c.Query("size"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			badRequest(c, errors.New("size must be a number"))
			return
		}
		size = v
	}

	png, err := h.vouchers.QRCode(c.Request.Context(), middleware.ActorFrom(c), c.Param("code"), size)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.Header("Cache-Control", "private, max-age=300")
	c.Data(http.StatusOK, "image/png", png)
}

func (h HandlerSet) AdminExpireSessions(c *gin.Context) {
	n, err := h.access.ExpireSessions(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"expired": n})
}
