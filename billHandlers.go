package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"bitbucket.org/mmdatafocus/billing_backend/config"
	"bitbucket.org/mmdatafocus/billing_backend/models"
	"bitbucket.org/mmdatafocus/billing_backend/models/reports"
	"bitbucket.org/mmdatafocus/billing_backend/utils"
	"bitbucket.org/mmdatafocus/billing_backend/workflow"
)

type billHandlers struct {
	engine *workflow.BillEngine
	logger *logrus.Logger
}

type previewRequest struct {
	Items []workflow.BillItemInput `json:"items"`
}

type cancelRequest struct {
	BillIds []int `json:"bill_ids"`
}

// billSummary is one row of the bill listing.
type billSummary struct {
	ID            int               `json:"id"`
	BillNumber    string            `json:"bill_number"`
	CustomerId    int               `json:"customer_id"`
	CustomerName  string            `json:"customer_name"`
	BillDate      time.Time         `json:"bill_date"`
	Status        models.BillStatus `json:"status"`
	PaymentMethod string            `json:"payment_method"`
	TotalAmount   string            `json:"total_amount"`
	ItemCount     int               `json:"item_count"`
}

// writeError maps the engine's error kinds to HTTP statuses.
func writeError(c *gin.Context, err error) {
	var (
		stock      *utils.InsufficientStockError
		validation *utils.ValidationError
	)
	switch {
	case errors.As(err, &stock):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "code": "insufficient_stock", "shortages": stock.Shortages})
	case errors.As(err, &validation):
		body := gin.H{"error": validation.Message, "code": "validation"}
		if len(validation.Details) > 0 {
			body["details"] = validation.Details
		}
		c.JSON(http.StatusBadRequest, body)
	case errors.Is(err, utils.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error(), "code": "not_found"})
	case errors.Is(err, utils.ErrDuplicateIdentifier):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "code": "duplicate_identifier"})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "request cancelled", "code": "cancelled"})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error, the change was rolled back", "code": "integrity_failure"})
	}
}

func bindJSON(c *gin.Context, dest interface{}) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		writeError(c, utils.NewValidationError("invalid request body: %v", err))
		return false
	}
	return true
}

func pathId(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		writeError(c, utils.NewValidationError("invalid bill id %q", c.Param("id")))
		return 0, false
	}
	return id, true
}

func (h *billHandlers) createBill(c *gin.Context) {
	var in workflow.NewBill
	if !bindJSON(c, &in) {
		return
	}
	bill, replayed, err := h.engine.CreateBillIdempotent(c.Request.Context(), c.GetHeader("Idempotency-Key"), &in)
	if err != nil {
		writeError(c, err)
		return
	}
	if replayed {
		c.JSON(http.StatusOK, bill)
		return
	}
	c.JSON(http.StatusCreated, bill)
}

func (h *billHandlers) listBills(c *gin.Context) {
	filter := models.BillFilter{
		IncludeCancelled: strings.EqualFold(c.Query("include_cancelled"), "true"),
		Status:           models.BillStatus(c.Query("status")),
	}
	if v := c.Query("customer_id"); v != "" {
		id, err := strconv.Atoi(v)
		if err != nil {
			writeError(c, utils.NewValidationError("invalid customer_id %q", v))
			return
		}
		filter.CustomerId = id
	}
	bills, err := h.engine.ListBills(c.Request.Context(), filter)
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]billSummary, 0, len(bills))
	for _, b := range bills {
		out = append(out, billSummary{
			ID:            b.ID,
			BillNumber:    b.BillNumber,
			CustomerId:    b.CustomerId,
			CustomerName:  b.CustomerName,
			BillDate:      b.BillDate,
			Status:        b.Status,
			PaymentMethod: b.PaymentMethod,
			TotalAmount:   b.TotalAmount.StringFixed(2),
			ItemCount:     len(b.Items),
		})
	}
	c.JSON(http.StatusOK, gin.H{"bills": out})
}

func (h *billHandlers) getBill(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	bill, err := h.engine.GetBill(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, bill)
}

// previewUpdate answers 200 with the deltas, or 409 with the deltas and the shortages.
func (h *billHandlers) previewUpdate(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	var req previewRequest
	if !bindJSON(c, &req) {
		return
	}
	deltas, err := h.engine.PreviewUpdate(c.Request.Context(), id, req.Items)
	var stock *utils.InsufficientStockError
	if errors.As(err, &stock) {
		c.JSON(http.StatusConflict, gin.H{
			"error":     err.Error(),
			"code":      "insufficient_stock",
			"deltas":    deltas,
			"shortages": stock.Shortages,
		})
		return
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deltas": deltas})
}

func (h *billHandlers) commitUpdate(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	var upd workflow.BillUpdate
	if !bindJSON(c, &upd) {
		return
	}
	bill, err := h.engine.CommitUpdate(c.Request.Context(), id, &upd)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, bill)
}

func (h *billHandlers) cancelBills(c *gin.Context) {
	var req cancelRequest
	if !bindJSON(c, &req) {
		return
	}
	n, err := h.engine.CancelBills(c.Request.Context(), req.BillIds)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cancelled": n})
}

func (h *billHandlers) deleteBill(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	if err := h.engine.DeleteBill(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *billHandlers) recordPurchase(c *gin.Context) {
	var in workflow.NewPurchase
	if !bindJSON(c, &in) {
		return
	}
	purchase, err := h.engine.RecordPurchase(c.Request.Context(), &in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, purchase)
}

// exportActiveBills streams the workbook, or with ?upload=gcs stores it in GCS_BUCKET
// and returns the object URI.
func (h *billHandlers) exportActiveBills(c *gin.Context) {
	ctx := c.Request.Context()
	started := time.Now()
	bills, err := h.engine.ActiveBillsWithItems(ctx)
	if err != nil {
		writeError(c, err)
		return
	}
	data, err := reports.ActiveBillsXlsx(bills)
	if err != nil {
		config.LogError(h.logger, "billHandlers.go", "exportActiveBills", "building workbook", len(bills), err)
		writeError(c, err)
		return
	}
	reports.LogSlowReport(ctx, h.logger, "active_bills_export", started, map[string]any{"bills": len(bills)})

	filename := fmt.Sprintf("active_bills_%s.xlsx", time.Now().Format("20060102_150405"))
	if strings.EqualFold(c.Query("upload"), "gcs") {
		if !utils.GCSEnabled() {
			writeError(c, utils.NewValidationError("GCS upload is not configured"))
			return
		}
		uri, err := utils.UploadBytesToGCS(ctx, "exports/"+filename, data, reports.ExcelContentType)
		if err != nil {
			config.LogError(h.logger, "billHandlers.go", "exportActiveBills", "uploading workbook", filename, err)
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"uri": uri, "bills": len(bills)})
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, reports.ExcelContentType, data)
}
