// Package server exposes the flow manager and receipt store over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/garyjia/receipt-pipeline/internal/flow"
	"github.com/garyjia/receipt-pipeline/internal/receipt"
)

// Handler holds the HTTP endpoint implementations
type Handler struct {
	flows    *flow.Manager
	receipts *receipt.Repository
	exporter *receipt.Exporter
	logger   *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(flows *flow.Manager, receipts *receipt.Repository, exporter *receipt.Exporter, logger *zap.Logger) *Handler {
	return &Handler{
		flows:    flows,
		receipts: receipts,
		exporter: exporter,
		logger:   logger,
	}
}

// CreateFlow registers a new flow for a captured image
func (h *Handler) CreateFlow(c *gin.Context) {
	var req struct {
		ImageRef string `json:"imageRef" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "imageRef is required"})
		return
	}

	id, err := h.flows.CreateFlow(c.Request.Context(), req.ImageRef)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"flowId": id})
}

// ListFlows returns every known flow
func (h *Handler) ListFlows(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"flows": h.flows.List()})
}

// GetFlow returns one flow snapshot
func (h *Handler) GetFlow(c *gin.Context) {
	snapshot, ok := h.flows.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "flow not found"})
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

// ProcessFlow starts the processing pipeline for the flow's captured image.
// The pipeline runs in the background; callers poll GetFlow for progress.
func (h *Handler) ProcessFlow(c *gin.Context) {
	flowID := c.Param("id")
	if _, ok := h.flows.Get(flowID); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "flow not found"})
		return
	}

	go func() {
		if err := h.flows.ProcessCurrentImage(context.Background(), flowID); err != nil {
			h.logger.Warn("Background processing ended with error",
				zap.String("flow_id", flowID),
				zap.Error(err))
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{"flowId": flowID, "status": "processing"})
}

// RetryFlow resumes a failed pipeline from where the error interrupted it
func (h *Handler) RetryFlow(c *gin.Context) {
	flowID := c.Param("id")
	if _, ok := h.flows.Get(flowID); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "flow not found"})
		return
	}

	go func() {
		if err := h.flows.RetryProcessing(flowID); err != nil {
			h.logger.Warn("Background retry ended with error",
				zap.String("flow_id", flowID),
				zap.Error(err))
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{"flowId": flowID, "status": "retrying"})
}

// NavigateFlow moves the flow to another step
func (h *Handler) NavigateFlow(c *gin.Context) {
	var req struct {
		Step string `json:"step" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "step is required"})
		return
	}

	err := h.flows.NavigateToStep(c.Param("id"), flow.Step(req.Step))
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, flow.ErrFlowNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	snapshot, _ := h.flows.Get(c.Param("id"))
	c.JSON(http.StatusOK, snapshot)
}

// UpdateDraft applies a single field edit and returns its validation issues
func (h *Handler) UpdateDraft(c *gin.Context) {
	var req struct {
		Field string `json:"field" binding:"required"`
		Value string `json:"value"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "field is required"})
		return
	}

	issues, err := h.flows.UpdateDraftField(c.Param("id"), req.Field, req.Value)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, flow.ErrFlowNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"issues": issues})
}

// SaveFlow validates the draft and persists it as a receipt. A draft with
// blocking issues returns the validation result and no receipt.
func (h *Handler) SaveFlow(c *gin.Context) {
	result, rec, err := h.flows.SaveCurrentReceipt(c.Request.Context(), c.Param("id"))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, flow.ErrFlowNotFound) {
			status = http.StatusNotFound
		} else if errors.Is(err, flow.ErrNothingToSave) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	if rec == nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"validation": result})
		return
	}

	c.JSON(http.StatusOK, gin.H{"validation": result, "receipt": rec})
}

// CancelFlow cancels the flow's in-flight work
func (h *Handler) CancelFlow(c *gin.Context) {
	err := h.flows.CancelFlow(c.Request.Context(), c.Param("id"))
	if err != nil {
		status := http.StatusConflict
		if errors.Is(err, flow.ErrFlowNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}

// ListReceipts returns all saved receipts
func (h *Handler) ListReceipts(c *gin.Context) {
	receipts, err := h.receipts.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list receipts"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"receipts": receipts})
}

// GetReceipt returns one saved receipt
func (h *Handler) GetReceipt(c *gin.Context) {
	rec, err := h.receipts.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get receipt"})
		return
	}
	if rec == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "receipt not found"})
		return
	}
	c.JSON(http.StatusOK, rec)
}

// ExportReceipts streams all saved receipts as an XLSX workbook
func (h *Handler) ExportReceipts(c *gin.Context) {
	receipts, err := h.receipts.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list receipts"})
		return
	}

	data, err := h.exporter.ExportXLSX(receipts)
	if err != nil {
		h.logger.Error("Export failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "export failed"})
		return
	}

	filename := fmt.Sprintf("receipts_%s.xlsx", time.Now().Format("20060102_150405"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
}

// Health reports liveness
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
