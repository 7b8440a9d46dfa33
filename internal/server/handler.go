package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"GapSentinel/internal/analyzer"
	"GapSentinel/internal/errs"
	"GapSentinel/internal/strategy"

	"github.com/gin-gonic/gin"
)

// GapHandler exposes the analyzer over HTTP.
type GapHandler struct {
	analyzer    *analyzer.Analyzer
	defaultKeep int
}

func NewGapHandler(an *analyzer.Analyzer, defaultKeep int) *GapHandler {
	return &GapHandler{analyzer: an, defaultKeep: defaultKeep}
}

type analyzeRequest struct {
	Symbol            string                     `json:"symbol"`
	Strategy          string                     `json:"strategy"`
	Backup            bool                       `json:"backup"`
	BackupTag         string                     `json:"backup_tag"`
	BackupDescription string                     `json:"backup_description"`
	Data              map[string]json.RawMessage `json:"data" binding:"required"`
}

type validateRequest struct {
	Data map[string]json.RawMessage `json:"data" binding:"required"`
}

type cleanupRequest struct {
	Keep *int `json:"keep"`
}

func rawInput(data map[string]json.RawMessage) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = v
	}
	return out
}

func statusFor(err error) int {
	switch errs.KindOf(err) {
	case errs.InvalidInput, errs.UnknownStrategy, errs.NoTimeframeData:
		return http.StatusBadRequest
	case errs.NotFound:
		return http.StatusNotFound
	case errs.ValidationFailed:
		return http.StatusUnprocessableEntity
	case errs.Corrupt:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func fail(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error(), "kind": errs.KindOf(err)})
}

func (h *GapHandler) Strategies(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"strategies": h.analyzer.AvailableStrategies()})
}

func (h *GapHandler) Analyze(c *gin.Context) {
	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, errs.Wrap(errs.InvalidInput, err, "decode request"))
		return
	}
	st, err := strategy.Parse(req.Strategy)
	if err != nil {
		fail(c, err)
		return
	}
	res, err := h.analyzer.Run(c.Request.Context(), rawInput(req.Data), analyzer.Options{
		Symbol:            req.Symbol,
		Strategy:          st,
		Backup:            req.Backup,
		BackupTag:         req.BackupTag,
		BackupDescription: req.BackupDescription,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"report": res.Report, "data": res.Output})
}

func (h *GapHandler) Validate(c *gin.Context) {
	var req validateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, errs.Wrap(errs.InvalidInput, err, "decode request"))
		return
	}
	v, err := h.analyzer.ValidateDataset(rawInput(req.Data))
	if err != nil && v == nil {
		fail(c, err)
		return
	}
	status := http.StatusOK
	if err != nil {
		status = statusFor(err)
	}
	c.JSON(status, v)
}

func (h *GapHandler) ListBackups(c *gin.Context) {
	list, err := h.analyzer.ListBackups(c.Request.Context(), c.Query("tag"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"backups": list, "count": len(list)})
}

// CleanupBackups reads keep from the JSON body or the query string, falling back to
// the configured default.
func (h *GapHandler) CleanupBackups(c *gin.Context) {
	keep := h.defaultKeep
	var req cleanupRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, errs.Wrap(errs.InvalidInput, err, "decode request"))
			return
		}
		if req.Keep != nil {
			keep = *req.Keep
		}
	}
	if q := c.Query("keep"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil {
			fail(c, errs.Wrap(errs.InvalidInput, err, "keep"))
			return
		}
		keep = n
	}
	deleted, err := h.analyzer.CleanupBackups(c.Request.Context(), keep)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"deleted": deleted, "keep": keep, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": deleted, "keep": keep})
}

func (h *GapHandler) RestoreBackup(c *gin.Context) {
	ds, meta, err := h.analyzer.RestoreFromBackup(c.Request.Context(), c.Param("name"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"metadata": meta, "data": ds})
}

func (h *GapHandler) ValidateBackup(c *gin.Context) {
	v, err := h.analyzer.ValidateBackup(c.Request.Context(), c.Param("name"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

func (h *GapHandler) History(c *gin.Context) {
	runs := h.analyzer.History()
	if q := c.Query("limit"); q != "" {
		if n, err := strconv.Atoi(q); err == nil && n >= 0 && n < len(runs) {
			runs = runs[len(runs)-n:]
		}
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}
