package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"farecraft/models"
	"farecraft/services"
	"farecraft/storage"

	"github.com/gin-gonic/gin"
)

// Handler serves the scrape run endpoints.
type Handler struct {
	Runs    *services.RunManager
	started time.Time
}

// NewHandler creates the handler set.
func NewHandler(runs *services.RunManager) *Handler {
	return &Handler{Runs: runs, started: time.Now()}
}

type scrapeRequest struct {
	Origin      string `json:"origin" binding:"required,len=3"`
	Destination string `json:"destination" binding:"required,len=3"`
	Date        string `json:"date" binding:"required"`
	Passengers  int    `json:"passengers" binding:"omitempty,min=1,max=9"`
	CabinClass  string `json:"cabin_class"`
}

// Health reports liveness.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"uptime": time.Since(h.started).Round(time.Second).String(),
	})
}

// Submit starts a scrape in the background and answers 202 with the run id.
func (h *Handler) Submit(c *gin.Context) {
	var req scrapeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": err.Error()})
		return
	}

	run, err := h.Runs.Submit(c.Request.Context(), models.SearchParams{
		Origin:      req.Origin,
		Destination: req.Destination,
		Date:        req.Date,
		Passengers:  req.Passengers,
		CabinClass:  req.CabinClass,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.Header("Location", "/api/scrapes/"+run.ID)
	c.JSON(http.StatusAccepted, gin.H{
		"run_id": run.ID,
		"status": run.Status,
		"params": run.Params,
	})
}

// List returns runs newest first, paged with limit and offset.
func (h *Handler) List(c *gin.Context) {
	limit, err := queryInt(c, "limit", 20)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": err.Error()})
		return
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": err.Error()})
		return
	}

	runs, err := h.Runs.List(c.Request.Context(), limit, offset)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs, "count": len(runs), "limit": limit, "offset": offset})
}

// Latest returns the most recent successful run and its insights.
func (h *Handler) Latest(c *gin.Context) {
	run, err := h.Runs.Latest(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"run": run, "insights": h.Runs.Insights(run)})
}

// Get returns one run and its insights.
func (h *Handler) Get(c *gin.Context) {
	run, err := h.Runs.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"run": run, "insights": h.Runs.Insights(run)})
}

// Delete removes a finished run.
func (h *Handler) Delete(c *gin.Context) {
	err := h.Runs.Delete(c.Request.Context(), c.Param("id"))
	if errors.Is(err, storage.ErrRunInProgress) {
		c.JSON(http.StatusConflict, gin.H{"error": errorCode(http.StatusConflict), "error_description": "run is still running"})
		return
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Compare summarises runs a and b.
func (h *Handler) Compare(c *gin.Context) {
	a, b := c.Query("a"), c.Query("b")
	if a == "" || b == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "query parameters a and b are required"})
		return
	}
	cmp, err := h.Runs.Compare(c.Request.Context(), a, b)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cmp)
}

func queryInt(c *gin.Context, name string, def int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.New(name + " must be a non-negative integer")
	}
	return n, nil
}
