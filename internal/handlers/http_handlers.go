package handlers

import (
	"errors"
	"net/http"

	"secretsanta/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/google/logger"
)

const engineKey = "engine"

// HTTPHandler holds the dependencies for the HTTP handlers, like the exchange service.
type HTTPHandler struct {
	service *services.ExchangeService
}

// NewHTTPHandler creates a new HTTPHandler.
func NewHTTPHandler(service *services.ExchangeService) *HTTPHandler {
	return &HTTPHandler{service: service}
}

type nameRequest struct {
	Name string `json:"name"`
}

type drawRequest struct {
	Giver string `json:"giver"`
}

// RegisterPublicRoutes registers routes that do not belong to a group.
func (h *HTTPHandler) RegisterPublicRoutes(router *gin.Engine) {
	router.GET("/healthz", h.Health)
}

// RegisterGroupRoutes registers the exchange routes on a group-scoped router.
func (h *HTTPHandler) RegisterGroupRoutes(group *gin.RouterGroup) {
	group.GET("/participants", h.ListParticipants)
	group.POST("/participants", h.AddParticipant)
	group.DELETE("/participants", h.DeleteAllParticipants)
	group.DELETE("/participants/:name", h.DeleteParticipant)
	group.GET("/pools", h.GetPools)
	group.GET("/matches", h.ListMatches)
	group.DELETE("/matches/:giver", h.DeleteMatch)
	group.POST("/draw", h.AttemptDraw)
	group.POST("/draw/confirm", h.ConfirmDraw)
	group.POST("/draw/cancel", h.CancelDraw)
	group.GET("/pending", h.GetPending)
	group.GET("/can-match/:name", h.CanMatch)
	group.POST("/reset", h.ResetAll)
	group.POST("/reset/acknowledge", h.AcknowledgeReset)
	group.GET("/status", h.GetStatus)
	group.GET("/export", h.Export)
}

// GroupMiddleware resolves the :group path parameter to its engine.
func (h *HTTPHandler) GroupMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		engine, err := h.service.Group(c.Request.Context(), c.Param("group"))
		if err != nil {
			if errors.Is(err, services.ErrInvalidGroup) {
				c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			logger.Errorf("Error loading group %s: %v", c.Param("group"), err)
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "store unavailable"})
			return
		}
		c.Set(engineKey, engine)
		c.Next()
	}
}

func engineFrom(c *gin.Context) *services.Engine {
	return c.MustGet(engineKey).(*services.Engine)
}

// respondError renders an engine error with a status matching its kind.
func respondError(c *gin.Context, engine *services.Engine, err error) {
	status := http.StatusBadRequest
	switch {
	case errors.Is(err, services.ErrUnknownParticipant), errors.Is(err, services.ErrMatchNotFound):
		status = http.StatusNotFound
	case errors.Is(err, services.ErrDuplicateName),
		errors.Is(err, services.ErrGiverNotEligible),
		errors.Is(err, services.ErrNoEligibleReceivers),
		errors.Is(err, services.ErrNoPendingMatch),
		errors.Is(err, services.ErrStalePendingMatch):
		status = http.StatusConflict
	}
	c.JSON(status, gin.H{"error": err.Error(), "needsReset": engine.NeedsReset()})
}

// Health reports that the server is up.
func (h *HTTPHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ListParticipants returns the participants in registration order.
func (h *HTTPHandler) ListParticipants(c *gin.Context) {
	c.JSON(http.StatusOK, engineFrom(c).Participants())
}

// AddParticipant registers a new participant.
func (h *HTTPHandler) AddParticipant(c *gin.Context) {
	var req nameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	engine := engineFrom(c)
	p, err := engine.RegisterParticipant(req.Name)
	if err != nil {
		respondError(c, engine, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

// DeleteParticipant removes a participant and their matches.
func (h *HTTPHandler) DeleteParticipant(c *gin.Context) {
	engine := engineFrom(c)
	if err := engine.DeleteParticipant(c.Param("name")); err != nil {
		respondError(c, engine, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// DeleteAllParticipants clears the group's participants and matches.
func (h *HTTPHandler) DeleteAllParticipants(c *gin.Context) {
	engineFrom(c).DeleteAllParticipants()
	logger.Infof("Deleted all participants for group: %s", c.Param("group"))
	c.Status(http.StatusNoContent)
}

// GetPools returns the available givers and receivers.
func (h *HTTPHandler) GetPools(c *gin.Context) {
	c.JSON(http.StatusOK, engineFrom(c).Pools())
}

// ListMatches returns the committed match history.
func (h *HTTPHandler) ListMatches(c *gin.Context) {
	c.JSON(http.StatusOK, engineFrom(c).Matches())
}

// DeleteMatch removes a single committed match.
func (h *HTTPHandler) DeleteMatch(c *gin.Context) {
	engine := engineFrom(c)
	if err := engine.DeleteMatch(c.Param("giver")); err != nil {
		respondError(c, engine, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// AttemptDraw draws a receiver for the giver and holds it as pending.
func (h *HTTPHandler) AttemptDraw(c *gin.Context) {
	var req drawRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Giver == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "please select a giver"})
		return
	}

	engine := engineFrom(c)
	pending, err := engine.AttemptMatch(req.Giver)
	if err != nil {
		respondError(c, engine, err)
		return
	}
	c.JSON(http.StatusOK, pending)
}

// ConfirmDraw commits the pending draw.
func (h *HTTPHandler) ConfirmDraw(c *gin.Context) {
	engine := engineFrom(c)
	match, err := engine.ConfirmMatch()
	if err != nil {
		respondError(c, engine, err)
		return
	}
	c.JSON(http.StatusOK, match)
}

// CancelDraw discards the pending draw.
func (h *HTTPHandler) CancelDraw(c *gin.Context) {
	engine := engineFrom(c)
	if err := engine.CancelMatch(); err != nil {
		respondError(c, engine, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetPending returns the pending draw, or 404 when there is none.
func (h *HTTPHandler) GetPending(c *gin.Context) {
	pending, ok := engineFrom(c).Pending()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": services.ErrNoPendingMatch.Error()})
		return
	}
	c.JSON(http.StatusOK, pending)
}

// CanMatch reports whether a participant has anyone left to draw.
func (h *HTTPHandler) CanMatch(c *gin.Context) {
	name := c.Param("name")
	c.JSON(http.StatusOK, gin.H{"name": name, "canMatch": engineFrom(c).CanMatch(name)})
}

// ResetAll clears every match in the group.
func (h *HTTPHandler) ResetAll(c *gin.Context) {
	engineFrom(c).ResetAll()
	logger.Infof("Reset matches for group: %s", c.Param("group"))
	c.Status(http.StatusNoContent)
}

// AcknowledgeReset dismisses the needs-reset prompt.
func (h *HTTPHandler) AcknowledgeReset(c *gin.Context) {
	engineFrom(c).AcknowledgeReset()
	c.Status(http.StatusNoContent)
}

// GetStatus returns the progress summary.
func (h *HTTPHandler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, engineFrom(c).Status())
}

// Export downloads the group's participants and matches as JSON.
func (h *HTTPHandler) Export(c *gin.Context) {
	c.Header("Content-Disposition", "attachment;filename=secret_santa_backup.json")
	c.JSON(http.StatusOK, engineFrom(c).Export())
}
