package coordinator

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/parasite-protocol/agent/internal/domain"
)

const defaultListLimit = 100

// Handler serves the coordinator endpoints over a Registry.
type Handler struct {
	registry   *Registry
	requireKey bool
	logger     *slog.Logger
}

// NewHandler returns a Handler. With requireKey set, proposal and decision
// routes resolve the caller from its api key.
func NewHandler(registry *Registry, requireKey bool, logger *slog.Logger) *Handler {
	return &Handler{
		registry:   registry,
		requireKey: requireKey,
		logger:     logger,
	}
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":           "healthy",
		"agentsRegistered": len(h.registry.Agents()),
	})
}

func (h *Handler) RegisterAgent(c *gin.Context) {
	var req domain.RegisterAgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	key, err := h.registry.Register(req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.logger.Info("agent registered", "agent_id", req.AgentID, "goal", req.Goal)
	c.JSON(http.StatusOK, domain.RegisterAgentResponse{AgentID: req.AgentID, APIKey: key})
}

func (h *Handler) InjectInfection(c *gin.Context) {
	var req domain.InfectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if caller, ok := callerID(c); ok && caller != req.AttackerID {
		c.JSON(http.StatusForbidden, gin.H{"error": "attackerId does not match api key"})
		return
	}

	inf, err := h.registry.Inject(req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.logger.Info("infection injected",
		"infection_id", inf.InfectionID,
		"source", inf.AttackerID,
		"target", inf.TargetID,
	)
	c.JSON(http.StatusOK, domain.InfectionResponse{
		InfectionID: inf.InfectionID,
		Status:      string(inf.Status),
	})
}

func (h *Handler) RespondToInfection(c *gin.Context) {
	var body map[string]any
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	infectionID, _ := body["infectionId"].(string)
	decision, _ := body["decision"].(string)
	if infectionID == "" || decision == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "infectionId and decision are required"})
		return
	}
	delete(body, "infectionId")
	delete(body, "decision")

	if caller, ok := callerID(c); ok {
		inf, err := h.registry.Infection(infectionID)
		if err == nil && inf.TargetID != caller {
			c.JSON(http.StatusForbidden, gin.H{"error": "only the target can decide"})
			return
		}
	}

	inf, err := h.registry.Decide(infectionID, domain.Decision(decision), body)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	h.logger.Info("decision recorded",
		"infection_id", inf.InfectionID,
		"decision", string(inf.Result),
	)
	c.JSON(http.StatusOK, gin.H{
		"infectionId": inf.InfectionID,
		"decision":    inf.Result,
		"status":      inf.Status,
	})
}

func (h *Handler) ListAgents(c *gin.Context) {
	agents := h.registry.Agents()
	c.JSON(http.StatusOK, gin.H{"agents": agents, "count": len(agents)})
}

func (h *Handler) ListInfections(c *gin.Context) {
	limit := defaultListLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	infections := h.registry.Infections(InfectionFilter{
		Source: c.Query("source"),
		Target: c.Query("target"),
		Result: c.Query("result"),
		Limit:  limit,
	})
	c.JSON(http.StatusOK, gin.H{"infections": infections, "count": len(infections)})
}

func (h *Handler) GetInfection(c *gin.Context) {
	inf, err := h.registry.Infection(c.Param("id"))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, inf)
}

func statusFor(err error) int {
	var unknown domain.ErrUnknownInfection
	var decided domain.ErrAlreadyDecided
	var badDecision domain.ErrUnknownDecision
	switch {
	case errors.As(err, &unknown):
		return http.StatusNotFound
	case errors.As(err, &decided):
		return http.StatusConflict
	case errors.As(err, &badDecision):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
