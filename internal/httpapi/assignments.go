package httpapi

import (
	"net/http"

	"incident-portal/internal/assignments"
	"incident-portal/internal/auth"
	"incident-portal/internal/commanders"
	"incident-portal/internal/lifecycle"

	"github.com/gin-gonic/gin"
)

// --- Admin ---

type assignRequest struct {
	CommanderID string `json:"commander_id"`
}

// AssignReport hands a pending report to a commander.
func (h Handlers) AssignReport(c *gin.Context) {
	var req assignRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.CommanderID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "commander_id required"})
		return
	}
	a, err := h.Assignments.Assign(c.Request.Context(), c.Param("id"), req.CommanderID, actorFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, a)
}

// ResolveAssignment approves a submitted resolution. The body may amend the
// outcome; an empty body resolves as submitted.
func (h Handlers) ResolveAssignment(c *gin.Context) {
	var o assignments.Outcome
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&o); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
			return
		}
	}
	a, err := h.Assignments.Resolve(c.Request.Context(), c.Param("id"), o, actorFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

type returnRequest struct {
	Reason string `json:"reason"`
}

// ReturnAssignment sends a submitted resolution back to the commander.
func (h Handlers) ReturnAssignment(c *gin.Context) {
	var req returnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	a, err := h.Assignments.ReturnForRevision(c.Request.Context(), c.Param("id"), req.Reason, actorFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

// RegisterCommander creates an invited commander and emails a setup link.
func (h Handlers) RegisterCommander(c *gin.Context) {
	if h.Commanders == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "commanders not configured"})
		return
	}
	var req commanders.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	cmd, err := h.Commanders.Register(c.Request.Context(), actorFrom(c), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, cmd)
}

// ListCommanders returns every registered commander.
func (h Handlers) ListCommanders(c *gin.Context) {
	cs, err := h.Commanders.List(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	if cs == nil {
		cs = []commanders.Commander{}
	}
	c.JSON(http.StatusOK, gin.H{"commanders": cs})
}

// ResendSetup issues a fresh password-setup link to an invited commander.
func (h Handlers) ResendSetup(c *gin.Context) {
	if err := h.Commanders.ResendSetup(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

// --- Commander ---

// MyAssignments lists the caller's assignments.
func (h Handlers) MyAssignments(c *gin.Context) {
	uid, err := auth.UserID(c.Request.Context())
	if err != nil || uid == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user_id required"})
		return
	}
	as, err := h.Assignments.ListByCommander(c.Request.Context(), uid)
	if err != nil {
		writeError(c, err)
		return
	}
	if as == nil {
		as = []assignments.Assignment{}
	}
	c.JSON(http.StatusOK, gin.H{"assignments": as})
}

type respondRequest struct {
	Status lifecycle.AssignmentStatus `json:"status"`
}

// RespondAssignment moves an assignment forward to accepted or responded_to.
func (h Handlers) RespondAssignment(c *gin.Context) {
	var req respondRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Status == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "status required"})
		return
	}
	a, err := h.Assignments.Respond(c.Request.Context(), c.Param("id"), req.Status, actorFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

// SubmitResolution files the commander's outcome for admin review.
func (h Handlers) SubmitResolution(c *gin.Context) {
	var o assignments.Outcome
	if err := c.ShouldBindJSON(&o); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	a, err := h.Assignments.SubmitResolution(c.Request.Context(), c.Param("id"), o, actorFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

// ResubmitResolution answers a returned-for-revision assignment.
func (h Handlers) ResubmitResolution(c *gin.Context) {
	var o assignments.Outcome
	if err := c.ShouldBindJSON(&o); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	a, err := h.Assignments.Resubmit(c.Request.Context(), c.Param("id"), o, actorFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}
