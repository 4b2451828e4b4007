package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"incident-portal/internal/assignments"
	"incident-portal/internal/audit"
	"incident-portal/internal/auth"
	"incident-portal/internal/commanders"
	"incident-portal/internal/dashboard"
	"incident-portal/internal/events"
	"incident-portal/internal/rbac"
	"incident-portal/internal/reports"
	"incident-portal/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Auth        *auth.Manager
	Admin       auth.AdminAccount
	Reports     *reports.Service
	Assignments *assignments.Manager
	Commanders  *commanders.Service
	Audit       *audit.Service
	Dashboard   *dashboard.Service
	Bus         *events.Bus

	// Clock is used for token issuance. Defaults to time.Now.
	Clock func() time.Time
}

func (h Handlers) now() time.Time {
	if h.Clock != nil {
		return h.Clock()
	}
	return time.Now()
}

// actorFrom builds the audit actor for the authenticated caller.
func actorFrom(c *gin.Context) audit.Actor {
	ctx := c.Request.Context()
	uid, _ := auth.UserID(ctx)
	role, _ := auth.Role(ctx)

	t := audit.ActorAdmin
	if role == rbac.RoleCommander {
		t = audit.ActorCommander
	}
	return audit.Actor{ID: uid, Type: t, Role: role}
}

// --- Auth ---

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	auth.TokenPair
	Role   string `json:"role"`
	UserID string `json:"user_id"`
	UnitID string `json:"unit_id,omitempty"`
}

// Login issues a JWT token pair for the configured admin or an active commander.
func (h Handlers) Login(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "email and password required"})
		return
	}

	userID, unitID, role := "", "", ""
	if err := h.Admin.Check(req.Email, req.Password); err == nil {
		userID, role = h.Admin.ID, rbac.RoleAdmin
	} else if h.Commanders != nil {
		cmd, err := h.Commanders.Authenticate(c.Request.Context(), req.Email, req.Password)
		if err != nil {
			writeError(c, err)
			return
		}
		userID, unitID, role = cmd.ID, cmd.UnitID, rbac.RoleCommander
	} else {
		writeError(c, err)
		return
	}

	pair, err := h.Auth.IssuePair(h.now(), userID, unitID, role)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, loginResponse{TokenPair: pair, Role: role, UserID: userID, UnitID: unitID})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (h Handlers) Refresh(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.RefreshToken == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "refresh_token required"})
		return
	}
	pair, _, err := h.Auth.Refresh(req.RefreshToken, h.now(), h.accountCheck(c.Request.Context()))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	c.JSON(http.StatusOK, pair)
}

// accountCheck re-loads the account behind a refresh token. Commanders must
// still be active and get their current unit; the admin must still be the
// configured operator.
func (h Handlers) accountCheck(ctx context.Context) auth.AccountCheck {
	return func(claims auth.Claims) (auth.Claims, error) {
		switch claims.Role {
		case rbac.RoleCommander:
			if h.Commanders == nil {
				return auth.Claims{}, auth.ErrInvalidCredentials
			}
			cmd, err := h.Commanders.Get(ctx, claims.UserID)
			if errors.Is(err, commanders.ErrNotFound) {
				return auth.Claims{}, auth.ErrInvalidCredentials
			}
			if err != nil {
				logger.From(ctx).Warn("refresh account lookup failed",
					slog.String("user_id", claims.UserID),
					slog.String("err", err.Error()),
				)
				return auth.Claims{}, err
			}
			if cmd.Status != commanders.StatusActive {
				return auth.Claims{}, auth.ErrInvalidCredentials
			}
			claims.UnitID = cmd.UnitID
		case rbac.RoleAdmin:
			if claims.UserID != h.Admin.ID {
				return auth.Claims{}, auth.ErrInvalidCredentials
			}
		}
		return claims, nil
	}
}

type passwordSetupRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

// PasswordSetup consumes a one-time setup token and activates the commander.
func (h Handlers) PasswordSetup(c *gin.Context) {
	if h.Commanders == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "commanders not configured"})
		return
	}
	var req passwordSetupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.Token == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "token required"})
		return
	}
	cmd, err := h.Commanders.CompletePasswordSetup(c.Request.Context(), req.Token, req.Password)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": cmd.ID, "status": cmd.Status})
}

// Me echoes the identity carried by the access token.
func (h Handlers) Me(c *gin.Context) {
	ctx := c.Request.Context()
	uid, _ := auth.UserID(ctx)
	unit, _ := auth.UnitID(ctx)
	role, _ := auth.Role(ctx)
	c.JSON(http.StatusOK, gin.H{"user_id": uid, "unit_id": unit, "role": role})
}

// Convenience middleware bundles.

// AdminRead lets admins through and analysts on safe methods only.
func AdminRead() []gin.HandlerFunc {
	return []gin.HandlerFunc{
		rbac.ReadOnlyFor(rbac.RoleAnalyst),
		rbac.RequireAnyRole(rbac.RoleAdmin, rbac.RoleAnalyst, rbac.RoleSuperAdmin),
	}
}

func CommanderOnly() []gin.HandlerFunc {
	return []gin.HandlerFunc{rbac.RequireUnit(), rbac.RequireAnyRole(rbac.RoleCommander)}
}
