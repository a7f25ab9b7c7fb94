package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/bazaar/internal/authorization"
	memberdomain "github.com/smallbiznis/bazaar/internal/membership/domain"
)

// ListRealms returns the caller's realms, optionally narrowed by ?role=.
func (s *Server) ListRealms(c *gin.Context) {
	var query struct {
		Role string `form:"role"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	role := memberdomain.Role(strings.ToLower(strings.TrimSpace(query.Role)))
	if role != "" && !role.Valid() {
		AbortWithError(c, newValidationError("role", "invalid_role", "invalid role"))
		return
	}

	realms, err := s.store.Realms.Mine(c.Request.Context(), s.principal(c), role)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": realms})
}

func (s *Server) GetRealm(c *gin.Context) {
	realm, err := s.store.Realms.Get(c.Request.Context(), s.principal(c), realmParam(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": realm})
}

type authorizeRequest struct {
	RealmID       string `json:"realm_id"`
	EntityType    string `json:"entity_type"`
	Operation     string `json:"operation"`
	TargetRealmID string `json:"target_realm_id"`
}

type authorizeResponse struct {
	Allowed      bool   `json:"allowed"`
	Reason       string `json:"reason,omitempty"`
	Capabilities string `json:"capabilities"`
}

// Authorize evaluates a request for the calling principal without touching
// any entity.
func (s *Server) Authorize(c *gin.Context) {
	var req authorizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	entityType, err := authorization.ParseEntityType(req.EntityType)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	operation, err := authorization.ParseOperation(req.Operation)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	ctx := c.Request.Context()
	principal := s.principal(c)
	realmID := strings.TrimSpace(req.RealmID)
	decision, err := s.authz.Authorize(ctx, authorization.Request{
		Principal:     principal,
		RealmID:       realmID,
		EntityType:    entityType,
		Operation:     operation,
		TargetRealmID: strings.TrimSpace(req.TargetRealmID),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	caps, err := s.authz.Capabilities(ctx, principal, realmID, entityType)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": authorizeResponse{
		Allowed:      decision.Allowed,
		Reason:       string(decision.Reason),
		Capabilities: caps.Letters(),
	}})
}
