package server

import (
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/bazaar/internal/identity"
	"github.com/smallbiznis/bazaar/internal/observability/obscontext"
	userdomain "github.com/smallbiznis/bazaar/internal/user/domain"
	"go.uber.org/zap"
)

const (
	HeaderUserID      = "X-User-ID"
	contextUserIDKey  = "user_id"
	contextRealmIDKey = "realm_id"
)

// Identity resolves the gateway-authenticated caller from X-User-ID. Requests
// without the header continue as anonymous.
func (s *Server) Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(HeaderUserID))
		if raw == "" {
			c.Next()
			return
		}

		userID, err := snowflake.ParseString(raw)
		if err != nil || userID <= 0 {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		ctx := c.Request.Context()
		principal, err := s.users.Principal(ctx, userID)
		if err != nil {
			if errors.Is(err, userdomain.ErrNotFound) {
				AbortWithError(c, ErrUnauthorized)
				return
			}
			AbortWithError(c, err)
			return
		}

		ctx = identity.WithPrincipal(ctx, principal)
		ctx = obscontext.WithActor(ctx, "user", userID.String())
		c.Request = c.Request.WithContext(ctx)
		c.Set(contextUserIDKey, userID.String())
		c.Next()
	}
}

// AuthRequired rejects anonymous callers before the handler runs.
func (s *Server) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.principal(c) == nil {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		c.Next()
	}
}

// RealmContext joins the :type/:slug path segments into a realm id.
func (s *Server) RealmContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		realmType := strings.TrimSpace(c.Param("type"))
		slug := strings.TrimSpace(c.Param("slug"))
		if realmType == "" || slug == "" {
			AbortWithError(c, newValidationError("realm", "invalid_realm", "invalid realm"))
			return
		}
		realmID := realmType + "/" + slug
		c.Set(contextRealmIDKey, realmID)
		c.Request = c.Request.WithContext(obscontext.WithRealmID(c.Request.Context(), realmID))
		c.Next()
	}
}

// RateLimit throttles an action per caller, falling back to the client IP for
// anonymous requests. Limiter failures let the request through.
func (s *Server) RateLimit(action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		subject := "ip:" + c.ClientIP()
		if p := s.principal(c); p != nil {
			subject = "user:" + p.UserID.String()
		}

		res, err := s.limiter.Allow(c.Request.Context(), action+":"+subject)
		if err != nil {
			s.log.Warn("rate limiter unavailable", zap.String("action", action), zap.Error(err))
			c.Next()
			return
		}
		if res.Limit > 0 {
			c.Header("X-RateLimit-Limit", strconv.Itoa(res.Limit))
			c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		}
		if !res.Allowed {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(res.RetryAfter.Seconds()))))
			AbortWithError(c, ErrRateLimited)
			return
		}
		c.Next()
	}
}

func (s *Server) principal(c *gin.Context) *identity.Principal {
	return s.identity.CurrentUser(c.Request.Context())
}

func realmParam(c *gin.Context) string {
	return c.GetString(contextRealmIDKey)
}
