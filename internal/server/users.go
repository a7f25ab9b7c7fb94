package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/bazaar/internal/entity"
	userdomain "github.com/smallbiznis/bazaar/internal/user/domain"
	"go.uber.org/zap"
)

type registerUserRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// RegisterUser is called by the identity gateway after it has created the
// credential. The response id is what the gateway sends back as X-User-ID.
func (s *Server) RegisterUser(c *gin.Context) {
	var req registerUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	user, err := s.users.Register(c.Request.Context(), userdomain.RegisterRequest{
		Email: strings.TrimSpace(req.Email),
		Name:  strings.TrimSpace(req.Name),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.log.Info("user registered", zap.String("user_id", user.ID.String()))
	c.JSON(http.StatusCreated, gin.H{"data": user})
}

func (s *Server) Me(c *gin.Context) {
	principal := s.principal(c)
	user, err := s.store.Users.Get(c.Request.Context(), principal, int64(principal.UserID))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": user})
}

type updateUserRequest struct {
	Name *string `json:"name"`
}

func (s *Server) UpdateMe(c *gin.Context) {
	var req updateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	principal := s.principal(c)
	user, err := s.store.Users.Update(c.Request.Context(), entity.Scope{Principal: principal}, int64(principal.UserID), entity.UserPatch{
		Name: req.Name,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": user})
}
