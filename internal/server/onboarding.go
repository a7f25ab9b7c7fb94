package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	onboardingdomain "github.com/smallbiznis/bazaar/internal/onboarding/domain"
)

type becomeVendorRequest struct {
	StoreName        string `json:"store_name"`
	StoreDescription string `json:"store_description"`
	StoreImage       string `json:"store_image"`
}

// BecomeVendor opens a shop for the calling buyer.
func (s *Server) BecomeVendor(c *gin.Context) {
	var req becomeVendorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	principal := s.principal(c)
	vendor, err := s.onboarding.BecomeVendor(c.Request.Context(), onboardingdomain.Request{
		UserID:           principal.UserID,
		StoreName:        strings.TrimSpace(req.StoreName),
		StoreDescription: strings.TrimSpace(req.StoreDescription),
		StoreImage:       strings.TrimSpace(req.StoreImage),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": gin.H{
		"realm_id": vendor.RealmID,
		"store_id": vendor.StoreID.String(),
	}})
}

func (s *Server) OnboardingState(c *gin.Context) {
	state, err := s.onboarding.State(c.Request.Context(), s.principal(c).UserID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"state": state}})
}
