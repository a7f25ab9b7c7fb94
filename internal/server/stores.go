package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) GetStore(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	store, err := s.store.Stores.Get(c.Request.Context(), s.principal(c), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": store})
}

// GetRealmStore returns the single store of a shop realm.
func (s *Server) GetRealmStore(c *gin.Context) {
	store, err := s.store.Stores.ByRealm(c.Request.Context(), s.principal(c), realmParam(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": store})
}
