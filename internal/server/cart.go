package server

import (
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/bazaar/internal/entity"
	entitydomain "github.com/smallbiznis/bazaar/internal/entity/domain"
	"github.com/smallbiznis/bazaar/pkg/db/pagination"
)

type addCartItemRequest struct {
	ProductID snowflake.ID `json:"product_id"`
	Quantity  int          `json:"quantity"`
}

type updateCartItemRequest struct {
	Quantity *int `json:"quantity"`
}

func (s *Server) ListCart(c *gin.Context) {
	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	opts, size, err := pageOptions(page)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	items, err := s.store.CartItems.Query(c.Request.Context(), s.principal(c), realmParam(c), opts...)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	items, pageInfo := pagination.BuildCursorPageInfo(items, size, func(item entitydomain.CartItem) int64 {
		return item.ID.Int64()
	})
	c.JSON(http.StatusOK, gin.H{"data": items, "page_info": pageInfo})
}

func (s *Server) AddCartItem(c *gin.Context) {
	var req addCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	realmID := realmParam(c)
	item, err := s.store.CartItems.Add(c.Request.Context(), entity.Scope{Principal: s.principal(c), RealmID: realmID}, entitydomain.CartItem{
		RealmID:   realmID,
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": item})
}

func (s *Server) UpdateCartItem(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req updateCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	item, err := s.store.CartItems.Update(c.Request.Context(), s.scope(c), id, entity.CartItemPatch{
		Quantity: req.Quantity,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (s *Server) DeleteCartItem(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.store.CartItems.Delete(c.Request.Context(), s.scope(c), id); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
