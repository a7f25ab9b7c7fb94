package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/bazaar/internal/entity"
	entitydomain "github.com/smallbiznis/bazaar/internal/entity/domain"
	"github.com/smallbiznis/bazaar/pkg/db/option"
	"github.com/smallbiznis/bazaar/pkg/db/pagination"
)

type createProductRequest struct {
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Price       int64        `json:"price"`
	Stock       int64        `json:"stock"`
	Image       string       `json:"image"`
	Categories  []string     `json:"categories"`
	VendorID    snowflake.ID `json:"vendor_id"`
}

type updateProductRequest struct {
	Name        *string   `json:"name"`
	Description *string   `json:"description"`
	Price       *int64    `json:"price"`
	Stock       *int64    `json:"stock"`
	Image       *string   `json:"image"`
	Categories  *[]string `json:"categories"`
	RealmID     *string   `json:"realm_id"`
}

type productQuery struct {
	pagination.Pagination
	Category    string `form:"category"`
	OwnerUserID string `form:"owner_user_id"`
	VendorID    string `form:"vendor_id"`
}

// options builds the indexed filters and page window for a product listing.
func (q productQuery) options() ([]option.QueryOption, int, error) {
	var opts []option.QueryOption
	if category := strings.TrimSpace(q.Category); category != "" {
		opts = append(opts, option.WithCategory(category))
	}
	owner, err := parseOptionalSnowflakeID(q.OwnerUserID)
	if err != nil {
		return nil, 0, newValidationError("owner_user_id", "invalid_owner_user_id", "invalid owner_user_id")
	}
	if owner != nil {
		opts = append(opts, option.WithOwnerUserID(owner.Int64()))
	}
	vendor, err := parseOptionalSnowflakeID(q.VendorID)
	if err != nil {
		return nil, 0, newValidationError("vendor_id", "invalid_vendor_id", "invalid vendor_id")
	}
	if vendor != nil {
		opts = append(opts, option.WithVendorID(vendor.Int64()))
	}

	page, size, err := pageOptions(q.Pagination)
	if err != nil {
		return nil, 0, err
	}
	return append(opts, page...), size, nil
}

func (s *Server) CreateProduct(c *gin.Context) {
	var req createProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	ctx := c.Request.Context()
	principal := s.principal(c)
	realmID := realmParam(c)

	vendorID := req.VendorID
	if vendorID == 0 {
		store, err := s.store.Stores.ByRealm(ctx, principal, realmID)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		vendorID = store.ID
	}

	product, err := s.store.Products.Add(ctx, entity.Scope{Principal: principal, RealmID: realmID}, entitydomain.Product{
		Name:        strings.TrimSpace(req.Name),
		Description: strings.TrimSpace(req.Description),
		Price:       req.Price,
		Stock:       req.Stock,
		Image:       strings.TrimSpace(req.Image),
		Categories:  req.Categories,
		RealmID:     realmID,
		VendorID:    vendorID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": product})
}

func (s *Server) ListRealmProducts(c *gin.Context) {
	s.listProducts(c, realmParam(c))
}

// ListProducts searches products across every shop.
func (s *Server) ListProducts(c *gin.Context) {
	s.listProducts(c, "")
}

func (s *Server) listProducts(c *gin.Context, realmID string) {
	var query productQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	opts, size, err := query.options()
	if err != nil {
		AbortWithError(c, err)
		return
	}

	products, err := s.store.Products.Query(c.Request.Context(), s.principal(c), realmID, opts...)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	products, pageInfo := pagination.BuildCursorPageInfo(products, size, func(p entitydomain.Product) int64 {
		return p.ID.Int64()
	})
	c.JSON(http.StatusOK, gin.H{"data": products, "page_info": pageInfo})
}

func (s *Server) GetProduct(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	product, err := s.store.Products.Get(c.Request.Context(), s.principal(c), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": product})
}

func (s *Server) UpdateProduct(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req updateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	product, err := s.store.Products.Update(c.Request.Context(), s.scope(c), id, entity.ProductPatch{
		Name:        req.Name,
		Description: req.Description,
		Image:       req.Image,
		Price:       req.Price,
		Stock:       req.Stock,
		Categories:  req.Categories,
		RealmID:     req.RealmID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": product})
}

func (s *Server) DeleteProduct(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.store.Products.Delete(c.Request.Context(), s.scope(c), id); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// scope binds the caller to the realm named by ?realm_id=, if any. Without it
// the entity's own realm is used.
func (s *Server) scope(c *gin.Context) entity.Scope {
	return entity.Scope{
		Principal: s.principal(c),
		RealmID:   strings.TrimSpace(c.Query("realm_id")),
	}
}
