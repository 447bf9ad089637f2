package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type restockRequest struct {
	Quantity decimal.Decimal `json:"quantity"`
	Unit     string          `json:"unit"`
	Reason   string          `json:"reason"`
}

type adjustRequest struct {
	StockQuantity decimal.Decimal `json:"stockQuantity"`
	Reason        string          `json:"reason" binding:"required"`
}

func (s *Server) handleListIngredients(c *gin.Context) {
	ctx, cancel := requestContext(c)
	defer cancel()

	ledger, err := s.deps.Ingredients.Ledger(ctx)
	if err != nil {
		s.fail(c, err)
		return
	}
	switch c.Query("status") {
	case "low":
		c.JSON(http.StatusOK, ledger.LowStock())
	case "expired":
		c.JSON(http.StatusOK, ledger.Expired(time.Now()))
	default:
		c.JSON(http.StatusOK, ledger.Entries())
	}
}

func (s *Server) handleRestock(c *gin.Context) {
	var req restockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	ing, err := s.deps.Stock.Restock(ctx, c.Param("id"), req.Quantity, req.Unit, req.Reason)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ing)
}

func (s *Server) handleAdjust(c *gin.Context) {
	var req adjustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	ing, err := s.deps.Stock.Adjust(ctx, c.Param("id"), req.StockQuantity, req.Reason)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ing)
}

// productView is a catalog entry with whether it can currently be sold at all.
type productView struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Category    string   `json:"category,omitempty"`
	Kind        string   `json:"kind"`
	Options     []option `json:"options"`
	Orderable   bool     `json:"orderable"`
	Unorderable string   `json:"unorderableReason,omitempty"`
}

type option struct {
	Name      string          `json:"name"`
	Variation string          `json:"variation,omitempty"`
	Price     decimal.Decimal `json:"price"`
	Secondary bool            `json:"hasSecondaryRecipe"`
}

func (s *Server) handleListProducts(c *gin.Context) {
	ctx, cancel := requestContext(c)
	defer cancel()

	snapshot, err := s.deps.Products.Snapshot(ctx)
	if err != nil {
		s.fail(c, err)
		return
	}
	all := c.Query("all") == "true"
	out := make([]productView, 0)
	for _, p := range snapshot.Products() {
		if !p.Visible && !all {
			continue
		}
		view := productView{ID: p.ID, Name: p.Name, Category: p.Category, Kind: string(p.Kind), Orderable: true}
		if err := p.Orderable(); err != nil {
			view.Orderable = false
			view.Unorderable = err.Error()
		}
		for _, opt := range p.Options() {
			view.Options = append(view.Options, option{
				Name:      opt.Name,
				Variation: opt.Variation,
				Price:     opt.Price,
				Secondary: opt.Recipes.HasSecondary(),
			})
		}
		out = append(out, view)
	}
	c.JSON(http.StatusOK, out)
}
