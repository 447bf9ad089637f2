package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"cafepos/pkg/cart"
)

// The cart is owned by the client screen: every request carries the whole session and
// mutations answer with the next session.

type linesRequest struct {
	Lines    []cart.Line   `json:"lines" binding:"required"`
	Discount cart.Discount `json:"discount"`
}

type addRequest struct {
	Session cart.Session `json:"session"`
	Line    cart.Line    `json:"line"`
}

type quantityRequest struct {
	Session  cart.Session `json:"session"`
	Index    int          `json:"index" binding:"min=0"`
	Quantity int          `json:"quantity" binding:"min=1"`
}

type removeRequest struct {
	Session cart.Session `json:"session"`
	Index   int          `json:"index" binding:"min=0"`
}

type sessionResponse struct {
	Session    cart.Session `json:"session"`
	Validation cart.Result  `json:"validation"`
}

func (s *Server) handleValidateCart(c *gin.Context) {
	var req linesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	src, err := s.sources(ctx)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s.deps.Carts.Validate(ctx, req.Lines, src))
}

func (s *Server) handleCartTotals(c *gin.Context) {
	var req linesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	src, err := s.sources(ctx)
	if err != nil {
		s.fail(c, err)
		return
	}
	quote, err := s.deps.Carts.Quote(cart.Session{Lines: req.Lines, Discount: req.Discount}, src)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, quote)
}

func (s *Server) handleCartAdd(c *gin.Context) {
	var req addRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	src, err := s.sources(ctx)
	if err != nil {
		s.fail(c, err)
		return
	}
	if req.Session.ID == "" {
		fresh := cart.NewSession(req.Session.CustomerName, req.Session.OrderType)
		fresh.Lines, fresh.Discount = req.Session.Lines, req.Session.Discount
		req.Session = fresh
	}
	next, res, err := s.deps.Carts.Add(ctx, req.Session, req.Line, src)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sessionResponse{Session: next, Validation: res})
}

func (s *Server) handleCartQuantity(c *gin.Context) {
	var req quantityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	src, err := s.sources(ctx)
	if err != nil {
		s.fail(c, err)
		return
	}
	next, res, err := s.deps.Carts.SetQuantity(ctx, req.Session, req.Index, req.Quantity, src)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sessionResponse{Session: next, Validation: res})
}

func (s *Server) handleCartRemove(c *gin.Context) {
	var req removeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	next, err := s.deps.Carts.Remove(req.Session, req.Index)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": next})
}
