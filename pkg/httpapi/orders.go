package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"cafepos/pkg/cart"
	"cafepos/pkg/order"
)

type checkoutRequest struct {
	CustomerName string        `json:"customerName"`
	OrderType    string        `json:"orderType"`
	Lines        []cart.Line   `json:"lines" binding:"required,min=1"`
	Discount     cart.Discount `json:"discount"`
}

type completeRequest struct {
	Payment *order.Payment `json:"payment"`
}

type voidRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleCheckout(c *gin.Context) {
	var req checkoutRequest
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
	session := cart.NewSession(req.CustomerName, req.OrderType)
	for _, line := range req.Lines {
		session = session.WithLine(line)
	}
	session = session.WithDiscount(req.Discount)

	created, err := s.deps.Carts.Checkout(ctx, session, src, s.deps.Orders)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (s *Server) handlePendingOrders(c *gin.Context) {
	ctx, cancel := requestContext(c)
	defer cancel()

	orders, err := s.deps.Orders.Pending(ctx)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, orders)
}

func (s *Server) handleSales(c *gin.Context) {
	ctx, cancel := requestContext(c)
	defer cancel()

	orders, err := s.deps.Orders.Sales(ctx)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, orders)
}

func (s *Server) handleGetOrder(c *gin.Context) {
	ctx, cancel := requestContext(c)
	defer cancel()

	o, err := s.deps.Orders.Get(ctx, c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (s *Server) handleStartOrder(c *gin.Context) {
	ctx, cancel := requestContext(c)
	defer cancel()

	o, err := s.deps.Orders.Start(ctx, c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (s *Server) handleItemDone(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		s.badRequest(c, err)
		return
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	o, err := s.deps.Orders.MarkItemDone(ctx, c.Param("id"), index)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (s *Server) handleReadyOrder(c *gin.Context) {
	ctx, cancel := requestContext(c)
	defer cancel()

	o, err := s.deps.Orders.MarkReady(ctx, c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (s *Server) handleCompleteOrder(c *gin.Context) {
	var req completeRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			s.badRequest(c, err)
			return
		}
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	res, err := s.deps.Deductions.Complete(ctx, c.Param("id"), req.Payment)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleVoidOrder(c *gin.Context) {
	var req voidRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			s.badRequest(c, err)
			return
		}
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	o, err := s.deps.Orders.Void(ctx, c.Param("id"), req.Reason)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}
