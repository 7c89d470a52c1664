package handler

import (
	"net/http"
	"strconv"
	"strings"

	"storefront/internal/config"
	"storefront/internal/middleware"
	"storefront/internal/repository"
	"storefront/internal/usecase"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

// /products の公開API
type ProductHandler struct {
	uc *usecase.ProductUsecase
}

// DI
func NewProductHandler(uc *usecase.ProductUsecase) *ProductHandler {
	return &ProductHandler{uc: uc}
}

// 公開商品のルートを登録。レビュー投稿だけ認証が必要。
func (h *ProductHandler) RegisterRoutes(e *echo.Echo, cfg config.Config, userRepo repository.UserRepository) {
	e.GET("/products", h.list)
	e.GET("/products/:id", h.detail)

	g := e.Group("/products/:id/reviews")
	g.Use(middleware.AuthJWT(cfg))
	g.Use(middleware.TokenVersionGuard(userRepo))
	g.POST("", h.createReview)
}

func (h *ProductHandler) list(c echo.Context) error {
	// page（default 1）
	page := 1
	if v := c.QueryParam("page"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid page"})
		}
		page = p
	}

	// limit（default 12）
	limit := 12
	if v := c.QueryParam("limit"); v != "" {
		l, err := strconv.Atoi(v)
		if err != nil {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid limit"})
		}
		limit = l
	}

	in := usecase.ListProductsInput{
		Page:     page,
		Limit:    limit,
		Search:   c.QueryParam("search"),
		Category: c.QueryParam("category"),
	}

	if v := c.QueryParam("min_price"); v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid min_price"})
		}
		in.MinPrice = &d
	}
	if v := c.QueryParam("max_price"); v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid max_price"})
		}
		in.MaxPrice = &d
	}

	// ratings=3,4,5 は最小値以上で絞る
	if v := c.QueryParam("ratings"); v != "" {
		lowest := 0
		for _, s := range strings.Split(v, ",") {
			r, err := strconv.Atoi(strings.TrimSpace(s))
			if err != nil || r < 1 || r > 5 {
				return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid ratings"})
			}
			if lowest == 0 || r < lowest {
				lowest = r
			}
		}
		if lowest > 0 {
			d := decimal.NewFromInt(int64(lowest))
			in.MinRating = &d
		}
	}

	out, err := h.uc.ListPublicProducts(c.Request().Context(), in)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *ProductHandler) detail(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid id"})
	}

	out, err := h.uc.GetPublicProduct(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

type ReviewCreateRequest struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

func (h *ProductHandler) createReview(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid id"})
	}

	var req ReviewCreateRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	userName, _ := c.Get(middleware.CtxUserNameKey).(string)

	if err := h.uc.CreateReview(c.Request().Context(), userID, userName, id, usecase.CreateReviewInput{
		Rating:  req.Rating,
		Comment: req.Comment,
	}); err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusCreated, map[string]string{"message": "review added"})
}
