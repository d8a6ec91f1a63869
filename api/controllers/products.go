package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/freshkart/freshkart-backend/api/responses"
	"github.com/freshkart/freshkart-backend/api/validators"
	productsvc "github.com/freshkart/freshkart-backend/internal/products"
	"github.com/freshkart/freshkart-backend/pkg/db/models"
	pkgerrors "github.com/freshkart/freshkart-backend/pkg/errors"
	"github.com/freshkart/freshkart-backend/pkg/logger"
	"github.com/freshkart/freshkart-backend/pkg/pagination"
)

// ListProducts serves the active catalog with optional category and
// featured filters.
func ListProducts(repo productsvc.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if repo == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "products repository unavailable"))
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", 0, 0, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		filter := productsvc.ListFilter{
			Category: strings.TrimSpace(r.URL.Query().Get("category")),
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("featured")); raw != "" {
			featured := raw == "true" || raw == "1"
			filter.Featured = &featured
		}

		rows, next, err := repo.List(r.Context(), filter, pagination.Params{
			Limit:  limit,
			Cursor: r.URL.Query().Get("cursor"),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		items := make([]productResponse, 0, len(rows))
		for i := range rows {
			items = append(items, newProductResponse(&rows[i]))
		}
		responses.WriteSuccess(w, productListResponse{Products: items, NextCursor: next})
	}
}

// GetProduct serves a single active product.
func GetProduct(repo productsvc.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if repo == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "products repository unavailable"))
			return
		}

		id, err := uuid.Parse(chi.URLParam(r, "productID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid product id"))
			return
		}

		product, err := repo.FindByID(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newProductResponse(product))
	}
}

type productListResponse struct {
	Products   []productResponse `json:"products"`
	NextCursor string            `json:"next_cursor,omitempty"`
}

type productResponse struct {
	ID          uuid.UUID       `json:"id"`
	Name        string          `json:"name"`
	Category    string          `json:"category"`
	Price       decimal.Decimal `json:"price"`
	ImageURL    string          `json:"image_url"`
	Description string          `json:"description"`
	Stock       int             `json:"stock"`
	Unit        string          `json:"unit"`
	Featured    bool            `json:"featured"`
	CreatedAt   time.Time       `json:"created_at"`
}

func newProductResponse(p *models.Product) productResponse {
	return productResponse{
		ID:          p.ID,
		Name:        p.Name,
		Category:    p.Category,
		Price:       p.Price,
		ImageURL:    p.ImageURL,
		Description: p.Description,
		Stock:       p.Stock,
		Unit:        p.Unit,
		Featured:    p.Featured,
		CreatedAt:   p.CreatedAt,
	}
}
