package controllers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ssr0016/next-rental-eq-marketplace/api/responses"
	"github.com/ssr0016/next-rental-eq-marketplace/api/validators"
	"github.com/ssr0016/next-rental-eq-marketplace/internal/catalog"
	"github.com/ssr0016/next-rental-eq-marketplace/pkg/enums"
	pkgerrors "github.com/ssr0016/next-rental-eq-marketplace/pkg/errors"
	"github.com/ssr0016/next-rental-eq-marketplace/pkg/logger"
)

const maxSearchLength = 100

type categoryRequest struct {
	Name        string  `json:"name" validate:"required,max=120"`
	Description *string `json:"description" validate:"omitempty,max=2000"`
}

type categoryPatchRequest struct {
	Name        string  `json:"name" validate:"omitempty,max=120"`
	Description *string `json:"description" validate:"omitempty,max=2000"`
}

type createItemRequest struct {
	CategoryID    uuid.UUID       `json:"category_id" validate:"required"`
	Name          string          `json:"name" validate:"required,max=200"`
	Description   *string         `json:"description" validate:"omitempty,max=4000"`
	RentPerDay    decimal.Decimal `json:"rent_per_day"`
	TotalQuantity int             `json:"total_quantity" validate:"gte=0"`
	Images        []string        `json:"images" validate:"omitempty,max=20,dive,url"`
}

type updateItemRequest struct {
	CategoryID    *uuid.UUID       `json:"category_id"`
	Name          *string          `json:"name" validate:"omitempty,max=200"`
	Description   *string          `json:"description" validate:"omitempty,max=4000"`
	RentPerDay    *decimal.Decimal `json:"rent_per_day"`
	TotalQuantity *int             `json:"total_quantity" validate:"omitempty,gte=0"`
	Images        *[]string        `json:"images" validate:"omitempty,max=20,dive,url"`
	Status        *string          `json:"status" validate:"omitempty,oneof=active inactive"`
}

func ListCategories(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		categories, err := svc.ListCategories(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, categories)
	}
}

// ListItems serves the public catalog. Only active items are listed.
func ListItems(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return listItems(svc, false, logg)
}

// AdminListItems also lists inactive items and accepts a status filter.
func AdminListItems(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return listItems(svc, true, logg)
}

func listItems(svc catalog.Service, admin bool, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		categoryID, err := validators.ParseQueryUUID(r, "category_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := catalog.ListItemsInput{
			Filters: catalog.ItemFilters{
				CategoryID: categoryID,
				Search:     validators.SanitizeString(r.URL.Query().Get("search"), maxSearchLength),
			},
			Pagination:      params,
			IncludeInactive: admin,
		}
		if admin {
			if raw := r.URL.Query().Get("status"); raw != "" {
				status := enums.ItemStatus(raw)
				if !status.IsValid() {
					responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid item status").
						WithDetails(map[string]any{"field": "status"}))
					return
				}
				input.Filters.Status = &status
			}
		}

		result, err := svc.ListItems(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func GetItem(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		itemID, err := validators.ParseUUIDParam(r, "itemId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		item, err := svc.GetItem(r.Context(), itemID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, item)
	}
}

func AdminCreateCategory(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req categoryRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		category, err := svc.CreateCategory(r.Context(), actor, catalog.CategoryInput{Name: req.Name, Description: req.Description})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, category)
	}
}

func AdminUpdateCategory(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		categoryID, err := validators.ParseUUIDParam(r, "categoryId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req categoryPatchRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		category, err := svc.UpdateCategory(r.Context(), actor, categoryID, catalog.CategoryInput{Name: req.Name, Description: req.Description})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, category)
	}
}

func AdminDeleteCategory(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		categoryID, err := validators.ParseUUIDParam(r, "categoryId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.DeleteCategory(r.Context(), actor, categoryID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func AdminCreateItem(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req createItemRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		item, err := svc.CreateItem(r.Context(), actor, catalog.CreateItemInput{
			CategoryID:    req.CategoryID,
			Name:          req.Name,
			Description:   req.Description,
			RentPerDay:    req.RentPerDay,
			TotalQuantity: req.TotalQuantity,
			Images:        req.Images,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, item)
	}
}

func AdminUpdateItem(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		itemID, err := validators.ParseUUIDParam(r, "itemId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req updateItemRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input := catalog.UpdateItemInput{
			CategoryID:    req.CategoryID,
			Name:          req.Name,
			Description:   req.Description,
			RentPerDay:    req.RentPerDay,
			TotalQuantity: req.TotalQuantity,
			Images:        req.Images,
		}
		if req.Status != nil {
			status := enums.ItemStatus(*req.Status)
			input.Status = &status
		}
		item, err := svc.UpdateItem(r.Context(), actor, itemID, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, item)
	}
}

func AdminDeleteItem(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		itemID, err := validators.ParseUUIDParam(r, "itemId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.DeleteItem(r.Context(), actor, itemID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
