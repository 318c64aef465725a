package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/pawpass-backend/api/responses"
	"github.com/angelmondragon/pawpass-backend/pkg/db/models"
	"github.com/angelmondragon/pawpass-backend/pkg/logger"
)

type ServiceLister interface {
	ListActiveServices(ctx context.Context) ([]models.Service, error)
}

type serviceResponse struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	Slug          string    `json:"slug"`
	Description   string    `json:"description,omitempty"`
	Price         string    `json:"price"`
	DurationHours int       `json:"duration_hours"`
	IsBundle      bool      `json:"is_bundle"`
}

// PublicServices lists the sellable catalogue.
func PublicServices(catalogue ServiceLister, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rows, err := catalogue.ListActiveServices(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]serviceResponse, 0, len(rows))
		for _, svc := range rows {
			item := serviceResponse{
				ID:            svc.ID,
				Name:          svc.Name,
				Slug:          svc.Slug,
				Price:         svc.Price.StringFixed(2),
				DurationHours: svc.DurationHours,
				IsBundle:      svc.IsBundle,
			}
			if svc.Description != nil {
				item.Description = *svc.Description
			}
			out = append(out, item)
		}
		responses.WriteSuccess(w, out)
	}
}
