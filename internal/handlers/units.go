package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rush-contest/apiserver/internal/services"
)

// UnitsHandler serves the organizer selection list.
type UnitsHandler struct {
	resolver *services.OrganizerResolver
}

func NewUnitsHandler(resolver *services.OrganizerResolver) *UnitsHandler {
	return &UnitsHandler{resolver: resolver}
}

// UnitsRouter registers unit routes.
func UnitsRouter(r chi.Router, resolver *services.OrganizerResolver) {
	handler := NewUnitsHandler(resolver)
	r.Get("/options", handler.Options)
}

// Options returns every selectable club and school for the registration
// form, built fresh on each call.
func (h *UnitsHandler) Options(w http.ResponseWriter, r *http.Request) {
	options, err := h.resolver.Options(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list units")
		return
	}
	if options == nil {
		options = []services.UnitOption{}
	}
	writeJSON(w, http.StatusOK, options)
}
