package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sahana-project/ewaste-api/internal/services"
	"github.com/sahana-project/ewaste-api/types"
)

// BulkHandler provides HTTP handlers for bulk lots.
type BulkHandler struct {
	bulk *services.BulkService
	log  *slog.Logger
}

func NewBulkHandler(bulk *services.BulkService, log *slog.Logger) *BulkHandler {
	return &BulkHandler{bulk: bulk, log: log}
}

// BulkRouter registers bulk routes. Every route requires authentication.
func BulkRouter(r chi.Router, bulk *services.BulkService, authMiddleware func(http.Handler) http.Handler, log *slog.Logger) {
	handler := NewBulkHandler(bulk, log)
	collectorOnly := RequireRoles(types.RoleCollector)

	r.Use(authMiddleware)
	r.With(collectorOnly).Post("/", handler.Create)
	r.Get("/", handler.List)
	r.With(collectorOnly).Get("/my-posts", handler.ListMine)
	r.With(RequireRoles(types.RoleOrganization)).Get("/orders-by-me", handler.ListBoughtByMe)
	r.Route("/{bulkID}", func(r chi.Router) {
		r.Get("/", handler.Get)
		r.With(collectorOnly).Put("/", handler.Update)
		r.With(collectorOnly).Delete("/", handler.Delete)
		r.With(RequireRoles(types.RoleOrganization, types.RoleAdmin)).Put("/sold", handler.MarkSold)
	})
}

func (h *BulkHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, _ := accountFromContext(r.Context())
	form, err := readForm(r)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	in, err := bulkInputFromForm(form)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	uploads, err := form.uploads(formFieldImages)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	lot, err := h.bulk.Create(r.Context(), actor, in, uploads)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, lot)
}

func bulkInputFromForm(form requestForm) (services.BulkInput, error) {
	weight, err := form.float("weightInKg")
	if err != nil {
		return services.BulkInput{}, err
	}
	price, err := form.float("pricePerKg")
	if err != nil {
		return services.BulkInput{}, err
	}

	in := services.BulkInput{
		Title:       form.get("title"),
		Description: form.get("description"),
		Category:    types.Category(form.get("category")),
		Condition:   types.Condition(form.get("condition")),
		PricePerKg:  price,
		Location:    form.get("location"),
	}
	if weight != nil {
		in.WeightInKg = *weight
	}
	return in, nil
}

func (h *BulkHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	lots, err := h.bulk.ListAll(r.Context(), types.BulkFilter{
		Status:    types.BulkStatus(query.Get("status")),
		Condition: types.Condition(query.Get("condition")),
		Category:  types.Category(query.Get("category")),
	})
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, newList(lots))
}

func (h *BulkHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	actor, _ := accountFromContext(r.Context())
	lots, err := h.bulk.ListMine(r.Context(), actor)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, newList(lots))
}

// ListBoughtByMe returns the organization's purchases.
func (h *BulkHandler) ListBoughtByMe(w http.ResponseWriter, r *http.Request) {
	actor, _ := accountFromContext(r.Context())
	lots, err := h.bulk.ListBoughtByMe(r.Context(), actor)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, newList(lots))
}

func (h *BulkHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "bulkID")
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	lot, err := h.bulk.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, lot)
}

func (h *BulkHandler) Update(w http.ResponseWriter, r *http.Request) {
	actor, _ := accountFromContext(r.Context())
	id, err := parseID(r, "bulkID")
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	form, err := readForm(r)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	patch, err := bulkPatchFromForm(form)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	uploads, err := form.uploads(formFieldImages)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	keep, _ := form.list(formFieldExistingImages)

	lot, err := h.bulk.Update(r.Context(), actor, id, patch, keep, uploads)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, lot)
}

func bulkPatchFromForm(form requestForm) (services.BulkPatch, error) {
	weight, err := form.float("weightInKg")
	if err != nil {
		return services.BulkPatch{}, err
	}
	price, err := form.float("pricePerKg")
	if err != nil {
		return services.BulkPatch{}, err
	}

	patch := services.BulkPatch{
		Title:       form.str("title"),
		Description: form.str("description"),
		WeightInKg:  weight,
		PricePerKg:  price,
		ClearPrice:  form.blank("pricePerKg"),
		Location:    form.str("location"),
	}
	if v := form.get("category"); v != "" {
		patch.Category = (*types.Category)(&v)
	}
	if v := form.get("condition"); v != "" {
		patch.Condition = (*types.Condition)(&v)
	}
	if v := form.get("status"); v != "" {
		patch.Status = (*types.BulkStatus)(&v)
	}
	return patch, nil
}

func (h *BulkHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, _ := accountFromContext(r.Context())
	id, err := parseID(r, "bulkID")
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	if err := h.bulk.Delete(r.Context(), actor, id); err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Bulk e-waste post deleted successfully"})
}

// MarkSold sells the lot to the caller.
func (h *BulkHandler) MarkSold(w http.ResponseWriter, r *http.Request) {
	actor, _ := accountFromContext(r.Context())
	id, err := parseID(r, "bulkID")
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	lot, err := h.bulk.MarkSold(r.Context(), actor, id)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, lot)
}
