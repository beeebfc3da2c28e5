package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sahana-project/ewaste-api/internal/services"
	"github.com/sahana-project/ewaste-api/types"
)

// ItemHandler provides HTTP handlers for individual e-waste items.
type ItemHandler struct {
	items *services.ItemService
	log   *slog.Logger
}

func NewItemHandler(items *services.ItemService, log *slog.Logger) *ItemHandler {
	return &ItemHandler{items: items, log: log}
}

// ItemRouter registers item routes. Every route requires authentication.
func ItemRouter(r chi.Router, items *services.ItemService, authMiddleware func(http.Handler) http.Handler, log *slog.Logger) {
	handler := NewItemHandler(items, log)

	r.Use(authMiddleware)
	r.Post("/", handler.Create)
	r.Get("/", handler.List)
	r.Get("/my-posts", handler.ListMine)
	r.With(RequireRoles(types.RoleCollector)).Get("/booked-by-me", handler.ListBookedByMe)
	r.Route("/{itemID}", func(r chi.Router) {
		r.Get("/", handler.Get)
		r.Put("/", handler.Update)
		r.Delete("/", handler.Delete)
		r.With(RequireRoles(types.RoleCollector)).Put("/book", handler.Book)
		r.With(RequireRoles(types.RoleCollector, types.RoleAdmin)).Put("/collect", handler.Collect)
	})
}

func (h *ItemHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, _ := accountFromContext(r.Context())
	form, err := readForm(r)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	in, err := itemInputFromForm(form)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	uploads, err := form.uploads(formFieldImages)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	item, err := h.items.Create(r.Context(), actor, in, uploads)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func itemInputFromForm(form requestForm) (services.ItemInput, error) {
	quantity, err := form.int("quantity")
	if err != nil {
		return services.ItemInput{}, err
	}
	price, err := form.float("price")
	if err != nil {
		return services.ItemInput{}, err
	}

	in := services.ItemInput{
		Title:       form.get("title"),
		Description: form.get("description"),
		Category:    types.Category(form.get("category")),
		Condition:   types.Condition(form.get("condition")),
		Price:       price,
		Location:    form.get("location"),
	}
	if quantity != nil {
		in.Quantity = *quantity
	}
	return in, nil
}

// List returns every item, optionally filtered by status, condition and
// category query parameters.
func (h *ItemHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	items, err := h.items.ListAll(r.Context(), types.ItemFilter{
		Status:    types.ItemStatus(query.Get("status")),
		Condition: types.Condition(query.Get("condition")),
		Category:  types.Category(query.Get("category")),
	})
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, newList(items))
}

func (h *ItemHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	actor, _ := accountFromContext(r.Context())
	items, err := h.items.ListMine(r.Context(), actor)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, newList(items))
}

func (h *ItemHandler) ListBookedByMe(w http.ResponseWriter, r *http.Request) {
	actor, _ := accountFromContext(r.Context())
	items, err := h.items.ListBookedByMe(r.Context(), actor)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, newList(items))
}

func (h *ItemHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "itemID")
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	item, err := h.items.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// Update edits an item. existingImages lists the references to keep; new
// files are appended after them.
func (h *ItemHandler) Update(w http.ResponseWriter, r *http.Request) {
	actor, _ := accountFromContext(r.Context())
	id, err := parseID(r, "itemID")
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	form, err := readForm(r)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	patch, err := itemPatchFromForm(form)
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

	item, err := h.items.Update(r.Context(), actor, id, patch, keep, uploads)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func itemPatchFromForm(form requestForm) (services.ItemPatch, error) {
	quantity, err := form.int("quantity")
	if err != nil {
		return services.ItemPatch{}, err
	}
	price, err := form.float("price")
	if err != nil {
		return services.ItemPatch{}, err
	}

	patch := services.ItemPatch{
		Title:       form.str("title"),
		Description: form.str("description"),
		Quantity:    quantity,
		Price:       price,
		ClearPrice:  form.blank("price"),
		Location:    form.str("location"),
	}
	if v := form.get("category"); v != "" {
		patch.Category = (*types.Category)(&v)
	}
	if v := form.get("condition"); v != "" {
		patch.Condition = (*types.Condition)(&v)
	}
	if v := form.get("status"); v != "" {
		patch.Status = (*types.ItemStatus)(&v)
	}
	return patch, nil
}

// Delete removes an item. Only its owner may do so.
func (h *ItemHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, _ := accountFromContext(r.Context())
	id, err := parseID(r, "itemID")
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	if err := h.items.Delete(r.Context(), actor, id); err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "E-waste post deleted successfully"})
}

func (h *ItemHandler) Book(w http.ResponseWriter, r *http.Request) {
	actor, _ := accountFromContext(r.Context())
	id, err := parseID(r, "itemID")
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	item, err := h.items.Book(r.Context(), actor, id)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (h *ItemHandler) Collect(w http.ResponseWriter, r *http.Request) {
	actor, _ := accountFromContext(r.Context())
	id, err := parseID(r, "itemID")
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	item, err := h.items.Collect(r.Context(), actor, id)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}
