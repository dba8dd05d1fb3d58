package handlers

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/rizkypsr/cms-masterlu/internal/domain"
	"github.com/rizkypsr/cms-masterlu/internal/middleware"
	"github.com/rizkypsr/cms-masterlu/internal/usecases"
)

const (
	defaultPage    = 1
	defaultPerPage = 20
	maxPerPage     = 100
	maxBodyBytes   = 1 << 20
)

// itemRequest is the body of create and update calls
type itemRequest struct {
	Item     json.RawMessage `json:"item"`
	Position positionValue   `json:"position"`
}

// positionRequest is the body of a reposition call
type positionRequest struct {
	Position positionValue `json:"position"`
}

// positionValue is a leniently decoded position. Integers, integral numbers
// and numeric strings set it. Null, empty strings and any other value leave
// it unset, which appends on insert.
type positionValue struct {
	n *int
}

// UnmarshalJSON never fails
func (p *positionValue) UnmarshalJSON(data []byte) error {
	p.n = parsePosition(data)
	return nil
}

// Int returns the position or nil when unset
func (p positionValue) Int() *int {
	return p.n
}

func parsePosition(data []byte) *int {
	raw := strings.TrimSpace(string(data))
	if strings.HasPrefix(raw, `"`) {
		unquoted, err := strconv.Unquote(raw)
		if err != nil {
			return nil
		}
		raw = strings.TrimSpace(unquoted)
	}
	if raw == "" || raw == "null" {
		return nil
	}

	if n, err := strconv.Atoi(raw); err == nil {
		return &n
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return nil
	}
	n := int(f)
	return &n
}

// CatalogHandler handles HTTP requests for ordered catalog entities
type CatalogHandler struct {
	usecase *usecases.CatalogUsecase
	logger  *zap.Logger
}

// NewCatalogHandler creates a new catalog handler
func NewCatalogHandler(usecase *usecases.CatalogUsecase, logger *zap.Logger) *CatalogHandler {
	return &CatalogHandler{
		usecase: usecase,
		logger:  logger,
	}
}

// Mount registers the catalog routes on r
func (h *CatalogHandler) Mount(r chi.Router) {
	r.Route("/catalog", func(r chi.Router) {
		r.Get("/families", h.ListFamilies)
		r.Route("/{family}", func(r chi.Router) {
			r.Get("/listings", h.ListListings)
			r.Post("/normalize", h.NormalizeFamily)
			r.Post("/items", h.CreateItem)
			r.Route("/items/{id}", func(r chi.Router) {
				r.Put("/", h.UpdateItem)
				r.Delete("/", h.DeleteItem)
				r.Put("/position", h.MoveItem)
				r.Get("/siblings", h.ListSiblings)
			})
		})
	})
}

// ListFamilies handles GET /catalog/families
func (h *CatalogHandler) ListFamilies(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	h.respondJSON(w, http.StatusOK, map[string]interface{}{"families": h.usecase.Families()}, requestID)
}

// CreateItem handles POST /catalog/{family}/items
func (h *CatalogHandler) CreateItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)
	family := chi.URLParam(r, "family")

	var req itemRequest
	if err := h.decode(w, r, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error(), requestID)
		return
	}
	if len(req.Item) == 0 {
		h.respondError(w, http.StatusBadRequest, "item is required", requestID)
		return
	}

	item, err := h.usecase.CreateItem(ctx, family, req.Item, req.Position.Int())
	if err != nil {
		h.fail(w, "failed to create item", err, requestID, zap.String("family", family))
		return
	}

	h.respondJSON(w, http.StatusCreated, item, requestID)
}

// UpdateItem handles PUT /catalog/{family}/items/{id}
func (h *CatalogHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)
	family := chi.URLParam(r, "family")

	id, err := parseID(r)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error(), requestID)
		return
	}

	var req itemRequest
	if err := h.decode(w, r, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error(), requestID)
		return
	}
	if len(req.Item) == 0 && req.Position.Int() == nil {
		h.respondError(w, http.StatusBadRequest, "item or position is required", requestID)
		return
	}

	item, err := h.usecase.UpdateItem(ctx, family, id, req.Item, req.Position.Int())
	if err != nil {
		h.fail(w, "failed to update item", err, requestID, zap.String("family", family), zap.Int64("id", id))
		return
	}

	h.respondJSON(w, http.StatusOK, item, requestID)
}

// MoveItem handles PUT /catalog/{family}/items/{id}/position
func (h *CatalogHandler) MoveItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)
	family := chi.URLParam(r, "family")

	id, err := parseID(r)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error(), requestID)
		return
	}

	var req positionRequest
	if err := h.decode(w, r, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error(), requestID)
		return
	}
	target := req.Position.Int()
	if target == nil {
		h.respondError(w, http.StatusBadRequest, "position must be an integer", requestID)
		return
	}

	item, err := h.usecase.MoveItem(ctx, family, id, *target)
	if err != nil {
		h.fail(w, "failed to move item", err, requestID, zap.String("family", family), zap.Int64("id", id))
		return
	}

	h.respondJSON(w, http.StatusOK, item, requestID)
}

// DeleteItem handles DELETE /catalog/{family}/items/{id}
func (h *CatalogHandler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)
	family := chi.URLParam(r, "family")

	id, err := parseID(r)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error(), requestID)
		return
	}

	if err := h.usecase.DeleteItem(ctx, family, id); err != nil {
		h.fail(w, "failed to delete item", err, requestID, zap.String("family", family), zap.Int64("id", id))
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]string{"message": "item deleted"}, requestID)
}

// ListSiblings handles GET /catalog/{family}/items/{id}/siblings
func (h *CatalogHandler) ListSiblings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)
	family := chi.URLParam(r, "family")

	id, err := parseID(r)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error(), requestID)
		return
	}

	listing, err := h.usecase.ListSiblings(ctx, family, id)
	if err != nil {
		h.fail(w, "failed to list siblings", err, requestID, zap.String("family", family), zap.Int64("id", id))
		return
	}

	h.respondJSON(w, http.StatusOK, listing, requestID)
}

// ListListings handles GET /catalog/{family}/listings with pagination
func (h *CatalogHandler) ListListings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)
	family := chi.URLParam(r, "family")

	page, perPage, err := h.parsePaginationParams(r)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error(), requestID)
		return
	}

	params := domain.PaginationParams{
		Limit:  perPage,
		Offset: (page - 1) * perPage,
	}

	result, err := h.usecase.ListPublished(ctx, family, params)
	if err != nil {
		h.fail(w, "failed to list listings", err, requestID, zap.String("family", family))
		return
	}

	// Build pagination response
	response := map[string]interface{}{
		"data": result.Items,
		"pagination": map[string]interface{}{
			"page":        page,
			"per_page":    perPage,
			"total":       result.Total,
			"total_pages": (result.Total + perPage - 1) / perPage,
			"has_more":    result.HasMore,
		},
	}

	h.respondJSON(w, http.StatusOK, response, requestID)
}

// NormalizeFamily handles POST /catalog/{family}/normalize
func (h *CatalogHandler) NormalizeFamily(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)
	family := chi.URLParam(r, "family")

	results, err := h.usecase.NormalizeFamily(ctx, family)
	if err != nil {
		h.fail(w, "failed to normalize family", err, requestID, zap.String("family", family))
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{"scopes": results}, requestID)
}

// parsePaginationParams parses and validates pagination parameters
func (h *CatalogHandler) parsePaginationParams(r *http.Request) (page, perPage int, err error) {
	pageStr := r.URL.Query().Get("page")
	if pageStr == "" {
		page = defaultPage
	} else {
		page, err = strconv.Atoi(pageStr)
		if err != nil || page < 1 {
			return 0, 0, fmt.Errorf("invalid page parameter: must be a positive integer")
		}
	}

	perPageStr := r.URL.Query().Get("per_page")
	if perPageStr == "" {
		perPage = defaultPerPage
	} else {
		perPage, err = strconv.Atoi(perPageStr)
		if err != nil || perPage < 1 {
			return 0, 0, fmt.Errorf("invalid per_page parameter: must be a positive integer")
		}
		if perPage > maxPerPage {
			perPage = maxPerPage
		}
	}

	return page, perPage, nil
}

// decode reads a JSON body into v
func (h *CatalogHandler) decode(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body")
	}
	return nil
}

func parseID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("invalid id parameter: must be a positive integer")
	}
	return id, nil
}

// statusFor maps an error to its HTTP status
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrUnknownFamily),
		errors.Is(err, domain.ErrEntityNotFound),
		errors.Is(err, domain.ErrItemNotInScope):
		return http.StatusNotFound
	case usecases.IsClientError(err):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// fail logs err and writes the mapped error response. Server errors get a
// generic message.
func (h *CatalogHandler) fail(w http.ResponseWriter, message string, err error, requestID string, fields ...zap.Field) {
	status := statusFor(err)

	fields = append(fields, zap.String("request_id", requestID), zap.Int("status", status), zap.Error(err))
	if status >= http.StatusInternalServerError {
		h.logger.Error(message, fields...)
		h.respondError(w, status, message, requestID)
		return
	}

	h.logger.Warn(message, fields...)
	h.respondError(w, status, err.Error(), requestID)
}

// respondJSON sends a JSON response
func (h *CatalogHandler) respondJSON(w http.ResponseWriter, status int, data interface{}, requestID string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(middleware.RequestIDHeader, requestID)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response",
			zap.String("request_id", requestID),
			zap.Error(err),
		)
	}
}

// respondError sends an error response
func (h *CatalogHandler) respondError(w http.ResponseWriter, status int, message, requestID string) {
	middleware.WriteError(w, status, message, requestID)
}
