package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/iyobo/jollof-data-arangodb/internal/aql"
	"github.com/iyobo/jollof-data-arangodb/internal/domain"
	"github.com/iyobo/jollof-data-arangodb/internal/middleware"
)

const (
	defaultPage  = 1
	defaultLimit = 20
	maxLimit     = 100
)

// Store is what the handler needs from the record adapter.
type Store interface {
	domain.RecordStore
	domain.HealthChecker
}

// RecordsHandler exposes the record adapter over HTTP
type RecordsHandler struct {
	store  Store
	logger *zap.Logger
}

func NewRecordsHandler(store Store, logger *zap.Logger) *RecordsHandler {
	return &RecordsHandler{
		store:  store,
		logger: logger,
	}
}

// Routes mounts the record endpoints on r.
func (h *RecordsHandler) Routes(r chi.Router) {
	r.Get("/health", h.Health)
	r.Route("/collections/{collection}/records", func(r chi.Router) {
		r.Post("/", h.CreateRecord)
		r.Get("/", h.ListRecords)
		r.Get("/{id}", h.GetRecord)
		r.Patch("/{id}", h.UpdateRecord)
		r.Delete("/{id}", h.DeleteRecord)
	})
}

// Health handles GET /health
func (h *RecordsHandler) Health(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	if err := h.store.CheckConnection(r.Context()); err != nil {
		h.logger.Warn("health check failed",
			zap.String("request_id", requestID),
			zap.Error(err),
		)
		h.respondError(w, http.StatusServiceUnavailable, "backend unavailable", requestID)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"}, requestID)
}

// CreateRecord handles POST /collections/{collection}/records
func (h *RecordsHandler) CreateRecord(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)
	collection := chi.URLParam(r, "collection")

	var data map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil || data == nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body", requestID)
		return
	}

	res, err := h.store.Create(ctx, collection, data, domain.Params{})
	if err != nil {
		h.fail(ctx, w, "failed to create record", collection, err)
		return
	}

	h.respondJSON(w, http.StatusCreated, res, requestID)
}

// GetRecord handles GET /collections/{collection}/records/{id}
func (h *RecordsHandler) GetRecord(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)
	collection := chi.URLParam(r, "collection")
	id := chi.URLParam(r, "id")

	rec, err := h.store.FindByID(ctx, collection, id, domain.Params{})
	if err != nil {
		h.fail(ctx, w, "failed to get record", collection, err)
		return
	}
	if rec == nil {
		h.respondError(w, http.StatusNotFound, "record not found", requestID)
		return
	}

	h.respondJSON(w, http.StatusOK, rec, requestID)
}

// UpdateRecord handles PATCH /collections/{collection}/records/{id}
func (h *RecordsHandler) UpdateRecord(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)
	collection := chi.URLParam(r, "collection")
	id := chi.URLParam(r, "id")

	var values map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&values); err != nil || len(values) == 0 {
		h.respondError(w, http.StatusBadRequest, "invalid request body", requestID)
		return
	}

	res, err := h.store.Update(ctx, collection, aql.ByID(id), values, domain.Params{})
	if err != nil {
		h.fail(ctx, w, "failed to update record", collection, err)
		return
	}
	if res.Count == 0 {
		h.respondError(w, http.StatusNotFound, "record not found", requestID)
		return
	}

	h.respondJSON(w, http.StatusOK, res, requestID)
}

// DeleteRecord handles DELETE /collections/{collection}/records/{id}
func (h *RecordsHandler) DeleteRecord(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)
	collection := chi.URLParam(r, "collection")
	id := chi.URLParam(r, "id")

	res, err := h.store.Remove(ctx, collection, aql.ByID(id), domain.Params{})
	if err != nil {
		h.fail(ctx, w, "failed to delete record", collection, err)
		return
	}
	if res.Count == 0 {
		h.respondError(w, http.StatusNotFound, "record not found", requestID)
		return
	}

	h.respondJSON(w, http.StatusOK, res, requestID)
}

// ListRecords handles GET /collections/{collection}/records with paging
func (h *RecordsHandler) ListRecords(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)
	collection := chi.URLParam(r, "collection")

	params, criteria, err := h.parseListParams(r)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error(), requestID)
		return
	}

	result, err := h.store.FindQL(ctx, collection, criteria, params)
	if err != nil {
		h.fail(ctx, w, "failed to list records", collection, err)
		return
	}

	limit := int64(params.Paging.Limit)
	response := map[string]interface{}{
		"data": result.Items,
		"pagination": map[string]interface{}{
			"page":        params.Paging.Page,
			"limit":       params.Paging.Limit,
			"total":       result.Count,
			"total_pages": (result.Count + limit - 1) / limit,
		},
	}

	h.respondJSON(w, http.StatusOK, response, requestID)
}

// parseListParams reads where, page, limit, sort and order from the query string.
func (h *RecordsHandler) parseListParams(r *http.Request) (domain.Params, domain.Criteria, error) {
	q := r.URL.Query()
	paging := &domain.Paging{Page: defaultPage, Limit: defaultLimit}

	if s := q.Get("page"); s != "" {
		page, err := strconv.Atoi(s)
		if err != nil || page < 1 {
			return domain.Params{}, nil, fmt.Errorf("invalid page parameter: must be a positive integer")
		}
		paging.Page = page
	}

	if s := q.Get("limit"); s != "" {
		limit, err := strconv.Atoi(s)
		if err != nil || limit < 1 {
			return domain.Params{}, nil, fmt.Errorf("invalid limit parameter: must be a positive integer")
		}
		if limit > maxLimit {
			limit = maxLimit
		}
		paging.Limit = limit
	}

	var criteria domain.Criteria
	if s := q.Get("where"); s != "" {
		if err := json.Unmarshal([]byte(s), &criteria); err != nil {
			return domain.Params{}, nil, fmt.Errorf("invalid where parameter: must be a JSON object")
		}
	}

	params := domain.Params{Paging: paging}
	if s := q.Get("sort"); s != "" {
		params.Sorting = &domain.Sorting{Sort: s, Order: domain.SortOrder(q.Get("order"))}
	}

	return params, criteria, nil
}

// fail logs an adapter error and maps it to a status code.
func (h *RecordsHandler) fail(ctx context.Context, w http.ResponseWriter, msg, collection string, err error) {
	requestID := middleware.GetRequestID(ctx)

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrCollectionNotConfigured):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidParams), errors.Is(err, domain.ErrInvalidField):
		status = http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}

	h.logger.Error(msg,
		zap.String("request_id", requestID),
		zap.String("collection", collection),
		zap.Int("status", status),
		zap.Error(err),
	)

	if status == http.StatusInternalServerError {
		h.respondError(w, status, msg, requestID)
		return
	}
	h.respondError(w, status, err.Error(), requestID)
}

// respondJSON sends a JSON response
func (h *RecordsHandler) respondJSON(w http.ResponseWriter, status int, data interface{}, requestID string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Request-ID", requestID)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response",
			zap.String("request_id", requestID),
			zap.Error(err),
		)
	}
}

// respondError sends an error response
func (h *RecordsHandler) respondError(w http.ResponseWriter, status int, message, requestID string) {
	h.respondJSON(w, status, map[string]string{
		"error":      message,
		"request_id": requestID,
	}, requestID)
}
