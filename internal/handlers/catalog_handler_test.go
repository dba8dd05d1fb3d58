package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rizkypsr/cms-masterlu/internal/cache"
	"github.com/rizkypsr/cms-masterlu/internal/dbtest"
	"github.com/rizkypsr/cms-masterlu/internal/domain"
	"github.com/rizkypsr/cms-masterlu/internal/families"
	"github.com/rizkypsr/cms-masterlu/internal/middleware"
	"github.com/rizkypsr/cms-masterlu/internal/ordering"
	"github.com/rizkypsr/cms-masterlu/internal/processor"
	"github.com/rizkypsr/cms-masterlu/internal/usecases"
)

func newRouter(t *testing.T) http.Handler {
	t.Helper()
	logger := zaptest.NewLogger(t)

	registry := families.New(families.Options{TopicCategoryID: 1})
	store := dbtest.NewStore(t, registry)
	manager := ordering.NewManager(logger)

	normalizer := processor.NewScopeNormalizer(store, manager, 2, 16, logger)
	normalizer.Start()

	usecase := usecases.NewCatalogUsecase(usecases.CatalogDeps{
		Families:   registry,
		Store:      store,
		Manager:    manager,
		Normalizer: normalizer,
		Cache:      cache.NewListingCache(4, 3600),
		Locks:      cache.NewScopeLocks(8),
	}, logger, 4)
	t.Cleanup(func() {
		usecase.Shutdown()
		normalizer.Stop()
	})

	r := chi.NewRouter()
	r.Use(middleware.RequestIDMiddleware)
	NewCatalogHandler(usecase, logger).Mount(r)
	return r
}

func do(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeItem(t *testing.T, rec *httptest.ResponseRecorder) domain.Sibling {
	t.Helper()
	var item domain.Sibling
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &item))
	return item
}

func createVideo(t *testing.T, h http.Handler, subGroup int64, position *int) domain.Sibling {
	t.Helper()
	body := map[string]interface{}{
		"item": map[string]interface{}{"video_sub_group_id": subGroup, "title": "lesson"},
	}
	if position != nil {
		body["position"] = *position
	}
	rec := do(t, h, http.MethodPost, "/catalog/video/items", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeItem(t, rec)
}

func siblingIDs(t *testing.T, h http.Handler, family string, id int64) []int64 {
	t.Helper()
	rec := do(t, h, http.MethodGet, fmt.Sprintf("/catalog/%s/items/%d/siblings", family, id), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var listing domain.ScopeListing
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listing))
	out := make([]int64, len(listing.Items))
	for i, item := range listing.Items {
		assert.Equal(t, i+1, item.Seq)
		out[i] = item.ID
	}
	return out
}

func TestCatalogHandlerLifecycle(t *testing.T) {
	h := newRouter(t)

	a := createVideo(t, h, 1, nil)
	b := createVideo(t, h, 1, nil)
	c := createVideo(t, h, 1, nil)
	assert.Equal(t, 3, c.Seq)

	front := 1
	d := createVideo(t, h, 1, &front)
	assert.Equal(t, 1, d.Seq)
	assert.Equal(t, []int64{d.ID, a.ID, b.ID, c.ID}, siblingIDs(t, h, "video", a.ID))

	rec := do(t, h, http.MethodPut, fmt.Sprintf("/catalog/video/items/%d/position", d.ID), map[string]int{"position": 3})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 3, decodeItem(t, rec).Seq)
	assert.Equal(t, []int64{a.ID, b.ID, d.ID, c.ID}, siblingIDs(t, h, "video", a.ID))

	rec = do(t, h, http.MethodPut, fmt.Sprintf("/catalog/video/items/%d", c.ID), map[string]interface{}{
		"item":     map[string]string{"title": "renamed"},
		"position": 1,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 1, decodeItem(t, rec).Seq)

	rec = do(t, h, http.MethodDelete, fmt.Sprintf("/catalog/video/items/%d", a.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []int64{c.ID, b.ID, d.ID}, siblingIDs(t, h, "video", b.ID))
}

func TestCatalogHandlerErrorMapping(t *testing.T) {
	h := newRouter(t)
	a := createVideo(t, h, 1, nil)

	tests := []struct {
		name   string
		method string
		path   string
		body   interface{}
		status int
	}{
		{"unknown family", http.MethodPost, "/catalog/podcast/items", `{"item": {}}`, http.StatusNotFound},
		{"missing entity", http.MethodDelete, "/catalog/video/items/999", nil, http.StatusNotFound},
		{"bad id", http.MethodDelete, "/catalog/video/items/abc", nil, http.StatusBadRequest},
		{"bad body", http.MethodPost, "/catalog/video/items", `{"item": `, http.StatusBadRequest},
		{"missing item", http.MethodPost, "/catalog/video/items", `{"position": 1}`, http.StatusBadRequest},
		{"missing scope", http.MethodPost, "/catalog/video/items", `{"item": {"title": "orphan"}}`, http.StatusBadRequest},
		{"missing position", http.MethodPut, fmt.Sprintf("/catalog/video/items/%d/position", a.ID), `{}`, http.StatusBadRequest},
		{"empty update", http.MethodPut, fmt.Sprintf("/catalog/video/items/%d", a.ID), `{}`, http.StatusBadRequest},
		{"scope change", http.MethodPut, fmt.Sprintf("/catalog/video/items/%d", a.ID), `{"item": {"video_sub_group_id": 2}}`, http.StatusBadRequest},
		{"bad page", http.MethodGet, "/catalog/video/listings?page=0", nil, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())

			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.NotEmpty(t, body["error"])
			assert.NotEmpty(t, body["request_id"])
		})
	}
}

func TestCatalogHandlerFamiliesAndListings(t *testing.T) {
	h := newRouter(t)
	createVideo(t, h, 1, nil)
	createVideo(t, h, 2, nil)

	rec := do(t, h, http.MethodGet, "/catalog/families", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var fams struct {
		Families []string `json:"families"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fams))
	assert.Contains(t, fams.Families, families.Video)

	rec = do(t, h, http.MethodGet, "/catalog/video/listings?per_page=1", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var page struct {
		Data       []domain.ScopeListing `json:"data"`
		Pagination struct {
			Total   int  `json:"total"`
			HasMore bool `json:"has_more"`
		} `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Len(t, page.Data, 1)
	assert.Equal(t, 2, page.Pagination.Total)
	assert.True(t, page.Pagination.HasMore)
}

func TestCatalogHandlerNormalize(t *testing.T) {
	h := newRouter(t)
	createVideo(t, h, 1, nil)

	rec := do(t, h, http.MethodPost, "/catalog/video/normalize", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var report struct {
		Scopes []domain.NormalizeResult `json:"scopes"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	require.Len(t, report.Scopes, 1)
	assert.Equal(t, domain.NormalizeStatusUnchanged, report.Scopes[0].Status)
	assert.Equal(t, "video|video_sub_group_id=1", report.Scopes[0].ScopeKey)
}

func TestCatalogHandlerCreateLenientPosition(t *testing.T) {
	tests := []struct {
		name     string
		position string
		seq      int
	}{
		{"empty string", `""`, 3},
		{"null", `null`, 3},
		{"numeric string", `"2"`, 2},
		{"padded string", `" 1 "`, 1},
		{"fraction", `1.5`, 3},
		{"integral float", `2.0`, 2},
		{"word", `"first"`, 3},
		{"bool", `true`, 3},
		{"zero", `0`, 3},
		{"negative", `"-4"`, 3},
		{"beyond end", `40`, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newRouter(t)
			createVideo(t, h, 1, nil)
			createVideo(t, h, 1, nil)

			body := fmt.Sprintf(`{"item": {"video_sub_group_id": 1, "title": "new"}, "position": %s}`, tt.position)
			rec := do(t, h, http.MethodPost, "/catalog/video/items", body)
			require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
			item := decodeItem(t, rec)
			assert.Equal(t, tt.seq, item.Seq)
			assert.Len(t, siblingIDs(t, h, "video", item.ID), 3)
		})
	}
}

func TestCatalogHandlerMoveLenientPosition(t *testing.T) {
	h := newRouter(t)
	a := createVideo(t, h, 1, nil)
	b := createVideo(t, h, 1, nil)
	c := createVideo(t, h, 1, nil)

	path := fmt.Sprintf("/catalog/video/items/%d/position", c.ID)

	rec := do(t, h, http.MethodPut, path, `{"position": "1"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 1, decodeItem(t, rec).Seq)
	assert.Equal(t, []int64{c.ID, a.ID, b.ID}, siblingIDs(t, h, "video", a.ID))

	// out of range targets clamp
	rec = do(t, h, http.MethodPut, path, `{"position": 99}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 3, decodeItem(t, rec).Seq)

	rec = do(t, h, http.MethodPut, path, `{"position": -2}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 1, decodeItem(t, rec).Seq)

	for _, body := range []string{`{"position": ""}`, `{"position": "top"}`, `{"position": 1.5}`, `{"position": null}`} {
		rec = do(t, h, http.MethodPut, path, body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}

func TestParsePosition(t *testing.T) {
	tests := []struct {
		in   string
		want *int
	}{
		{`3`, intPtr(3)},
		{`"3"`, intPtr(3)},
		{`3.0`, intPtr(3)},
		{`1e1`, intPtr(10)},
		{`-1`, intPtr(-1)},
		{`""`, nil},
		{`"  "`, nil},
		{`null`, nil},
		{`"null"`, nil},
		{`2.5`, nil},
		{`"NaN"`, nil},
		{`"Inf"`, nil},
		{`1e40`, nil},
		{`[1]`, nil},
		{`{}`, nil},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, parsePosition([]byte(tt.in)))
		})
	}
}

func intPtr(v int) *int { return &v }

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, statusFor(fmt.Errorf("x: %w", domain.ErrItemNotInScope)))
	assert.Equal(t, http.StatusBadRequest, statusFor(domain.ErrScopeChange))
	assert.Equal(t, http.StatusTooManyRequests, statusFor(domain.ErrRateLimited))
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.New("db down")))
}
