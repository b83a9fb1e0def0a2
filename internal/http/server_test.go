package httpapi

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/denisok6893-rgb/property-ranking/internal/domain"
	"github.com/denisok6893-rgb/property-ranking/internal/matching"
	"github.com/denisok6893-rgb/property-ranking/internal/optimizer"
	"github.com/denisok6893-rgb/property-ranking/internal/storage"
)

func newTestServer(t *testing.T, srv *Server) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)
	return ts
}

// doJSON sends body (if any) as JSON and returns status and raw response body.
func doJSON(t *testing.T, method, url string, body any) (int, []byte) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		if s, ok := body.(string); ok {
			rd = strings.NewReader(s)
		} else {
			b, err := json.Marshal(body)
			require.NoError(t, err)
			rd = bytes.NewReader(b)
		}
	}
	req, err := http.NewRequest(method, url, rd)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, raw
}

func decode[T any](t *testing.T, raw []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v), string(raw))
	return v
}

func openTestRepo(t *testing.T) *SQLiteListingsRepo {
	t.Helper()
	st, err := storage.OpenSQLite(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.EnsureSchema(context.Background()))
	return &SQLiteListingsRepo{Store: st}
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, NewServer(nil, nil, nil, nil))

	status, raw := doJSON(t, http.MethodGet, ts.URL+"/health", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"status":"ok"}`, string(raw))
}

func TestGETListings_FiltersAndSort(t *testing.T) {
	repos := map[string]func(t *testing.T) ListingsRepo{
		"memory": func(*testing.T) ListingsRepo { return NewMemoryListingsRepo(nil) },
		"sqlite": func(t *testing.T) ListingsRepo { return openTestRepo(t) },
	}

	for name, newRepo := range repos {
		t.Run(name, func(t *testing.T) {
			ts := newTestServer(t, NewServer(nil, nil, newRepo(t), nil))

			post := func(body map[string]any) {
				status, raw := doJSON(t, http.MethodPost, ts.URL+"/listings", body)
				require.Equal(t, http.StatusCreated, status, string(raw))
			}
			post(map[string]any{"title": "A", "municipality": "Valencia", "price": 320000, "bedrooms": 3, "typology": "t3"})
			post(map[string]any{"title": "B", "municipality": "valencia", "parish": "Centro", "price": 450000, "bedrooms": 4})
			post(map[string]any{"title": "C", "municipality": "Madrid", "price": 500000, "bedrooms": 4})
			post(map[string]any{"title": "D", "municipality": "Valencia", "price": 480000, "bedrooms": 4})

			status, raw := doJSON(t, http.MethodGet,
				ts.URL+"/listings?location=VALENCIA&min_price=400000&min_bedrooms=4&sort=price_desc&limit=20&offset=0", nil)
			require.Equal(t, http.StatusOK, status)

			got := decode[ListingsListResponse](t, raw)
			assert.Equal(t, 2, got.Total)
			require.Len(t, got.Items, 2)
			assert.Equal(t, "D", got.Items[0].Title)
			assert.Equal(t, "B", got.Items[1].Title)

			status, raw = doJSON(t, http.MethodGet, ts.URL+"/listings?typology=T3", nil)
			require.Equal(t, http.StatusOK, status)
			got = decode[ListingsListResponse](t, raw)
			require.Len(t, got.Items, 1)
			assert.Equal(t, "A", got.Items[0].Title, "typology is stored upper-cased")

			status, raw = doJSON(t, http.MethodGet, ts.URL+"/listings?limit=1&offset=1", nil)
			require.Equal(t, http.StatusOK, status)
			got = decode[ListingsListResponse](t, raw)
			assert.Equal(t, 4, got.Total)
			assert.Equal(t, 1, got.Limit)
			assert.Len(t, got.Items, 1)
		})
	}
}

func TestListings_CreateGetDelete(t *testing.T) {
	ts := newTestServer(t, NewServer(nil, nil, nil, nil))

	status, raw := doJSON(t, http.MethodPost, ts.URL+"/listings", map[string]any{
		"id": "pt-1", "municipality": "Lisboa", "typology": "T2", "price": 300000, "latitude": 38.72, "longitude": -9.14,
	})
	require.Equal(t, http.StatusCreated, status, string(raw))
	created := decode[domain.Listing](t, raw)
	assert.Equal(t, "pt-1", created.ID)
	assert.False(t, created.FirstSeenAt.IsZero(), "first_seen_at defaults to now")
	assert.Equal(t, created.FirstSeenAt, created.LastSeenAt)

	status, _ = doJSON(t, http.MethodPost, ts.URL+"/listings", map[string]any{"id": "pt-1", "municipality": "Porto", "price": 1})
	assert.Equal(t, http.StatusConflict, status)

	status, raw = doJSON(t, http.MethodPost, ts.URL+"/listings", map[string]any{"municipality": "Porto", "price": 200000})
	require.Equal(t, http.StatusCreated, status)
	assert.NotEmpty(t, decode[domain.Listing](t, raw).ID, "id is generated")

	status, raw = doJSON(t, http.MethodGet, ts.URL+"/listings/pt-1", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Lisboa", decode[domain.Listing](t, raw).Municipality)

	status, _ = doJSON(t, http.MethodDelete, ts.URL+"/listings/pt-1", nil)
	assert.Equal(t, http.StatusOK, status)

	status, raw = doJSON(t, http.MethodGet, ts.URL+"/listings/pt-1", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.JSONEq(t, `{"error":"not_found"}`, string(raw))

	status, _ = doJSON(t, http.MethodDelete, ts.URL+"/listings/pt-1", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestListings_CreateValidation(t *testing.T) {
	ts := newTestServer(t, NewServer(nil, nil, nil, nil))

	tests := []struct {
		name string
		body any
	}{
		{"bad json", `{"price":`},
		{"no location", map[string]any{"price": 100000}},
		{"no price", map[string]any{"municipality": "Lisboa"}},
		{"latitude out of range", map[string]any{"municipality": "Lisboa", "price": 1, "latitude": 120.0, "longitude": 1.0}},
		{"availability out of range", map[string]any{"parish": "Arroios", "price": 1, "availability_probability": 1.5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, raw := doJSON(t, http.MethodPost, ts.URL+"/listings", tt.body)
			assert.Equal(t, http.StatusBadRequest, status, string(raw))
			assert.Contains(t, string(raw), `"error"`)
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, NewServer(nil, nil, nil, nil))

	status, _ := doJSON(t, http.MethodGet, ts.URL+"/listings/missing", nil)
	require.Equal(t, http.StatusNotFound, status)

	status, raw := doJSON(t, http.MethodGet, ts.URL+"/metrics", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(raw), `property_ranking_api_requests_total{method="GET",route="/listings/{id}",status="404"}`)
}

func TestSQLiteListingsRepo_NilStore(t *testing.T) {
	var repo *SQLiteListingsRepo
	_, err := repo.All(context.Background())
	assert.Error(t, err)

	ts := newTestServer(t, NewServer(nil, nil, &SQLiteListingsRepo{}, nil))
	status, raw := doJSON(t, http.MethodGet, ts.URL+"/listings", nil)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.JSONEq(t, `{"error":"internal_error"}`, string(raw))
}

func TestMemoryListingsRepo_AllIsACopy(t *testing.T) {
	repo := NewMemoryListingsRepo([]domain.Listing{{ID: "a"}, {ID: "b"}})
	all, err := repo.All(context.Background())
	require.NoError(t, err)
	all[0].ID = "changed"

	got, err := repo.Get(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, "a", got.ID)
}

func newTrainableServer(t *testing.T, minSamples int) *Server {
	t.Helper()
	o, err := optimizer.New(optimizer.WithMinSamples(minSamples))
	require.NoError(t, err)
	return NewServer(nil, optimizer.NewGuard(o), nil, nil)
}

func TestWeights_GetPut(t *testing.T) {
	ts := newTestServer(t, NewServer(nil, nil, nil, nil))

	status, raw := doJSON(t, http.MethodGet, ts.URL+"/weights", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, matching.DefaultWeights(), decode[domain.WeightConfig](t, raw))

	status, raw = doJSON(t, http.MethodPut, ts.URL+"/weights", domain.WeightConfig{Compatibility: 0.5, Behavior: 0.3, Temporal: 0.3})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, string(raw), "sum to 1.0")

	status, _ = doJSON(t, http.MethodPut, ts.URL+"/weights", domain.WeightConfig{Compatibility: 1.5, Behavior: -0.5})
	assert.Equal(t, http.StatusBadRequest, status)

	next := domain.WeightConfig{Compatibility: 0.6, Behavior: 0.2, Temporal: 0.2}
	status, _ = doJSON(t, http.MethodPut, ts.URL+"/weights", next)
	require.Equal(t, http.StatusOK, status)

	status, raw = doJSON(t, http.MethodGet, ts.URL+"/weights", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, next, decode[domain.WeightConfig](t, raw))
}
