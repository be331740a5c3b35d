package catalog_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/invoice-assistant/internal/catalog"
	"github.com/noah-isme/invoice-assistant/internal/events"
)

type countingSource struct {
	records []catalog.Record
	err     error
	calls   atomic.Int32
}

func (s *countingSource) Load(context.Context) ([]catalog.Record, error) {
	s.calls.Add(1)
	return s.records, s.err
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestServiceLoadsOnceThroughCache(t *testing.T) {
	mr, client := newRedis(t)
	src := &countingSource{records: sampleRecords()}
	svc, err := catalog.NewService(catalog.ServiceConfig{
		Source: src,
		Cache:  catalog.NewCache(client, time.Minute),
	})
	require.NoError(t, err)

	ctx := context.Background()
	records, err := svc.Records(ctx)
	require.NoError(t, err)
	require.Len(t, records, 4)
	require.True(t, mr.Exists("catalog:default"))

	_, err = svc.Records(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, src.calls.Load())

	// A fresh service with the same cache never touches the source.
	other := &countingSource{err: errors.New("source down")}
	svc2, err := catalog.NewService(catalog.ServiceConfig{Source: other, Cache: catalog.NewCache(client, time.Minute)})
	require.NoError(t, err)
	cached, err := svc2.Records(ctx)
	require.NoError(t, err)
	require.Len(t, cached, 4)
	require.EqualValues(t, 0, other.calls.Load())

	product, ok := svc2.Lookup(cached, "router")
	require.True(t, ok)
	require.Equal(t, "2499.5", product.UnitPrice.String())
	require.Equal(t, "12", product.TaxRate.String())
}

func TestServiceReloadRefreshesCache(t *testing.T) {
	_, client := newRedis(t)
	src := &countingSource{records: sampleRecords()}
	svc, err := catalog.NewService(catalog.ServiceConfig{Source: src, Cache: catalog.NewCache(client, time.Minute)})
	require.NoError(t, err)

	ctx := context.Background()
	_, err = svc.Records(ctx)
	require.NoError(t, err)

	src.records = []catalog.Record{{"name": "Only", "price": 1}}
	records, err := svc.Reload(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.EqualValues(t, 2, src.calls.Load())

	current, err := svc.Records(ctx)
	require.NoError(t, err)
	require.Equal(t, "Only", current[0].DisplayName())
}

func TestServiceRejectsUnusableCatalog(t *testing.T) {
	svc, err := catalog.NewService(catalog.ServiceConfig{Source: &countingSource{}})
	require.NoError(t, err)
	_, err = svc.Records(context.Background())
	require.ErrorIs(t, err, catalog.ErrEmptyCatalog)

	_, err = catalog.NewService(catalog.ServiceConfig{})
	require.Error(t, err)
}

func TestServiceFor(t *testing.T) {
	svc, err := catalog.NewService(catalog.ServiceConfig{Source: &countingSource{records: sampleRecords()}})
	require.NoError(t, err)

	custom := []catalog.Record{{"name": "Custom", "price": 5}}
	got, err := svc.For(context.Background(), custom)
	require.NoError(t, err)
	require.Equal(t, custom, got)

	got, err = svc.For(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, got, 4)
}

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "product_data.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"name":"Camera","price":1500,"gst_rate":18}]`), 0o600))

	records, err := catalog.FileSource{Path: path}.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)

	_, err = catalog.FileSource{Path: filepath.Join(t.TempDir(), "missing.json")}.Load(context.Background())
	require.Error(t, err)
}

func TestCatalogHandlers(t *testing.T) {
	svc, err := catalog.NewService(catalog.ServiceConfig{Source: &countingSource{records: sampleRecords()}})
	require.NoError(t, err)
	handler := catalog.NewHandler(catalog.HandlerConfig{Service: svc})

	t.Run("list", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.List(rec, httptest.NewRequest(http.MethodGet, "/api/v1/catalog", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		var body struct {
			Data []struct {
				Name  string      `json:"name"`
				Price json.Number `json:"price"`
			} `json:"data"`
			Pagination struct {
				TotalItems int `json:"total_items"`
			} `json:"pagination"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.Len(t, body.Data, 4)
		require.Equal(t, "Security Camera", body.Data[0].Name)
		require.Equal(t, json.Number("1500.00"), body.Data[0].Price)
		require.Equal(t, 4, body.Pagination.TotalItems)
	})

	t.Run("lookup", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.Lookup(rec, httptest.NewRequest(http.MethodGet, "/api/v1/catalog/lookup?q=mount", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		require.Contains(t, rec.Body.String(), `"Camera Mount"`)
	})

	t.Run("lookup miss", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.Lookup(rec, httptest.NewRequest(http.MethodGet, "/api/v1/catalog/lookup?q=toaster", nil))
		require.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("lookup requires q", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.Lookup(rec, httptest.NewRequest(http.MethodGet, "/api/v1/catalog/lookup", nil))
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Contains(t, rec.Body.String(), "BAD_REQUEST")
	})

	t.Run("unavailable catalog", func(t *testing.T) {
		empty, err := catalog.NewService(catalog.ServiceConfig{Source: &countingSource{}})
		require.NoError(t, err)
		rec := httptest.NewRecorder()
		catalog.NewHandler(catalog.HandlerConfig{Service: empty}).List(rec, httptest.NewRequest(http.MethodGet, "/api/v1/catalog", nil))
		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
		require.Contains(t, rec.Body.String(), "CATALOG_UNAVAILABLE")
	})
}

func TestReloadHandlerEmitsEvent(t *testing.T) {
	src := &countingSource{records: sampleRecords()}
	svc, err := catalog.NewService(catalog.ServiceConfig{Source: src})
	require.NoError(t, err)
	store := events.NewMemoryStore(0)
	handler := catalog.NewHandler(catalog.HandlerConfig{Service: svc, Events: &events.Bus{Store: store}})

	rec := httptest.NewRecorder()
	handler.Reload(rec, httptest.NewRequest(http.MethodPost, "/api/v1/catalog/reload", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"product_count":4`)

	emitted := store.Events()
	require.Len(t, emitted, 1)
	require.Equal(t, events.TopicCatalogReloaded, emitted[0].Topic)
	require.Contains(t, string(emitted[0].Payload), "Wireless Router")
}
