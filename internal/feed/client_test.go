package feed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/storm-alert-triage/internal/config"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testClient(baseURL string, chunkSize int) *Client {
	return NewClient(&config.Config{
		FeedBaseURL:            baseURL,
		FeedUserAgent:          "test-agent",
		FeedChunkSize:          chunkSize,
		FeedTimeout:            2 * time.Second,
		ReportLookbackHours:    48,
		ReportFetchConcurrency: 2,
	}, discardLogger())
}

func alertBody(ids ...string) string {
	body := `{"features":[`
	for i, id := range ids {
		if i > 0 {
			body += ","
		}
		body += fmt.Sprintf(`{"properties":{"id":"%s","event":"Severe Thunderstorm Warning"}}`, id)
	}
	return body + `]}`
}

func TestFetchActive(t *testing.T) {
	t.Run("sends identity headers and area filter", func(t *testing.T) {
		var gotUA, gotAccept, gotArea string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotUA = r.Header.Get("User-Agent")
			gotAccept = r.Header.Get("Accept")
			gotArea = r.URL.Query().Get("area")
			fmt.Fprint(w, alertBody("alert-1"))
		}))
		defer srv.Close()

		features, err := testClient(srv.URL, 5).FetchActive(context.Background(), []string{"TX", "OK"})
		require.NoError(t, err)
		require.Len(t, features, 1)
		assert.Equal(t, "test-agent", gotUA)
		assert.Equal(t, "application/geo+json", gotAccept)
		assert.Equal(t, "TX,OK", gotArea)
	})

	t.Run("chunks regions and dedups by id, first chunk wins", func(t *testing.T) {
		var requests atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requests.Add(1)
			switch r.URL.Query().Get("area") {
			case "TX":
				fmt.Fprint(w, alertBody("alert-shared", "alert-tx"))
			case "OK":
				fmt.Fprint(w, alertBody("alert-shared", "alert-ok"))
			default:
				fmt.Fprint(w, alertBody())
			}
		}))
		defer srv.Close()

		features, err := testClient(srv.URL, 1).FetchActive(context.Background(), []string{"TX", "OK"})
		require.NoError(t, err)
		assert.Equal(t, int32(2), requests.Load())
		require.Len(t, features, 3)
		assert.Equal(t, "alert-shared", features[0].Properties.ID)
		assert.Equal(t, "alert-tx", features[1].Properties.ID)
		assert.Equal(t, "alert-ok", features[2].Properties.ID)
	})

	t.Run("retries server errors with backoff", func(t *testing.T) {
		var attempts atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if attempts.Add(1) == 1 {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			fmt.Fprint(w, alertBody("alert-1"))
		}))
		defer srv.Close()

		features, err := testClient(srv.URL, 5).FetchActive(context.Background(), []string{"TX"})
		require.NoError(t, err)
		assert.Len(t, features, 1)
		assert.Equal(t, int32(2), attempts.Load())
	})

	t.Run("client errors fail without retrying", func(t *testing.T) {
		var attempts atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			attempts.Add(1)
			w.WriteHeader(http.StatusBadRequest)
		}))
		defer srv.Close()

		_, err := testClient(srv.URL, 5).FetchActive(context.Background(), []string{"TX"})
		require.Error(t, err)
		assert.Equal(t, int32(1), attempts.Load())
	})

	t.Run("no regions is an error", func(t *testing.T) {
		_, err := testClient("http://unused", 5).FetchActive(context.Background(), nil)
		assert.Error(t, err)
	})
}

func TestChunkRegions(t *testing.T) {
	assert.Equal(t, [][]string{{"TX", "OK"}, {"KS"}}, chunkRegions([]string{"TX", "OK", "KS"}, 2))
	assert.Equal(t, [][]string{{"TX"}}, chunkRegions([]string{"TX"}, 5))
	// Non-positive size degrades to one region per chunk.
	assert.Equal(t, [][]string{{"TX"}, {"OK"}}, chunkRegions([]string{"TX", "OK"}, 0))
	assert.Empty(t, chunkRegions(nil, 5))
}

func TestFetchZoneGeometry(t *testing.T) {
	geometry := `{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,0]]]}`

	t.Run("forecast zone resolves directly", func(t *testing.T) {
		var paths []string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			paths = append(paths, r.URL.Path)
			fmt.Fprintf(w, `{"geometry":%s}`, geometry)
		}))
		defer srv.Close()

		geom, err := testClient(srv.URL, 5).FetchZoneGeometry(context.Background(), "TXZ123")
		require.NoError(t, err)
		assert.JSONEq(t, geometry, string(geom))
		assert.Equal(t, []string{"/zones/forecast/TXZ123"}, paths)
	})

	t.Run("missing forecast zone falls back to county", func(t *testing.T) {
		var paths []string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			paths = append(paths, r.URL.Path)
			if len(paths) == 1 {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			fmt.Fprintf(w, `{"geometry":%s}`, geometry)
		}))
		defer srv.Close()

		geom, err := testClient(srv.URL, 5).FetchZoneGeometry(context.Background(), "TXZ123")
		require.NoError(t, err)
		assert.JSONEq(t, geometry, string(geom))
		assert.Equal(t, []string{"/zones/forecast/TXZ123", "/zones/county/TXZ123"}, paths)
	})

	t.Run("county code skips the forecast path", func(t *testing.T) {
		var paths []string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			paths = append(paths, r.URL.Path)
			fmt.Fprintf(w, `{"geometry":%s}`, geometry)
		}))
		defer srv.Close()

		_, err := testClient(srv.URL, 5).FetchZoneGeometry(context.Background(), "TXC439")
		require.NoError(t, err)
		assert.Equal(t, []string{"/zones/county/TXC439"}, paths)
	})

	t.Run("zone missing everywhere is a miss, not an error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer srv.Close()

		geom, err := testClient(srv.URL, 5).FetchZoneGeometry(context.Background(), "TXZ123")
		require.NoError(t, err)
		assert.Nil(t, geom)
	})

	t.Run("null geometry is a miss", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"geometry":null}`)
		}))
		defer srv.Close()

		geom, err := testClient(srv.URL, 5).FetchZoneGeometry(context.Background(), "TXZ123")
		require.NoError(t, err)
		assert.Nil(t, geom)
	})

	t.Run("short code is ignored", func(t *testing.T) {
		geom, err := testClient("http://unused", 5).FetchZoneGeometry(context.Background(), "TX")
		require.NoError(t, err)
		assert.Nil(t, geom)
	})
}

func TestFetchRecentReports(t *testing.T) {
	recent := time.Now().UTC().Add(-time.Hour).Format(time.RFC3339)
	stale := time.Now().UTC().Add(-80 * time.Hour).Format(time.RFC3339)

	t.Run("fetches recent bulletins and skips failures", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/products/types/LSR":
				fmt.Fprintf(w, `{"@graph":[
					{"id":"lsr-1","issuanceTime":"%s"},
					{"id":"lsr-2","issuanceTime":"%s"},
					{"id":"lsr-old","issuanceTime":"%s"},
					{"id":"lsr-empty","issuanceTime":"%s"}
				]}`, recent, recent, stale, recent)
			case "/products/lsr-1":
				fmt.Fprintf(w, `{"id":"lsr-1","issuanceTime":"%s","productText":"HAIL 1.75 IN"}`, recent)
			case "/products/lsr-2":
				w.WriteHeader(http.StatusInternalServerError)
			case "/products/lsr-empty":
				fmt.Fprintf(w, `{"id":"lsr-empty","issuanceTime":"%s","productText":"   "}`, recent)
			default:
				w.WriteHeader(http.StatusNotFound)
			}
		}))
		defer srv.Close()

		bulletins, skipped, err := testClient(srv.URL, 5).FetchRecentReports(context.Background())
		require.NoError(t, err)
		require.Len(t, bulletins, 1)
		assert.Equal(t, "lsr-1", bulletins[0].ID)
		assert.Equal(t, "HAIL 1.75 IN", bulletins[0].Text)
		require.NotNil(t, bulletins[0].IssuedAt)
		assert.Equal(t, 2, skipped)
	})

	t.Run("listing failure is fatal", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
		}))
		defer srv.Close()

		_, _, err := testClient(srv.URL, 5).FetchRecentReports(context.Background())
		assert.Error(t, err)
	})

	t.Run("id derived from @id when id is absent", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/products/types/LSR":
				fmt.Fprintf(w, `{"@graph":[{"@id":"https://feed.example/products/lsr-9","issuanceTime":"%s"}]}`, recent)
			case "/products/lsr-9":
				fmt.Fprintf(w, `{"issuanceTime":"%s","productText":"TSTM WND GST 70 MPH"}`, recent)
			default:
				w.WriteHeader(http.StatusNotFound)
			}
		}))
		defer srv.Close()

		bulletins, skipped, err := testClient(srv.URL, 5).FetchRecentReports(context.Background())
		require.NoError(t, err)
		assert.Zero(t, skipped)
		require.Len(t, bulletins, 1)
		assert.Equal(t, "lsr-9", bulletins[0].ID)
	})
}
