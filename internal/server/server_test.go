package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/SentimentCrawler/internal/aggregate"
	"github.com/TobiSchelling/SentimentCrawler/internal/database"
	"github.com/TobiSchelling/SentimentCrawler/internal/metrics"
	"github.com/TobiSchelling/SentimentCrawler/internal/posts"
)

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"), nil)
	require.NoError(t, err, "failed to open test db")
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestServer(t *testing.T, db *database.DB) http.Handler {
	t.Helper()
	srv, err := New(db, nil)
	require.NoError(t, err, "failed to create server")
	return srv.Handler()
}

func saveSampleRun(t *testing.T, db *database.DB) int64 {
	t.Helper()
	report := aggregate.NewReport([]posts.ClassifiedPost{
		{RawText: "I love Colapinto! #f1", NormalizedText: "i love colapinto!", Label: posts.Positive},
		{RawText: "http://x.co terrible race @driver", NormalizedText: "terrible race", Label: posts.Negative},
		{RawText: "ok", NormalizedText: "ok", Label: posts.Neutral},
		{RawText: "gran carrera", NormalizedText: "gran carrera", Label: posts.Positive},
	})
	id, err := db.SaveRun(database.RunMeta{
		Query:     "Colapinto",
		Language:  "es",
		Source:    "twitter",
		Scorer:    "lexicon",
		StartedAt: time.Date(2026, 2, 6, 14, 5, 0, 0, time.UTC),
		Duration:  800 * time.Millisecond,
	}, report, nil)
	require.NoError(t, err)
	return id
}

func get(h http.Handler, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestIndexEmpty(t *testing.T) {
	rec := get(newTestServer(t, openTestDB(t)), "/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "No runs yet")
}

func TestIndexListsRuns(t *testing.T) {
	db := openTestDB(t)
	id := saveSampleRun(t, db)

	rec := get(newTestServer(t, db), "/")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, fmt.Sprintf(`href="/run/%d"`, id))
	assert.Contains(t, body, "Colapinto")
	assert.Contains(t, body, "Feb 06, 2026 14:05")
	assert.Contains(t, body, "1 runs over 1 queries")
}

func TestUnknownPathIs404(t *testing.T) {
	rec := get(newTestServer(t, openTestDB(t)), "/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRunPage(t *testing.T) {
	db := openTestDB(t)
	id := saveSampleRun(t, db)

	rec := get(newTestServer(t, db), fmt.Sprintf("/run/%d", id))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()

	// chart bars sized by share
	assert.Contains(t, body, `class="bar positive" style="width: 50.0%"`)
	assert.Contains(t, body, `class="bar neutral" style="width: 25.0%"`)
	assert.Contains(t, body, `class="bar negative" style="width: 25.0%"`)

	// goldmark renders the summary table
	assert.Contains(t, body, "<table>")
	assert.Contains(t, body, "<strong>positive</strong>")

	// post table keeps order and shows both texts
	assert.Contains(t, body, "terrible race")
	assert.Contains(t, body, "I love Colapinto! #f1")
	assert.Less(t, strings.Index(body, "I love Colapinto!"), strings.Index(body, "gran carrera"))
}

func TestRunPageMissing(t *testing.T) {
	rec := get(newTestServer(t, openTestDB(t)), "/run/999")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Run not found")
}

func TestRunPageBadID(t *testing.T) {
	rec := get(newTestServer(t, openTestDB(t)), "/run/abc")
	assert.Equal(t, http.StatusFound, rec.Code)
}

func TestAPIRun(t *testing.T) {
	db := openTestDB(t)
	id := saveSampleRun(t, db)

	rec := get(newTestServer(t, db), fmt.Sprintf("/api/runs/%d", id))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var got database.RunDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, id, got.ID)
	assert.Equal(t, 2, got.Positive)
	require.Len(t, got.Posts, 4)
	assert.Equal(t, posts.Negative, got.Posts[1].Label)
}

func TestAPIRunErrors(t *testing.T) {
	h := newTestServer(t, openTestDB(t))

	assert.Equal(t, http.StatusNotFound, get(h, "/api/runs/7").Code)
	assert.Equal(t, http.StatusBadRequest, get(h, "/api/runs/x").Code)
	assert.Equal(t, http.StatusBadRequest, get(h, "/api/runs?limit=-1").Code)
}

func TestAPIRuns(t *testing.T) {
	db := openTestDB(t)
	h := newTestServer(t, db)

	rec := get(h, "/api/runs")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())

	saveSampleRun(t, db)
	saveSampleRun(t, db)

	var runs []database.Run
	rec = get(h, "/api/runs?limit=1")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	assert.Len(t, runs, 1)

	rec = get(h, "/api/runs?query=Verstappen")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	assert.Empty(t, runs)
}

func TestMetricsEndpoint(t *testing.T) {
	metrics.PostsFetched.Add(0)
	rec := get(newTestServer(t, openTestDB(t)), "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "sentimentcrawler_posts_fetched_total")
}

func TestStaticCSS(t *testing.T) {
	rec := get(newTestServer(t, openTestDB(t)), "/static/style.css")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), ".bar-track")
}
