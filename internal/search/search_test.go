package search

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zombar/textdetector/internal/database"
	"github.com/zombar/textdetector/internal/models"
)

// fakeCluster answers the handful of Elasticsearch endpoints the index uses
type fakeCluster struct {
	mu        sync.Mutex
	exists    bool
	created   string
	docs      map[string]map[string]any
	lastQuery map[string]any
	fail      bool
}

func newFakeCluster(t *testing.T) (*fakeCluster, *Index) {
	t.Helper()
	fc := &fakeCluster{docs: map[string]map[string]any{}}
	server := httptest.NewServer(http.HandlerFunc(fc.serve))
	t.Cleanup(server.Close)

	idx, err := New(Config{Addresses: []string{server.URL}, Index: "preds"})
	require.NoError(t, err)
	idx.logger = quiet()
	return fc, idx
}

func (fc *fakeCluster) serve(w http.ResponseWriter, r *http.Request) {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	// The v8 client refuses to talk to anything that is not Elasticsearch
	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")

	if fc.fail {
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, `{"error":{"type":"boom","reason":"cluster on fire"},"status":500}`)
		return
	}

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	switch {
	case r.Method == http.MethodHead && len(parts) == 1:
		if fc.exists {
			w.WriteHeader(http.StatusOK)
		} else {
			w.WriteHeader(http.StatusNotFound)
		}

	case r.Method == http.MethodPut && len(parts) == 1:
		body, _ := io.ReadAll(r.Body)
		fc.created = string(body)
		fc.exists = true
		io.WriteString(w, `{"acknowledged":true}`)

	case len(parts) == 3 && parts[1] == "_doc":
		var doc map[string]any
		json.NewDecoder(r.Body).Decode(&doc)
		fc.docs[parts[2]] = doc
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{"result":"created"}`)

	case parts[len(parts)-1] == "_bulk":
		scanner := bufio.NewScanner(r.Body)
		scanner.Buffer(make([]byte, 1<<20), 1<<20)
		for scanner.Scan() {
			var action map[string]map[string]string
			json.Unmarshal(scanner.Bytes(), &action)
			if !scanner.Scan() {
				break
			}
			var doc map[string]any
			json.Unmarshal(scanner.Bytes(), &doc)
			fc.docs[action["index"]["_id"]] = doc
		}
		io.WriteString(w, `{"errors":false,"items":[]}`)

	case parts[len(parts)-1] == "_search":
		json.NewDecoder(r.Body).Decode(&fc.lastQuery)
		hits := []map[string]any{}
		for _, doc := range fc.docs {
			hits = append(hits, map[string]any{"_id": doc["id"], "_score": 1.5, "_source": doc})
		}
		json.NewEncoder(w).Encode(map[string]any{
			"hits": map[string]any{
				"total": map[string]any{"value": len(hits), "relation": "eq"},
				"hits":  hits,
			},
		})

	default:
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, `{"error":{"type":"not_found","reason":"no route"}}`)
	}
}

func prediction(id, text, outcome string) *models.Prediction {
	o, _ := models.ParseOutcome(outcome)
	return &models.Prediction{ID: id, Text: text, Outcome: o, Score: 0.7, Remark: "r", CreatedAt: time.Now().UTC()}
}

func TestEnsureIndexCreatesOnce(t *testing.T) {
	fc, idx := newFakeCluster(t)

	require.NoError(t, idx.EnsureIndex(context.Background()))
	assert.Contains(t, fc.created, `"mappings"`)

	fc.created = ""
	require.NoError(t, idx.EnsureIndex(context.Background()))
	assert.Empty(t, fc.created, "existing index is left alone")
}

func TestIndexAndSearch(t *testing.T) {
	fc, idx := newFakeCluster(t)
	ctx := context.Background()

	require.NoError(t, idx.IndexPrediction(ctx, prediction("p-1", "lol my dog", "human")))
	require.NoError(t, idx.IndexPredictions(ctx, []*models.Prediction{
		prediction("p-2", "It is important to note", "ai"),
		prediction("p-3", "In conclusion", "ai"),
	}))
	assert.Len(t, fc.docs, 3)
	assert.Equal(t, "human", fc.docs["p-1"]["prediction"])

	res, err := idx.Search(ctx, Query{Text: "dog", Outcome: "human", Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Total)
	require.Len(t, res.Hits, 3)
	assert.Equal(t, 1.5, res.Hits[0].Relevance)
	assert.NotEmpty(t, res.Hits[0].ID)

	query := fc.lastQuery["query"].(map[string]any)["bool"].(map[string]any)
	assert.Contains(t, query, "filter", "outcome becomes a term filter")
}

func TestSearchEmptyQuery(t *testing.T) {
	_, idx := newFakeCluster(t)

	_, err := idx.Search(context.Background(), Query{Text: "  "})
	assert.True(t, errors.Is(err, ErrEmptyQuery))
}

func TestClusterErrors(t *testing.T) {
	fc, idx := newFakeCluster(t)
	fc.fail = true
	ctx := context.Background()

	err := idx.IndexPrediction(ctx, prediction("p-1", "text", "ai"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cluster on fire")

	_, err = idx.Search(ctx, Query{Text: "text", Limit: 5})
	assert.Error(t, err)

	assert.Error(t, idx.EnsureIndex(ctx))
}

func TestIndexPredictionsEmpty(t *testing.T) {
	fc, idx := newFakeCluster(t)
	require.NoError(t, idx.IndexPredictions(context.Background(), nil))
	assert.Empty(t, fc.docs)
}

func TestIndexedStore(t *testing.T) {
	fc, idx := newFakeCluster(t)
	ctx := context.Background()

	db, err := database.New(filepath.Join(t.TempDir(), "search.db"))
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.Migrate())

	store := NewIndexedStore(db, idx, quiet())
	require.NoError(t, store.SavePrediction(ctx, prediction("p-1", "hello", "human")))
	require.NoError(t, store.SavePredictions(ctx, []*models.Prediction{prediction("p-2", "world", "ai")}))

	_, err = db.GetPrediction(ctx, "p-2")
	require.NoError(t, err)
	assert.Len(t, fc.docs, 2)

	// the database stays authoritative when the cluster is down
	fc.fail = true
	require.NoError(t, store.SavePrediction(ctx, prediction("p-3", "again", "ai")))
	_, err = db.GetPrediction(ctx, "p-3")
	require.NoError(t, err)
}
