package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cory-johannsen/dungeonrun/internal/api"
	"github.com/cory-johannsen/dungeonrun/internal/config"
	"github.com/cory-johannsen/dungeonrun/internal/content"
	"github.com/cory-johannsen/dungeonrun/internal/game/combatlog"
	"github.com/cory-johannsen/dungeonrun/internal/game/dice"
	"github.com/cory-johannsen/dungeonrun/internal/game/run"
	"github.com/cory-johannsen/dungeonrun/internal/storage/postgres"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// memArchive is an in-memory Archive.
type memArchive struct {
	mu   sync.Mutex
	recs map[string]postgres.RunRecord
}

func newMemArchive() *memArchive {
	return &memArchive{recs: make(map[string]postgres.RunRecord)}
}

func (m *memArchive) Save(_ context.Context, rec postgres.RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs[rec.Result.RunID] = rec
	return nil
}

func (m *memArchive) Get(_ context.Context, id string) (postgres.RunRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recs[id]
	if !ok {
		return postgres.RunRecord{}, postgres.ErrRunNotFound
	}
	return rec, nil
}

func (m *memArchive) List(_ context.Context, dungeonID string, limit int) ([]postgres.RunSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []postgres.RunSummary{}
	for id, rec := range m.recs {
		if dungeonID != "" && rec.DungeonID != dungeonID {
			continue
		}
		out = append(out, postgres.RunSummary{ID: id, DungeonID: rec.DungeonID, KeyLevel: rec.KeyLevel, Success: rec.Result.Success})
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *memArchive) HighestCompletedKey(context.Context, string) (int, error) { return 0, nil }

func (m *memArchive) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.recs)
}

type fixture struct {
	reg     *api.Registry
	handler http.Handler
}

// newFixture builds a server over the shipped content. tickDelay 0 runs in
// simulation mode.
func newFixture(t *testing.T, tickDelay time.Duration, archive api.Archive) fixture {
	t.Helper()
	bundle, err := content.Load("../../content", content.Options{}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(bundle.Close)

	cfg := config.Default()
	cfg.Simulation.TickDelay = tickDelay
	reg := api.NewRegistry(cfg, bundle.RunDeps(zap.NewNop(), dice.NewSeededSource(11)), archive, zap.NewNop())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = reg.Shutdown(ctx)
	})
	return fixture{reg: reg, handler: api.NewServer(reg, bundle, zap.NewNop()).Router()}
}

func (f fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	return w
}

func (f fixture) start(t *testing.T, body any) string {
	t.Helper()
	w := f.do(t, http.MethodPost, "/runs", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp struct {
		RunID string `json:"run_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.RunID)
	return resp.RunID
}

func (f fixture) wait(t *testing.T, id string) {
	t.Helper()
	e, err := f.reg.Get(id)
	require.NoError(t, err)
	select {
	case <-e.Done():
	case <-time.After(30 * time.Second):
		t.Fatalf("run %s did not finish", id)
	}
}

var crypt = map[string]any{"dungeon_id": "sunken_crypt", "key_level": 2}

func TestHealthAndDungeons(t *testing.T) {
	f := newFixture(t, 0, nil)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/health", nil).Code)

	w := f.do(t, http.MethodGet, "/dungeons", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var dungeons []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &dungeons))
	require.Len(t, dungeons, 1)
	assert.Equal(t, "sunken_crypt", dungeons[0]["id"])
}

func TestHealthReportsFailedChecks(t *testing.T) {
	bundle, err := content.Load("../../content", content.Options{}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(bundle.Close)
	reg := api.NewRegistry(config.Default(), bundle.RunDeps(zap.NewNop(), dice.NewSeededSource(1)), nil, zap.NewNop())

	healthy := true
	h := api.NewServer(reg, bundle, zap.NewNop()).WithHealthChecks(map[string]api.HealthCheck{
		"database": func(context.Context) error {
			if healthy {
				return nil
			}
			return errors.New("connection refused")
		},
	}).Router()

	get := func() (int, map[string]any) {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		var body map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		return w.Code, body
	}
	code, body := get()
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])

	healthy = false
	code, body = get()
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "degraded", body["status"])
	assert.Equal(t, map[string]any{"database": "connection refused"}, body["failed"])
}

func TestStartRun_BadRequests(t *testing.T) {
	f := newFixture(t, 0, nil)
	for name, body := range map[string]any{
		"unknown dungeon": map[string]any{"dungeon_id": "nowhere", "key_level": 2},
		"missing key":     map[string]any{"dungeon_id": "sunken_crypt"},
		"absurd key":      map[string]any{"dungeon_id": "sunken_crypt", "key_level": 9300},
		"locked gate":     map[string]any{"dungeon_id": "sunken_crypt", "key_level": 2, "route": []any{map[string]any{"packs": []string{"g2-a"}}}},
		"unknown team":    map[string]any{"dungeon_id": "sunken_crypt", "key_level": 2, "team_id": "strangers"},
		"unknown affix":   map[string]any{"dungeon_id": "sunken_crypt", "key_level": 2, "affixes": []string{"volcanic"}},
		"bad route":       map[string]any{"dungeon_id": "sunken_crypt", "key_level": 2, "route": []any{map[string]any{"packs": []string{"ghost"}}}},
	} {
		t.Run(name, func(t *testing.T) {
			w := f.do(t, http.MethodPost, "/runs", body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}
	assert.Empty(t, f.reg.List())
}

func TestRunToCompletion(t *testing.T) {
	archive := newMemArchive()
	f := newFixture(t, 0, archive)
	id := f.start(t, map[string]any{"dungeon_id": "sunken_crypt", "key_level": 2, "affixes": []string{"fortified"}})
	f.wait(t, id)

	w := f.do(t, http.MethodGet, "/runs/"+id+"/result", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var res run.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, id, res.RunID)
	assert.Positive(t, res.Ticks)

	w = f.do(t, http.MethodGet, "/runs/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var snap run.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.Equal(t, run.PhaseFinished, snap.Phase)
	require.NotNil(t, snap.Result)

	w = f.do(t, http.MethodGet, "/runs/"+id+"/log", nil)
	require.Equal(t, http.StatusOK, w.Code)
	doc, err := combatlog.Decode(w.Body)
	require.NoError(t, err)
	assert.Equal(t, id, doc.RunID)
	assert.Equal(t, "sunken_crypt", doc.Initial.DungeonID)
	assert.NotEmpty(t, doc.Entries)

	assert.Equal(t, http.StatusConflict, f.do(t, http.MethodPost, "/runs/"+id+"/pause", nil).Code)

	require.Eventually(t, func() bool { return archive.len() == 1 }, 5*time.Second, 10*time.Millisecond)
	w = f.do(t, http.MethodGet, "/archive/runs?dungeon=sunken_crypt", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), id)
	w = f.do(t, http.MethodGet, "/archive/runs/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"log"`)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/archive/runs/missing", nil).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/archive/runs?limit=zero", nil).Code)

	assert.Equal(t, http.StatusNoContent, f.do(t, http.MethodDelete, "/runs/"+id, nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/runs/"+id, nil).Code)
}

func TestUnknownRun(t *testing.T) {
	f := newFixture(t, 0, nil)
	for _, path := range []string{"/runs/missing", "/runs/missing/result", "/runs/missing/log"} {
		assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, path, nil).Code, path)
	}
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodPost, "/runs/missing/stop", nil).Code)
	assert.Equal(t, http.StatusNotImplemented, f.do(t, http.MethodGet, "/archive/runs", nil).Code)
}

func TestLiveRunControls(t *testing.T) {
	f := newFixture(t, 2*time.Millisecond, nil)
	id := f.start(t, crypt)

	assert.Equal(t, http.StatusConflict, f.do(t, http.MethodGet, "/runs/"+id+"/result", nil).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/runs/"+id+"/resurrect", map[string]string{}).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/runs/"+id+"/ability", map[string]string{"member_id": "kiva"}).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/runs/"+id+"/engage", map[string]string{}).Code)

	assert.Equal(t, http.StatusAccepted, f.do(t, http.MethodPost, "/runs/"+id+"/ability", map[string]string{"member_id": "kiva", "ability_id": "rally"}).Code)
	assert.Equal(t, http.StatusAccepted, f.do(t, http.MethodPost, "/runs/"+id+"/engage", map[string]string{"pack_id": "g1-side"}).Code)
	assert.Equal(t, http.StatusAccepted, f.do(t, http.MethodPost, "/runs/"+id+"/pause", nil).Code)

	runs := f.reg.List()
	require.Len(t, runs, 1)
	assert.True(t, runs[0].Paused)
	assert.Equal(t, http.StatusConflict, f.do(t, http.MethodDelete, "/runs/"+id, nil).Code)

	assert.Equal(t, http.StatusAccepted, f.do(t, http.MethodPost, "/runs/"+id+"/resume", nil).Code)
	assert.Equal(t, http.StatusAccepted, f.do(t, http.MethodPost, "/runs/"+id+"/stop", nil).Code)
	f.wait(t, id)

	e, err := f.reg.Get(id)
	require.NoError(t, err)
	res, err := e.Result()
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "run stopped", res.FailDetail)
}

func TestShutdownStopsLiveRuns(t *testing.T) {
	f := newFixture(t, 5*time.Millisecond, nil)
	id := f.start(t, crypt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, f.reg.Shutdown(ctx))

	e, err := f.reg.Get(id)
	require.NoError(t, err)
	assert.True(t, e.Finished())
	_, err = f.reg.Start(run.Params{})
	assert.Error(t, err)
}

func TestRegistryIgnoresForeignSnapshots(t *testing.T) {
	f := newFixture(t, 0, nil)
	assert.NotPanics(t, func() { f.reg.Publish(run.Snapshot{RunID: "stranger"}) })
	assert.ErrorIs(t, f.reg.Forget("stranger"), api.ErrRunNotFound)
}

// readFeed reads one message, reporting whether it was an error reply.
func readFeed(t *testing.T, conn *websocket.Conn) (run.Snapshot, bool, error) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		return run.Snapshot{}, false, err
	}
	var frame struct {
		Type string `json:"type"`
	}
	require.NoError(t, json.Unmarshal(data, &frame))
	if frame.Type == "error" {
		return run.Snapshot{}, true, nil
	}
	var snap run.Snapshot
	require.NoError(t, json.Unmarshal(data, &snap))
	return snap, false, nil
}

func TestFeedStreamsAndAcceptsControls(t *testing.T) {
	f := newFixture(t, 2*time.Millisecond, nil)
	srv := httptest.NewServer(f.handler)
	defer srv.Close()
	id := f.start(t, crypt)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/runs/" + id + "/feed"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	snap, isErr, err := readFeed(t, conn)
	require.NoError(t, err)
	require.False(t, isErr)
	assert.Equal(t, id, snap.RunID)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "dance"}))
	sawError := false
	for i := 0; i < 500 && !sawError; i++ {
		_, isErr, err = readFeed(t, conn)
		require.NoError(t, err)
		sawError = isErr
	}
	assert.True(t, sawError, "unknown control is answered with an error")

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "stop"}))
	var final *run.Result
	for {
		snap, _, err := readFeed(t, conn)
		if err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), err)
			break
		}
		if snap.Result != nil {
			final = snap.Result
		}
	}
	require.NotNil(t, final)
	assert.Equal(t, "run stopped", final.FailDetail)
}

func TestFeedUnknownRun(t *testing.T) {
	f := newFixture(t, 0, nil)
	srv := httptest.NewServer(f.handler)
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/runs/missing/feed"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
