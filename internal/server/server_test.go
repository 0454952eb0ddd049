package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"olie/internal/board"
	"olie/internal/config"
	"olie/internal/events"
	"olie/internal/models"
	"olie/internal/snapshot"
	"olie/internal/storage/sqlite"
)

type testEnv struct {
	store  *sqlite.Store
	boards *board.Registry
	hub    *events.Hub
	srv    *Server
}

type fakeS3 struct {
	mu   sync.Mutex
	keys []string
}

func (f *fakeS3) HeadBucket(context.Context, *s3.HeadBucketInput, ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	return &s3.HeadBucketOutput{}, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	f.keys = append(f.keys, *in.Key)
	f.mu.Unlock()
	return &s3.PutObjectOutput{}, nil
}

func newTestEnv(t *testing.T, exporter *snapshot.Exporter) *testEnv {
	t.Helper()
	hub := events.NewHub(nil)
	t.Cleanup(hub.Close)

	store, err := sqlite.Open("sqlite", filepath.Join(t.TempDir(), "olie.db"), nil, hub)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	opts, err := config.Default().Board.Options()
	require.NoError(t, err)
	boards := board.NewRegistry(store, opts, nil)

	return &testEnv{
		store:  store,
		boards: boards,
		hub:    hub,
		srv:    New(store, boards, hub, exporter, nil, ""),
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, map[string]json.RawMessage) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.srv.Engine().ServeHTTP(rec, req)

	var payload map[string]json.RawMessage
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload), rec.Body.String())
	}
	return rec, payload
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

func (e *testEnv) seedBoard(t *testing.T) models.Board {
	t.Helper()
	b, err := e.store.CreateBoard(context.Background(), "Bags", "")
	require.NoError(t, err)
	return b
}

func (e *testEnv) seedCard(t *testing.T, boardID int64, title, status string) models.Card {
	t.Helper()
	c, err := e.store.CreateCard(context.Background(), models.Card{BoardID: boardID, Title: title, Status: status})
	require.NoError(t, err)
	return c
}

func columnTitles(p board.Partition, col string) []string {
	titles := []string{}
	for _, c := range p.Column(col) {
		titles = append(titles, c.Title)
	}
	return titles
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, nil)
	rec, _ := env.do(t, http.MethodGet, "/api/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))
}

func TestBoardEndpoints(t *testing.T) {
	env := newTestEnv(t, nil)

	rec, payload := env.do(t, http.MethodPost, "/api/boards", boardRequest{Name: "Bags", Color: "#112233"})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[models.Board](t, payload["board"])
	assert.Equal(t, "Bags", created.Name)

	rec, _ = env.do(t, http.MethodPost, "/api/boards", boardRequest{Name: " "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	path := "/api/boards/" + itoa(created.ID)
	rec, payload = env.do(t, http.MethodPut, path, boardRequest{Name: "Wallets", Color: "#445566"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Wallets", decode[models.Board](t, payload["board"]).Name)

	rec, payload = env.do(t, http.MethodGet, "/api/boards", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]models.Board](t, payload["boards"]), 1)

	rec, _ = env.do(t, http.MethodGet, path+"/board", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, env.boards.Len())

	rec, _ = env.do(t, http.MethodDelete, path, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, env.boards.Len())

	rec, _ = env.do(t, http.MethodGet, path+"/board", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec, _ = env.do(t, http.MethodGet, "/api/boards/abc/board", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCardEndpointsKeepPartitionCurrent(t *testing.T) {
	env := newTestEnv(t, nil)
	b := env.seedBoard(t)
	base := "/api/boards/" + itoa(b.ID)

	rec, _ := env.do(t, http.MethodGet, base+"/board", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	title := "Cut leather"
	rec, payload := env.do(t, http.MethodPost, base+"/cards", cardRequest{Title: &title})
	require.Equal(t, http.StatusCreated, rec.Code)
	card := decode[models.Card](t, payload["card"])
	assert.Equal(t, "todo", card.Status)

	unknown := "archived"
	rec, _ = env.do(t, http.MethodPost, base+"/cards", cardRequest{Title: &title, Status: &unknown})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec, _ = env.do(t, http.MethodPost, base+"/cards", cardRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	_, payload = env.do(t, http.MethodGet, base+"/board", nil)
	assert.Equal(t, []string{"Cut leather"}, columnTitles(decode[board.Partition](t, payload["board"]), "todo"))

	done := "done"
	rec, payload = env.do(t, http.MethodPut, "/api/cards/"+itoa(card.ID), cardRequest{Status: &done})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "done", decode[models.Card](t, payload["card"]).Status)
	rec, _ = env.do(t, http.MethodPut, "/api/cards/"+itoa(card.ID), cardRequest{Status: &unknown})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	_, payload = env.do(t, http.MethodGet, base+"/board", nil)
	p := decode[board.Partition](t, payload["board"])
	assert.Empty(t, p.Column("todo"))
	assert.Equal(t, []string{"Cut leather"}, columnTitles(p, "done"))

	rec, _ = env.do(t, http.MethodDelete, "/api/cards/"+itoa(card.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec, _ = env.do(t, http.MethodDelete, "/api/cards/"+itoa(card.ID), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	_, payload = env.do(t, http.MethodGet, base+"/board", nil)
	assert.Zero(t, decode[board.Partition](t, payload["board"]).Len())
}

func TestUpdateCardStatusAndVersion(t *testing.T) {
	env := newTestEnv(t, nil)
	b := env.seedBoard(t)
	card := env.seedCard(t, b.ID, "Cut", "todo")
	path := "/api/cards/" + itoa(card.ID)

	blank := " "
	title := "Cut leather"
	rec, payload := env.do(t, http.MethodPut, path, cardRequest{Title: &title, Status: &blank})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[models.Card](t, payload["card"])
	assert.Equal(t, "todo", updated.Status)
	assert.Equal(t, "Cut leather", updated.Title)

	rec, _ = env.do(t, http.MethodPut, path, cardRequest{Title: &title, Version: card.Version})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, _ = env.do(t, http.MethodPut, path, cardRequest{Title: &title, Version: updated.Version})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestListCardsFilters(t *testing.T) {
	env := newTestEnv(t, nil)
	b := env.seedBoard(t)
	base := "/api/boards/" + itoa(b.ID) + "/cards"
	env.seedCard(t, b.ID, "Cut leather", "todo")
	env.seedCard(t, b.ID, "Stitch handles", "doing")
	high := models.PriorityHigh
	third := env.seedCard(t, b.ID, "Leather wallets", "done")
	_, err := env.store.UpdateCard(context.Background(), third.ID, sqlite.CardChanges{Priority: &high})
	require.NoError(t, err)

	titles := func(query string) []string {
		rec, payload := env.do(t, http.MethodGet, base+query, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		out := []string{}
		for _, c := range decode[[]models.Card](t, payload["cards"]) {
			out = append(out, c.Title)
		}
		return out
	}

	assert.Equal(t, []string{"Cut leather", "Stitch handles", "Leather wallets"}, titles(""))
	assert.Equal(t, []string{"Cut leather", "Leather wallets"}, titles("?q=LEATHER"))
	assert.Equal(t, []string{"Leather wallets"}, titles("?q=leather&priority=high"))
	assert.Equal(t, []string{"Stitch handles"}, titles("?status=doing"))
	today := time.Now().UTC().Format(time.DateOnly)
	assert.Len(t, titles("?from="+today+"&to="+today), 3)
	assert.Empty(t, titles("?to=2000-01-01"))

	rec, _ := env.do(t, http.MethodGet, base+"?from=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec, _ = env.do(t, http.MethodGet, base+"?priority=urgent", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec, _ = env.do(t, http.MethodGet, "/api/boards/999/cards", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDropMovesCard(t *testing.T) {
	env := newTestEnv(t, nil)
	b := env.seedBoard(t)
	drops := "/api/boards/" + itoa(b.ID) + "/drops"
	a := env.seedCard(t, b.ID, "A", "todo")
	env.seedCard(t, b.ID, "B", "doing")
	env.seedCard(t, b.ID, "C", "doing")

	rec, payload := env.do(t, http.MethodPost, drops, board.DropEvent{
		CardID:      a.ID,
		Source:      board.Location{Column: "todo", Index: 0},
		Destination: &board.Location{Column: "doing", Index: 1},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decode[board.MoveResult](t, payload["result"])
	assert.True(t, result.Moved)
	assert.Equal(t, "doing", result.Card.Status)
	assert.Equal(t, []string{"B", "A", "C"}, columnTitles(decode[board.Partition](t, payload["board"]), "doing"))

	stored, err := env.store.GetCard(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, "doing", stored.Status)
	assert.Equal(t, int64(1), stored.Position)

	rec, payload = env.do(t, http.MethodPost, drops, board.DropEvent{CardID: a.ID, Source: board.Location{Column: "doing", Index: 1}})
	require.Equal(t, http.StatusOK, rec.Code)
	result = decode[board.MoveResult](t, payload["result"])
	assert.False(t, result.Moved)
	assert.Equal(t, "cancelled", result.Reason)

	rec, payload = env.do(t, http.MethodPost, drops, board.DropEvent{
		CardID:      a.ID,
		Source:      board.Location{Column: "todo", Index: 0},
		Destination: &board.Location{Column: "done", Index: 0},
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, payload, "board")

	rec, _ = env.do(t, http.MethodPost, drops, board.DropEvent{
		CardID:      a.ID,
		Source:      board.Location{Column: "doing", Index: 1},
		Destination: &board.Location{Column: "nowhere", Index: 0},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = env.do(t, http.MethodPost, drops, board.DropEvent{
		CardID:      999,
		Source:      board.Location{Column: "todo", Index: 0},
		Destination: &board.Location{Column: "done", Index: 0},
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDropRevertedByConcurrentWriter(t *testing.T) {
	env := newTestEnv(t, nil)
	b := env.seedBoard(t)
	base := "/api/boards/" + itoa(b.ID)
	a := env.seedCard(t, b.ID, "A", "todo")

	rec, _ := env.do(t, http.MethodGet, base+"/board", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// Another process edits the card behind the manager's back.
	renamed := "A2"
	_, err := env.store.UpdateCard(context.Background(), a.ID, sqlite.CardChanges{Title: &renamed})
	require.NoError(t, err)

	rec, payload := env.do(t, http.MethodPost, base+"/drops", board.DropEvent{
		CardID:      a.ID,
		Source:      board.Location{Column: "todo", Index: 0},
		Destination: &board.Location{Column: "done", Index: 0},
	})
	require.Equal(t, http.StatusConflict, rec.Code)
	p := decode[board.Partition](t, payload["board"])
	assert.Equal(t, []string{"A2"}, columnTitles(p, "todo"))
	assert.Empty(t, p.Column("done"))

	stored, err := env.store.GetCard(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, "todo", stored.Status)
}

func TestReload(t *testing.T) {
	env := newTestEnv(t, nil)
	b := env.seedBoard(t)
	base := "/api/boards/" + itoa(b.ID)

	rec, _ := env.do(t, http.MethodGet, base+"/board", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	env.seedCard(t, b.ID, "Out of band", "doing")

	_, payload := env.do(t, http.MethodGet, base+"/board", nil)
	assert.Empty(t, decode[board.Partition](t, payload["board"]).Column("doing"))

	rec, payload = env.do(t, http.MethodPost, base+"/reload", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"Out of band"}, columnTitles(decode[board.Partition](t, payload["board"]), "doing"))
}

func TestSnapshotEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)
	b := env.seedBoard(t)
	rec, _ := env.do(t, http.MethodPost, "/api/boards/"+itoa(b.ID)+"/snapshot", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	client := &fakeS3{}
	env = newTestEnv(t, snapshot.NewExporter(client, config.S3Config{Bucket: "olie", Prefix: "test"}, nil))
	b = env.seedBoard(t)
	env.seedCard(t, b.ID, "A", "todo")

	rec, payload := env.do(t, http.MethodPost, "/api/boards/"+itoa(b.ID)+"/snapshot", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	key := decode[string](t, payload["key"])
	assert.True(t, strings.HasPrefix(key, "test/boards/"+itoa(b.ID)+"/"))
	assert.ElementsMatch(t, []string{key, "test/boards/" + itoa(b.ID) + "/latest.json"}, client.keys)

	rec, _ = env.do(t, http.MethodPost, "/api/boards/999/snapshot", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEventStream(t *testing.T) {
	env := newTestEnv(t, nil)
	b := env.seedBoard(t)
	ts := httptest.NewServer(env.srv.Engine())
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/events?table=cards&board="+itoa(b.ID), nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	lines := bufio.NewScanner(resp.Body)
	require.True(t, lines.Scan())
	assert.Equal(t, "event:ready", lines.Text())

	env.seedCard(t, b.ID, "Streamed", "todo")

	var got []string
	for lines.Scan() {
		line := lines.Text()
		if strings.HasPrefix(line, "event:") || strings.HasPrefix(line, "data:") {
			got = append(got, line)
		}
		if strings.HasPrefix(line, "data:") && strings.Contains(line, "Streamed") {
			break
		}
	}
	require.NotEmpty(t, got)
	assert.Contains(t, got, "event:insert")

	cancel()
	assert.Eventually(t, func() bool { return env.hub.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestEventStreamRejectsBadFilters(t *testing.T) {
	env := newTestEnv(t, nil)
	rec, _ := env.do(t, http.MethodGet, "/api/events?table=users", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec, _ = env.do(t, http.MethodGet, "/api/events?board=x", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStaticFallback(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>olie</html>"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "assets"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "assets", "app.js"), []byte("console.log(1)"), 0o644))

	env := newTestEnv(t, nil)
	srv := New(env.store, env.boards, env.hub, nil, nil, dir)

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		srv.Engine().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	rec := get("/boards/3")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "olie")

	rec = get("/assets/app.js")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "console.log")
	assert.Contains(t, rec.Header().Get("Cache-Control"), "immutable")

	rec = get("/api/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	srv.Engine().ServeHTTP(rec, httptest.NewRequest(http.MethodHead, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	srv.Engine().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/boards/3", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
