package hub

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alexanderramin/todotree/internal/domain"
	"github.com/alexanderramin/todotree/internal/repository"
	"github.com/alexanderramin/todotree/internal/service"
	"github.com/alexanderramin/todotree/internal/testutil"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*Server, *Hub) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	database := testutil.NewTestDB(t)
	h := NewHub(16, nil)
	svc, err := service.NewTodoService(context.Background(),
		repository.NewSQLiteTodoRepo(database), testutil.NewTestUoW(database),
		service.WithClock(testutil.Clock()),
		service.WithPublisher(h),
	)
	require.NoError(t, err)
	return NewServer(svc, h, nil), h
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestServer_ListEmpty(t *testing.T) {
	s, _ := newTestServer(t)

	w := doJSON(t, s, http.MethodGet, "/api/todos", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestServer_CreateGetAndList(t *testing.T) {
	s, _ := newTestServer(t)

	w := doJSON(t, s, http.MethodPost, "/api/todos", []domain.Record{
		{ID: "p", Name: "Parent"},
		{Name: "Child", Parent: "p", EstimateTime: time.Hour},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	cs := decode[domain.ChangeSet](t, w)
	require.Len(t, cs.Upsert, 3)
	childID := cs.Upsert[2].ID
	assert.NotEmpty(t, childID)

	w = doJSON(t, s, http.MethodGet, "/api/todos/p", nil)
	require.Equal(t, http.StatusOK, w.Code)
	parent := decode[domain.Record](t, w)
	assert.Equal(t, time.Hour, parent.EstimateTime)

	w = doJSON(t, s, http.MethodGet, "/api/todos", nil)
	records := decode[[]domain.Record](t, w)
	require.Len(t, records, 2)
	assert.Equal(t, "p", records[0].ID)
	assert.Equal(t, childID, records[1].ID)
}

func TestServer_ErrorMapping(t *testing.T) {
	s, _ := newTestServer(t)

	w := doJSON(t, s, http.MethodGet, "/api/todos/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, s, http.MethodPost, "/api/todos/missing/start", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, s, http.MethodPost, "/api/todos", []domain.Record{{ID: "a", Parent: "a"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/todos", strings.NewReader(`{"not":"a list"}`))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "error")
}

func TestServer_Actions(t *testing.T) {
	s, _ := newTestServer(t)
	doJSON(t, s, http.MethodPost, "/api/todos", []domain.Record{{ID: "p", Name: "Parent"}})

	w := doJSON(t, s, http.MethodPost, "/api/todos/p/children", nil)
	require.Equal(t, http.StatusOK, w.Code)
	first, ok := service.NewChild(decode[domain.ChangeSet](t, w))
	require.True(t, ok)
	doJSON(t, s, http.MethodPost, "/api/todos/p/children", nil)

	w = doJSON(t, s, http.MethodPost, "/api/todos/p/start", nil)
	require.Equal(t, http.StatusOK, w.Code)
	started := decode[domain.ChangeSet](t, w)
	assert.Equal(t, []string{first.ID}, started.UpsertIDs())

	for _, action := range []string{"stop", "complete", "uncomplete", "next"} {
		w = doJSON(t, s, http.MethodPost, "/api/todos/p/"+action, nil)
		assert.Equal(t, http.StatusOK, w.Code, action)
	}

	w = doJSON(t, s, http.MethodDelete, "/api/todos/p", nil)
	require.Equal(t, http.StatusOK, w.Code)
	deleted := decode[domain.ChangeSet](t, w)
	assert.Len(t, deleted.Delete, 3)

	w = doJSON(t, s, http.MethodDelete, "/api/todos/p", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[domain.ChangeSet](t, w).IsEmpty())
}

func TestServer_ResponsesCarrySeq(t *testing.T) {
	s, _ := newTestServer(t)

	w := doJSON(t, s, http.MethodGet, "/api/todos", nil)
	assert.Equal(t, "0", w.Header().Get(SeqHeader))

	w = doJSON(t, s, http.MethodPost, "/api/todos", []domain.Record{{ID: "a", Name: "A"}})
	assert.Equal(t, "1", w.Header().Get(SeqHeader))

	// Nothing changed, nothing published.
	w = doJSON(t, s, http.MethodPost, "/api/todos", []domain.Record{{ID: "a", Name: "A"}})
	assert.Equal(t, "1", w.Header().Get(SeqHeader))

	w = doJSON(t, s, http.MethodPost, "/api/todos/a/start", nil)
	assert.Equal(t, "2", w.Header().Get(SeqHeader))

	w = doJSON(t, s, http.MethodGet, "/api/todos", nil)
	assert.Equal(t, "2", w.Header().Get(SeqHeader))

	w = doJSON(t, s, http.MethodGet, "/api/todos/missing", nil)
	assert.Empty(t, w.Header().Get(SeqHeader))
}

func dialStream(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) Frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var f Frame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

func TestServer_StreamsChanges(t *testing.T) {
	s, h := newTestServer(t)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	conn := dialStream(t, ts)
	require.Eventually(t, func() bool { return h.Count() == 1 }, time.Second, 10*time.Millisecond)

	resp, err := http.Post(ts.URL+"/api/todos", "application/json",
		strings.NewReader(`[{"id":"a","name":"A","estimateTime":0,"completed":false}]`))
	require.NoError(t, err)
	resp.Body.Close()

	f := readFrame(t, conn)
	assert.Equal(t, FrameChange, f.Type)
	assert.Equal(t, uint64(1), f.Seq)
	require.NotNil(t, f.Change)
	assert.Equal(t, []string{"a"}, f.Change.UpsertIDs())

	resp, err = http.Post(ts.URL+"/api/todos/a/start", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()

	f = readFrame(t, conn)
	assert.Equal(t, uint64(2), f.Seq)
	require.NotNil(t, f.Change)
	require.Len(t, f.Change.Upsert, 1)
	assert.True(t, f.Change.Upsert[0].TimeRecords[0].Start.Equal(testutil.Now))
}

func TestServer_StreamEndsWithHub(t *testing.T) {
	s, h := newTestServer(t)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	conn := dialStream(t, ts)
	require.Eventually(t, func() bool { return h.Count() == 1 }, time.Second, 10*time.Millisecond)

	h.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
}

func TestServer_RunStopsOnCancel(t *testing.T) {
	s, _ := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, "127.0.0.1:0") }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
