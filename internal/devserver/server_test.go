package devserver

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"github.com/vpspilot/pilot/internal/logger"
	"github.com/vpspilot/pilot/internal/metrics"
)

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func testServer(t *testing.T, token string) *Server {
	t.Helper()
	gen := NewGenerator(DefaultNodes())
	gen.Now = func() time.Time { return fixedNow }
	return New(Options{Generator: gen, Token: token, Logger: logger.Noop()})
}

func do(t *testing.T, s *Server, method, path, body string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range header {
		req.Header[k] = v
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestGetNode(t *testing.T) {
	s := testServer(t, "")

	w := do(t, s, http.MethodGet, "/api/v1/nodes/2", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := gjson.Parse(w.Body.String())
	assert.Equal(t, int64(2), body.Get("data.id").Int())
	assert.Equal(t, "db-1", body.Get("data.name").String())
	assert.Equal(t, int64(8), body.Get("data.cpus").Int())
	assert.Equal(t, float64(32*(1<<30)), body.Get("data.memory").Float())

	w = do(t, s, http.MethodGet, "/api/v1/nodes/99", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, s, http.MethodGet, "/api/v1/nodes/abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.NotEmpty(t, gjson.Get(w.Body.String(), "error").String())
}

func TestListNodes(t *testing.T) {
	s := testServer(t, "")

	tests := []struct {
		query string
		ids   []int64
	}{
		{"", []int64{1, 2, 3}},
		{"?limit=2", []int64{1, 2}},
		{"?limit=2&page=2", []int64{3}},
		{"?search=DB", []int64{2}},
		{"?search=10.0.0.31", []int64{3}},
		{"?page=9", nil},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			w := do(t, s, http.MethodGet, "/api/v1/nodes"+tt.query, "", nil)
			require.Equal(t, http.StatusOK, w.Code)
			var ids []int64
			for _, n := range gjson.Get(w.Body.String(), "data").Array() {
				ids = append(ids, n.Get("id").Int())
			}
			assert.Equal(t, tt.ids, ids)
		})
	}

	w := do(t, s, http.MethodGet, "/api/v1/nodes?limit=1", "", nil)
	assert.Equal(t, 8.0, gjson.Get(w.Body.String(), "data.0.total_memory").Float())
	assert.Equal(t, "ubuntu", gjson.Get(w.Body.String(), "data.0.platform").String())
}

func TestRename(t *testing.T) {
	s := testServer(t, "")

	w := do(t, s, http.MethodPut, "/api/v1/nodes/change-name", `{"id":3,"name":"cache-1"}`, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, s, http.MethodGet, "/api/v1/nodes/3", "", nil)
	assert.Equal(t, "cache-1", gjson.Get(w.Body.String(), "data.name").String())

	w = do(t, s, http.MethodPut, "/api/v1/nodes/change-name", `{"id":42,"name":"x"}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAuth(t *testing.T) {
	s := testServer(t, "s3cret")

	w := do(t, s, http.MethodGet, "/api/v1/nodes/1", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(t, s, http.MethodGet, "/api/v1/nodes/1", "", http.Header{"Authorization": {"Bearer s3cret"}})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSystemStat_AnswersEachQuery(t *testing.T) {
	s := testServer(t, "")
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + APIPrefix + StreamPath
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	// invalid queries are ignored
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"id":1,"time_range":"1W"}`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"id":1,"time_range":"15M"}`)))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	frame, err := metrics.NewDecoder(metrics.NetworkFields{}).Decode(data)
	require.NoError(t, err)
	assert.Equal(t, 1, frame.NodeID)
	assert.Equal(t, metrics.Range15M, frame.Range)
	assert.Equal(t, []int{1, 2, 3, 4}, frame.CPU.CoreIDs())
	assert.Len(t, frame.Memory.Samples, 60)
	assert.Equal(t, 1, s.Queries())
}

func TestGenerator_Deterministic(t *testing.T) {
	gen := NewGenerator(DefaultNodes())
	gen.Now = func() time.Time { return fixedNow }

	a := gen.Window(1, metrics.Range5M)
	b := gen.Window(1, metrics.Range5M)
	assert.Equal(t, a, b)

	mem := a["mem"].([]map[string]any)
	require.Len(t, mem, 60)
	assert.Equal(t, fixedNow.Format(time.RFC3339), mem[len(mem)-1]["time"])
	assert.Equal(t, "5 minutes", a["time_range"])
}

func TestGenerator_MapShape(t *testing.T) {
	gen := NewGenerator(DefaultNodes())
	gen.Now = func() time.Time { return fixedNow }
	gen.Shape = CPUShapeMap

	data, err := json.Marshal(gen.Window(3, metrics.Range1H))
	require.NoError(t, err)

	frame, err := metrics.NewDecoder(metrics.NetworkFields{}).Decode(data)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, frame.CPU.CoreIDs())
	for _, samples := range frame.CPU.Cores {
		for _, s := range samples {
			assert.GreaterOrEqual(t, s.Value, 0.0)
			assert.LessOrEqual(t, s.Value, 100.0)
		}
	}
}

func TestGenerator_UnknownNodeIsEmpty(t *testing.T) {
	gen := NewGenerator(DefaultNodes())
	data, err := json.Marshal(gen.Window(42, metrics.Range5M))
	require.NoError(t, err)

	frame, err := metrics.NewDecoder(metrics.NetworkFields{}).Decode(data)
	require.NoError(t, err)
	assert.Empty(t, frame.CPU.Cores)
	assert.Empty(t, frame.Memory.Samples)
}

func TestStep(t *testing.T) {
	assert.Equal(t, 5*time.Second, Step(metrics.Range5M))
	assert.Equal(t, time.Minute, Step(metrics.Range1H))
	assert.Equal(t, 168*time.Minute, Step(metrics.Range7D))
}
