package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"column-indexer/internal/aggregator"
	"column-indexer/internal/model"
	"column-indexer/internal/outline"
	"column-indexer/internal/spy"
	"column-indexer/internal/storage"
	"column-indexer/internal/ttlcache"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// gatedFetcher serves page 1 at once and holds later pages until gate closes.
type gatedFetcher struct {
	gate  chan struct{}
	pages map[int][]model.ArticleRef
}

func (f *gatedFetcher) FetchPage(ctx context.Context, req model.PageRequest) ([]model.ArticleRef, error) {
	if req.Page > 1 {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.pages[req.Page], nil
}

func ref(id int) model.ArticleRef {
	return model.ArticleRef{URL: fmt.Sprintf("https://blog.csdn.net/someone/article/details/%d", id), Title: fmt.Sprint(id)}
}

func newTestServer(t *testing.T) (*Server, *gatedFetcher, *aggregator.Aggregator) {
	t.Helper()
	f := &gatedFetcher{
		gate: make(chan struct{}),
		pages: map[int][]model.ArticleRef{
			1: {ref(30), ref(20)},
			2: {ref(10)},
		},
	}
	agg := aggregator.New(f, ttlcache.New[model.ArticleIndex](storage.NewMemoryStore()))
	t.Cleanup(agg.Wait)
	return New(NewHub(agg), ":0"), f, agg
}

func do(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	s, _, _ := newTestServer(t)
	w := do(t, s, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestMetricsEndpoint(t *testing.T) {
	s, _, _ := newTestServer(t)
	w := do(t, s, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "column_indexer_server_spy_sessions")
}

func TestArticlesPartialThenComplete(t *testing.T) {
	s, f, agg := newTestServer(t)

	w := do(t, s, http.MethodGet, "/api/columns/someone/7/articles?count=150", "")
	require.Equal(t, http.StatusOK, w.Code)
	var res IndexResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.False(t, res.Complete)
	assert.Equal(t, model.ArticleIndex{ref(30), ref(20)}, res.Articles)

	close(f.gate)
	agg.Wait()

	w = do(t, s, http.MethodGet, "/api/columns/someone/7/articles?count=150", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.True(t, res.Complete)
	assert.Equal(t, model.ArticleIndex{ref(10), ref(20), ref(30)}, res.Articles)
}

func TestArticlesSinglePage(t *testing.T) {
	s, _, _ := newTestServer(t)
	w := do(t, s, http.MethodGet, "/api/columns/someone/7/articles", "")
	require.Equal(t, http.StatusOK, w.Code)
	var res IndexResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.True(t, res.Complete)
	assert.Equal(t, model.ArticleIndex{ref(20), ref(30)}, res.Articles)
}

func TestArticlesBadInput(t *testing.T) {
	s, _, _ := newTestServer(t)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/api/columns/someone/abc/articles", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/api/columns/someone/7/articles?count=-1", "").Code)
}

func TestOutlineEndpoint(t *testing.T) {
	s, _, _ := newTestServer(t)
	body := `{"headings":[
		{"id":"a","title":"A","level":1},
		{"id":"b","title":"B","level":2},
		{"id":"c","title":"C","level":2},
		{"id":"d","title":"D","level":3},
		{"id":"e","title":"E","level":1}]}`
	w := do(t, s, http.MethodPost, "/api/outline", body)
	require.Equal(t, http.StatusOK, w.Code)

	var res struct {
		Outline outline.Forest `json:"outline"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	require.Len(t, res.Outline, 2)
	assert.Equal(t, "a", res.Outline[0].ID)
	require.Len(t, res.Outline[0].Children, 2)
	assert.Equal(t, "d", res.Outline[0].Children[1].Children[0].ID)
	assert.Equal(t, "e", res.Outline[1].ID)
}

func TestOutlineRejectsBadLevel(t *testing.T) {
	s, _, _ := newTestServer(t)
	w := do(t, s, http.MethodPost, "/api/outline", `{"headings":[{"id":"a","title":"A","level":9}]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPageEndpoint(t *testing.T) {
	s, _, _ := newTestServer(t)
	html := `<div id="blogColumnPayAdvert"><div class="column-group-item">
		<a class="item-target" href="/someone/category_7.html" title="Col"></a>
		<div class="item-m"><span>150 篇文章</span></div></div></div>
		<div id="content_views"><h2 id="x">X</h2><h3 id="y">Y</h3></div>`
	w := do(t, s, http.MethodPost, "/api/page?url=https://blog.csdn.net/someone/article/details/20", html)
	require.Equal(t, http.StatusOK, w.Code)

	var res pageResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	require.Len(t, res.Columns, 1)
	assert.Equal(t, model.ColumnKey{Owner: "someone", ColumnID: "7"}, res.Columns[0].Key)
	assert.Equal(t, 150, res.Columns[0].ReportedCount)
	require.Len(t, res.Outline, 1)
	assert.Equal(t, "y", res.Outline[0].Children[0].ID)
}

func readMsg(t *testing.T, conn *websocket.Conn) wsResponse {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg wsResponse
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestWebSocketStream(t *testing.T) {
	s, f, _ := newTestServer(t)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	hello := readMsg(t, conn)
	assert.Equal(t, "session", hello.Type)
	assert.NotEmpty(t, hello.Session)

	require.NoError(t, conn.WriteJSON(wsRequest{Type: "index", Owner: "someone", Column: "7", Count: 150}))
	msg := readMsg(t, conn)
	assert.Equal(t, "index", msg.Type)
	assert.Equal(t, "someone/7", msg.Column)
	assert.False(t, msg.Complete)
	assert.Len(t, msg.Articles, 2)

	close(f.gate)
	msg = readMsg(t, conn)
	assert.Equal(t, "refined", msg.Type)
	assert.True(t, msg.Complete)
	assert.Equal(t, model.ArticleIndex{ref(10), ref(20), ref(30)}, msg.Articles)

	require.NoError(t, conn.WriteJSON(wsRequest{Type: "outline", Headings: []model.HeadingRecord{
		{ID: "a", Title: "A", Level: 1},
		{ID: "b", Title: "B", Level: 2},
	}}))
	msg = readMsg(t, conn)
	assert.Equal(t, "outline", msg.Type)
	require.Len(t, msg.Outline, 1)

	require.NoError(t, conn.WriteJSON(wsRequest{
		Type:      "observe",
		Viewport:  spy.Viewport{Height: 1000},
		Positions: []spy.Position{{ID: "a", Top: 500}, {ID: "b", Top: 40}},
	}))
	msg = readMsg(t, conn)
	assert.Equal(t, "active", msg.Type)
	require.NotNil(t, msg.Active)
	assert.Equal(t, "b", msg.Active.ID)
	assert.Equal(t, []string{"a", "b"}, msg.Active.Path)

	require.NoError(t, conn.WriteJSON(wsRequest{Type: "bogus"}))
	msg = readMsg(t, conn)
	assert.Equal(t, "error", msg.Type)
}

func TestWebSocketObserveBeforeOutline(t *testing.T) {
	s, _, _ := newTestServer(t)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()
	readMsg(t, conn)

	require.NoError(t, conn.WriteJSON(wsRequest{Type: "observe", Viewport: spy.Viewport{Height: 100}}))
	msg := readMsg(t, conn)
	assert.Equal(t, "error", msg.Type)
	assert.Contains(t, msg.Error, "outline")
}
