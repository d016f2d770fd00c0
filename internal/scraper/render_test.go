package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"testing"
	"time"

	"guild-ranker/internal/logger"

	"github.com/chromedp/cdproto/cdp"
	cdppage "github.com/chromedp/cdproto/page"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func docNode(id cdp.BackendNodeID, children ...*cdp.Node) *cdp.Node {
	return &cdp.Node{BackendNodeID: id, NodeType: cdp.NodeTypeDocument, NodeName: "#document", Children: children}
}

func elemNode(id cdp.BackendNodeID, name string, children ...*cdp.Node) *cdp.Node {
	return &cdp.Node{BackendNodeID: id, NodeType: cdp.NodeTypeElement, NodeName: name, LocalName: name, Children: children}
}

func frameNode(id cdp.BackendNodeID, name string, frameID cdp.FrameID, content *cdp.Node) *cdp.Node {
	n := elemNode(id, name)
	n.FrameID = frameID
	n.ContentDocument = content
	return n
}

func backendIDs(nodes []*cdp.Node) []cdp.BackendNodeID {
	out := make([]cdp.BackendNodeID, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.BackendNodeID)
	}
	return out
}

func TestWalkFrameDocuments_NestedFramesAndShadowRoots(t *testing.T) {
	innerDoc := docNode(30, elemNode(31, "html", elemNode(32, "body")))
	outerDoc := docNode(20, elemNode(21, "html",
		elemNode(22, "body", frameNode(23, "iframe", "f-inner", innerDoc)),
	))
	framesetDoc := docNode(40, elemNode(41, "html"))

	host := elemNode(50, "div")
	shadowDoc := docNode(60, elemNode(61, "html"))
	host.ShadowRoots = []*cdp.Node{
		{BackendNodeID: 51, NodeType: cdp.NodeTypeDocumentFragment, Children: []*cdp.Node{
			frameNode(52, "iframe", "f-shadow", shadowDoc),
		}},
	}

	root := docNode(1, elemNode(2, "html",
		elemNode(3, "body",
			frameNode(4, "iframe", "f-outer", outerDoc),
			frameNode(5, "frame", "f-frameset", framesetDoc),
			frameNode(6, "iframe", "f-remote", nil),
			host,
		),
	))

	docs, remote := walkFrameDocuments(root)
	assert.Equal(t, []cdp.BackendNodeID{1, 20, 30, 40, 60}, backendIDs(docs))
	assert.Equal(t, []cdp.FrameID{"f-remote"}, remote)
}

func TestWalkFrameDocuments_IgnoresNonFrameContent(t *testing.T) {
	// A frame id on a non-owner element must not be followed or reported.
	odd := elemNode(3, "div")
	odd.FrameID = "f-odd"
	odd.ContentDocument = docNode(9)

	docs, remote := walkFrameDocuments(docNode(1, elemNode(2, "html", odd)))
	assert.Equal(t, []cdp.BackendNodeID{1}, backendIDs(docs))
	assert.Empty(t, remote)

	docs, remote = walkFrameDocuments(nil)
	assert.Empty(t, docs)
	assert.Empty(t, remote)
}

func TestDocumentElement(t *testing.T) {
	doctype := &cdp.Node{BackendNodeID: 2, NodeType: cdp.NodeTypeDocumentType}
	doc := docNode(1, doctype, elemNode(3, "html"))
	assert.Equal(t, cdp.BackendNodeID(3), documentElement(doc).BackendNodeID)

	empty := docNode(7)
	assert.Same(t, empty, documentElement(empty))
}

func TestFrameURLs(t *testing.T) {
	tree := &cdppage.FrameTree{
		Frame: &cdp.Frame{ID: "main", URL: "https://example.test/"},
		ChildFrames: []*cdppage.FrameTree{
			{
				Frame: &cdp.Frame{ID: "a", URL: "https://example.test/a"},
				ChildFrames: []*cdppage.FrameTree{
					{Frame: &cdp.Frame{ID: "a1", URL: "https://other.test/a1"}},
				},
			},
			{Frame: &cdp.Frame{ID: "b", URL: "about:blank"}},
		},
	}
	assert.Equal(t, map[cdp.FrameID]string{
		"main": "https://example.test/",
		"a":    "https://example.test/a",
		"a1":   "https://other.test/a1",
		"b":    "about:blank",
	}, frameURLs(tree))
	assert.Empty(t, frameURLs(nil))
}

func TestRenderEngine_DisabledIsUnavailable(t *testing.T) {
	e := NewRenderEngine(RenderOptions{Enabled: false, Logger: logger.Discard()})

	require.ErrorIs(t, e.Start(context.Background()), ErrEngineUnavailable)
	assert.False(t, e.Available())

	_, err := e.RenderHTML(context.Background(), "http://127.0.0.1/")
	require.ErrorIs(t, err, ErrEngineUnavailable)
	_, err = e.RenderProfile(context.Background(), "http://127.0.0.1/")
	require.ErrorIs(t, err, ErrEngineUnavailable)
	require.NoError(t, e.Stop())

	var nilEngine *RenderEngine
	assert.False(t, nilEngine.Available())
	require.NoError(t, nilEngine.Stop())
}

func chromeBinary(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("browser test skipped in short mode")
	}
	if p := os.Getenv("CHROME_PATH"); p != "" {
		return p
	}
	for _, name := range []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser", "headless-shell"} {
		if p, err := exec.LookPath(name); err == nil {
			return p
		}
	}
	t.Skip("no Chrome binary found")
	return ""
}

const framedPostPage = `<!doctype html><html><head><meta charset="utf-8"></head><body>
<h1>게시글</h1>
<iframe src="/outer"></iframe>
</body></html>`

const outerFramePage = `<!doctype html><html><head><meta charset="utf-8"></head><body>
<p>프로필</p>
<iframe src="/card"></iframe>
</body></html>`

func newFramedServer(t *testing.T) *httptest.Server {
	t.Helper()
	release := make(chan struct{})
	mux := http.NewServeMux()
	serve := func(body string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = w.Write([]byte(body))
		}
	}
	mux.HandleFunc("/post", serve(framedPostPage))
	mux.HandleFunc("/outer", serve(outerFramePage))
	mux.HandleFunc("/card", serve(profileCardFrame))
	mux.HandleFunc("/stall", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })
	return srv
}

func startEngine(t *testing.T, opts RenderOptions) *RenderEngine {
	t.Helper()
	opts.Enabled = true
	opts.ExecPath = chromeBinary(t)
	opts.Logger = logger.Discard()
	e := NewRenderEngine(opts)
	require.NoError(t, e.Start(context.Background()))
	t.Cleanup(func() { _ = e.Stop() })
	require.True(t, e.Available())
	return e
}

func TestRenderEngine_RenderHTMLReturnsWithinBudget(t *testing.T) {
	opts := RenderOptions{NavTimeout: 10 * time.Second, WaitTimeout: 2 * time.Second, Settle: 200 * time.Millisecond}
	e := startEngine(t, opts)
	srv := newFramedServer(t)

	type result struct {
		html string
		err  error
	}
	// A caller context without a deadline must still see the render finish.
	ch := make(chan result, 1)
	started := time.Now()
	go func() {
		html, err := e.RenderHTML(context.Background(), srv.URL+"/post")
		ch <- result{html, err}
	}()

	limit := opts.NavTimeout + opts.WaitTimeout + opts.Settle
	select {
	case r := <-ch:
		require.NoError(t, r.err)
		assert.Contains(t, r.html, "<iframe")
		assert.Contains(t, r.html, "게시글")
		assert.Less(t, time.Since(started), limit)
	case <-time.After(limit + renderGrace + 5*time.Second):
		t.Fatalf("RenderHTML did not return within %s", limit)
	}

	// The engine stays usable for a second render on the same browser.
	html, err := e.RenderHTML(context.Background(), srv.URL+"/card")
	require.NoError(t, err)
	assert.Contains(t, html, "검은별")
}

func TestRenderEngine_RenderProfilePicksNestedFrame(t *testing.T) {
	e := startEngine(t, RenderOptions{NavTimeout: 10 * time.Second, WaitTimeout: time.Second})
	srv := newFramedServer(t)

	p, err := e.RenderProfile(context.Background(), srv.URL+"/post")
	require.NoError(t, err)
	assert.Equal(t, "검은별", p.Nickname)
	assert.Equal(t, "카인", p.Server)
	assert.Equal(t, "항마압축파", p.Guild)
	assert.Equal(t, 45210, p.CombatPower)
}

func TestRenderEngine_NavigationTimeout(t *testing.T) {
	opts := RenderOptions{NavTimeout: time.Second, WaitTimeout: time.Second}
	e := startEngine(t, opts)
	srv := newFramedServer(t)

	started := time.Now()
	_, err := e.RenderHTML(context.Background(), srv.URL+"/stall")
	require.Error(t, err)
	assert.Less(t, time.Since(started), opts.NavTimeout+opts.WaitTimeout+renderGrace+5*time.Second)
}

func TestRenderEngine_StopMakesUnavailable(t *testing.T) {
	e := startEngine(t, RenderOptions{})
	require.NoError(t, e.Stop())
	assert.False(t, e.Available())

	_, err := e.RenderHTML(context.Background(), "http://127.0.0.1/")
	require.ErrorIs(t, err, ErrEngineUnavailable)
}

func TestRenderEngine_CancelledCallerStopsRender(t *testing.T) {
	e := startEngine(t, RenderOptions{NavTimeout: 30 * time.Second, WaitTimeout: 30 * time.Second})
	srv := newFramedServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	started := time.Now()
	_, err := e.RenderHTML(ctx, srv.URL+"/stall")
	require.Error(t, err)
	assert.Less(t, time.Since(started), 10*time.Second)
}
