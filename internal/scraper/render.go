package scraper

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"guild-ranker/internal/domain"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/emulation"
	cdppage "github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/sirupsen/logrus"
)

var ErrEngineUnavailable = errors.New("render engine unavailable")

// Renderer is the headless fallback used when static markup is insufficient.
type Renderer interface {
	Available() bool
	RenderHTML(ctx context.Context, url string) (string, error)
	RenderProfile(ctx context.Context, url string) (domain.PostProfile, error)
}

// readyCheck is true once any known profile marker is on the page.
const readyCheck = `(() => {
	if (document.querySelector('.tit_character')) return true;
	const text = document.body ? document.body.innerText : '';
	if (text.includes('대표 캐릭터')) return true;
	return Array.from(document.querySelectorAll('dt')).some(d => (d.textContent || '').includes('길드'));
})()`

type RenderOptions struct {
	Enabled     bool
	ExecPath    string
	NavTimeout  time.Duration
	WaitTimeout time.Duration
	Settle      time.Duration
	UserAgent   string
	Locale      string
	Logger      logrus.FieldLogger
}

// RenderEngine owns a single headless Chrome process. Start it once at
// process start and Stop it on shutdown; every render call opens its own
// browser context on that process.
type RenderEngine struct {
	opts RenderOptions
	log  logrus.FieldLogger

	mu            sync.RWMutex
	running       bool
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
}

func NewRenderEngine(opts RenderOptions) *RenderEngine {
	if opts.NavTimeout <= 0 {
		opts.NavTimeout = 20 * time.Second
	}
	if opts.WaitTimeout <= 0 {
		opts.WaitTimeout = 8 * time.Second
	}
	if opts.Settle < 0 {
		opts.Settle = 0
	}
	if opts.UserAgent == "" {
		opts.UserAgent = desktopUserAgent
	}
	if opts.Locale == "" {
		opts.Locale = "ko-KR"
	}
	l := opts.Logger
	if l == nil {
		l = logrus.StandardLogger()
	}
	return &RenderEngine{opts: opts, log: l}
}

func (e *RenderEngine) Start(ctx context.Context) error {
	if e == nil || !e.opts.Enabled {
		return ErrEngineUnavailable
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return nil
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.UserAgent(e.opts.UserAgent),
	)
	if e.opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(e.opts.ExecPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// The first Run launches the browser and must not carry a deadline.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}

	e.allocCancel = allocCancel
	e.browserCtx = browserCtx
	e.browserCancel = browserCancel
	e.running = true
	e.log.Info("[Render] engine started")
	return nil
}

func (e *RenderEngine) Stop() error {
	if e == nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running {
		return nil
	}
	e.browserCancel()
	e.allocCancel()
	e.running = false
	e.log.Info("[Render] engine stopped")
	return nil
}

func (e *RenderEngine) Available() bool {
	if e == nil {
		return false
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.running
}

// RenderHTML returns the fully rendered top-level document.
func (e *RenderEngine) RenderHTML(ctx context.Context, url string) (string, error) {
	tabCtx, done, err := e.openTab(ctx)
	if err != nil {
		return "", err
	}
	defer done()

	opCtx, cancel := context.WithTimeout(tabCtx, e.budget())
	defer cancel()

	if err := e.load(opCtx, url); err != nil {
		return "", fmt.Errorf("render %s: %w", url, err)
	}

	var html string
	if err := chromedp.Run(opCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("render %s: %w", url, err)
	}
	return html, nil
}

// RenderProfile extracts the profile card from the main document and every
// nested frame document, returning the most complete candidate.
func (e *RenderEngine) RenderProfile(ctx context.Context, url string) (domain.PostProfile, error) {
	docs, err := e.renderDocuments(ctx, url, maxRemoteFrameDepth)
	if err != nil {
		return domain.PostProfile{}, err
	}

	candidates := make([]domain.PostProfile, 0, len(docs))
	for _, d := range docs {
		candidates = append(candidates, ExtractFrameProfile(d))
	}
	best, idx := SelectBestFrame(candidates)
	e.log.WithFields(logrus.Fields{"url": url, "frames": len(docs), "picked": idx, "score": FrameScore(best)}).Debug("[Render] profile frames scored")
	return best, nil
}

// maxRemoteFrameDepth bounds how many times a frame living in another
// process is opened in its own tab.
const maxRemoteFrameDepth = 2

// renderGrace covers serialising documents after the page has settled.
const renderGrace = 2 * time.Second

func (e *RenderEngine) budget() time.Duration {
	return e.opts.NavTimeout + e.opts.WaitTimeout + e.opts.Settle + renderGrace
}

// renderDocuments loads url and returns its document followed by every frame
// document in tree order. Frames whose document is not reachable from the
// page's DOM are rendered in a tab of their own, up to depth levels deep.
func (e *RenderEngine) renderDocuments(ctx context.Context, url string, depth int) ([]string, error) {
	tabCtx, done, err := e.openTab(ctx)
	if err != nil {
		return nil, err
	}
	defer done()

	opCtx, cancel := context.WithTimeout(tabCtx, e.budget())
	defer cancel()

	if err := e.load(opCtx, url); err != nil {
		return nil, fmt.Errorf("render %s: %w", url, err)
	}

	docs, remote, err := frameDocuments(opCtx)
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", url, err)
	}
	if depth <= 0 {
		return docs, nil
	}
	for _, u := range remote {
		sub, err := e.renderDocuments(ctx, u, depth-1)
		if err != nil {
			e.log.WithField("frame_url", u).WithError(err).Debug("[Render] remote frame skipped")
			continue
		}
		docs = append(docs, sub...)
	}
	return docs, nil
}

// openTab creates a tab in a fresh browser context and attaches to it. The
// attach runs without a deadline because the tab's event loop lives on the
// context of the first Run; callers bound later actions with child contexts.
func (e *RenderEngine) openTab(ctx context.Context) (context.Context, func(), error) {
	if e == nil {
		return nil, nil, ErrEngineUnavailable
	}
	e.mu.RLock()
	running, browserCtx := e.running, e.browserCtx
	e.mu.RUnlock()
	if !running {
		return nil, nil, ErrEngineUnavailable
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	tabCtx, tabCancel := chromedp.NewContext(browserCtx, chromedp.WithNewBrowserContext())
	stop := context.AfterFunc(ctx, tabCancel)
	done := func() {
		stop()
		tabCancel()
	}

	if err := chromedp.Run(tabCtx); err != nil {
		done()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, nil, ctxErr
		}
		return nil, nil, fmt.Errorf("open tab: %w", err)
	}
	return tabCtx, done, nil
}

// load navigates and waits for network idle, then for a profile marker, then
// settles. ctx must belong to an attached tab.
func (e *RenderEngine) load(ctx context.Context, url string) error {
	navCtx, cancel := context.WithTimeout(ctx, e.opts.NavTimeout)
	defer cancel()

	idle := make(chan struct{}, 1)
	chromedp.ListenTarget(navCtx, func(ev any) {
		if le, ok := ev.(*cdppage.EventLifecycleEvent); ok && le.Name == "networkIdle" {
			select {
			case idle <- struct{}{}:
			default:
			}
		}
	})

	err := chromedp.Run(navCtx,
		emulation.SetUserAgentOverride(e.opts.UserAgent).WithAcceptLanguage(acceptLanguage),
		emulation.SetLocaleOverride().WithLocale(e.opts.Locale),
		chromedp.EmulateViewport(1280, 900),
		cdppage.SetLifecycleEventsEnabled(true),
		chromedp.Navigate(url),
	)
	if err != nil {
		return err
	}

	select {
	case <-idle:
	case <-navCtx.Done():
		if err := ctx.Err(); err != nil {
			return err
		}
	}

	waitCtx, waitCancel := context.WithTimeout(ctx, e.opts.WaitTimeout)
	var ready bool
	_ = chromedp.Run(waitCtx, chromedp.Poll(readyCheck, &ready, chromedp.WithPollingTimeout(e.opts.WaitTimeout)))
	waitCancel()
	if err := ctx.Err(); err != nil {
		return err
	}

	if e.opts.Settle > 0 {
		return chromedp.Run(ctx, chromedp.Sleep(e.opts.Settle))
	}
	return nil
}

// frameDocuments serialises the main document and every frame document
// reachable through a pierced DOM snapshot. It also returns the URLs of
// frames hosted out of process, whose documents the snapshot cannot reach.
func frameDocuments(ctx context.Context) ([]string, []string, error) {
	var (
		docs   []string
		remote []string
	)
	err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		root, err := dom.GetDocument().WithDepth(-1).WithPierce(true).Do(ctx)
		if err != nil {
			return err
		}
		nodes, remoteIDs := walkFrameDocuments(root)
		for _, n := range nodes {
			h, err := dom.GetOuterHTML().WithBackendNodeID(documentElement(n).BackendNodeID).Do(ctx)
			if err != nil {
				continue
			}
			docs = append(docs, h)
		}
		if len(remoteIDs) == 0 {
			return nil
		}
		tree, err := cdppage.GetFrameTree().Do(ctx)
		if err != nil {
			return nil
		}
		urls := frameURLs(tree)
		for _, id := range remoteIDs {
			if u := urls[id]; strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://") {
				remote = append(remote, u)
			}
		}
		return nil
	}))
	if err != nil {
		return nil, nil, err
	}
	if len(docs) == 0 {
		return nil, nil, errors.New("no documents serialised")
	}
	return docs, remote, nil
}

// walkFrameDocuments returns root and every frame document below it in
// document order, descending into shadow roots and nested frames. Frame
// owners without a content document are reported by frame id.
func walkFrameDocuments(root *cdp.Node) ([]*cdp.Node, []cdp.FrameID) {
	var (
		docs   []*cdp.Node
		remote []cdp.FrameID
	)
	var walk func(n *cdp.Node)
	walk = func(n *cdp.Node) {
		if n == nil {
			return
		}
		if n.NodeType == cdp.NodeTypeDocument {
			docs = append(docs, n)
		}
		if isFrameOwner(n) {
			if n.ContentDocument != nil {
				walk(n.ContentDocument)
			} else if n.FrameID != "" {
				remote = append(remote, n.FrameID)
			}
		}
		for _, sr := range n.ShadowRoots {
			walk(sr)
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(root)
	return docs, remote
}

func isFrameOwner(n *cdp.Node) bool {
	switch strings.ToLower(n.LocalName) {
	case "iframe", "frame":
		return true
	}
	return false
}

// documentElement returns the root element of a document node, or the node
// itself when it has no element child.
func documentElement(doc *cdp.Node) *cdp.Node {
	for _, c := range doc.Children {
		if c.NodeType == cdp.NodeTypeElement {
			return c
		}
	}
	return doc
}

// frameURLs flattens a frame tree into frame id to URL.
func frameURLs(tree *cdppage.FrameTree) map[cdp.FrameID]string {
	out := map[cdp.FrameID]string{}
	var walk func(t *cdppage.FrameTree)
	walk = func(t *cdppage.FrameTree) {
		if t == nil {
			return
		}
		if t.Frame != nil {
			out[t.Frame.ID] = t.Frame.URL
		}
		for _, c := range t.ChildFrames {
			walk(c)
		}
	}
	walk(tree)
	return out
}
