package pool

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/tebeka/selenium"

	"github.com/sideruntime/sidesvc/internal/apperr"
)

// HTTPGrid dials sessions against a standalone/hub Selenium Grid reachable
// over HTTP, reading node slot capacity from Grid 4's /status endpoint.
type HTTPGrid struct {
	URL          string
	Capabilities selenium.Capabilities
	HTTPClient   *http.Client
}

// NewHTTPGrid builds a grid client pointed at url with the given WebDriver
// capabilities (browser name, headless flags, and so on).
func NewHTTPGrid(url string, caps selenium.Capabilities) *HTTPGrid {
	return &HTTPGrid{
		URL:          url,
		Capabilities: caps,
		HTTPClient:   &http.Client{Timeout: 5 * time.Second},
	}
}

type gridStatus struct {
	Value struct {
		Nodes []struct {
			Slots []struct {
				Session *struct{} `json:"session"`
			} `json:"slots"`
		} `json:"nodes"`
	} `json:"value"`
}

// Capacity counts free slots across every node reporting to the grid. If
// the grid does not expose Grid 4's node topology (a plain RemoteWebDriver
// endpoint, for instance), it reports a capacity of 1.
func (g *HTTPGrid) Capacity(ctx context.Context) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.URL+"/status", nil)
	if err != nil {
		return 0, apperr.Wrap(apperr.GridUnreachable, err, "build status request")
	}

	resp, err := g.HTTPClient.Do(req)
	if err != nil {
		return 0, apperr.Wrap(apperr.GridUnreachable, err, "query grid status")
	}
	defer resp.Body.Close()

	var status gridStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil || len(status.Value.Nodes) == 0 {
		return 1, nil
	}

	free := 0
	for _, node := range status.Value.Nodes {
		for _, slot := range node.Slots {
			if slot.Session == nil {
				free++
			}
		}
	}
	if free == 0 {
		free = 1
	}
	return free, nil
}

// Dial opens a new WebDriver session against the grid.
func (g *HTTPGrid) Dial(ctx context.Context) (selenium.WebDriver, error) {
	type result struct {
		wd  selenium.WebDriver
		err error
	}
	ch := make(chan result, 1)
	go func() {
		wd, err := selenium.NewRemote(g.Capabilities, g.URL)
		ch <- result{wd, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return nil, apperr.Wrap(apperr.GridUnreachable, r.err, "open session against %q", g.URL)
		}
		return r.wd, nil
	case <-ctx.Done():
		return nil, apperr.Wrap(apperr.GridUnreachable, ctx.Err(), "open session against %q timed out", g.URL)
	}
}

// MultiGrid round-robins Dial calls across several standalone nodes, each
// with capacity one. It backs the optional, Docker-managed Grid Launcher
// (SPEC_FULL.md §4.9): standalone-chrome nodes have no shared /status
// topology the way a Grid 4 hub does, so capacity is simply the node count.
type MultiGrid struct {
	nodes []*HTTPGrid
	next  atomic.Uint64
}

// NewMultiGrid builds a MultiGrid over nodeURLs, each dialed with the same
// capabilities.
func NewMultiGrid(nodeURLs []string, caps selenium.Capabilities) *MultiGrid {
	nodes := make([]*HTTPGrid, len(nodeURLs))
	for i, url := range nodeURLs {
		nodes[i] = NewHTTPGrid(url, caps)
	}
	return &MultiGrid{nodes: nodes}
}

// Capacity reports one slot per managed node.
func (m *MultiGrid) Capacity(ctx context.Context) (int, error) {
	return len(m.nodes), nil
}

// Dial opens a session against the next node in rotation.
func (m *MultiGrid) Dial(ctx context.Context) (selenium.WebDriver, error) {
	if len(m.nodes) == 0 {
		return nil, apperr.New(apperr.GridUnreachable, "no managed grid nodes available")
	}
	idx := m.next.Add(1) % uint64(len(m.nodes))
	return m.nodes[idx].Dial(ctx)
}
