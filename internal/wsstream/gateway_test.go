package wsstream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tebeka/selenium"

	"github.com/sideruntime/sidesvc/internal/dispatcher"
	"github.com/sideruntime/sidesvc/internal/lockrepo"
	"github.com/sideruntime/sidesvc/internal/pool"
	"github.com/sideruntime/sidesvc/internal/sidestore"
	"github.com/sideruntime/sidesvc/internal/template"
	"github.com/sideruntime/sidesvc/pkg/models"
)

type fakeElement struct {
	selenium.WebElement
	text string
}

func (f *fakeElement) Click() error          { return nil }
func (f *fakeElement) Clear() error          { return nil }
func (f *fakeElement) SendKeys(string) error { return nil }
func (f *fakeElement) Text() (string, error) { return f.text, nil }

type fakeDriver struct {
	selenium.WebDriver
	pageSource string
}

func (f *fakeDriver) Get(string) error { return nil }
func (f *fakeDriver) CurrentURL() (string, error) {
	return "https://example.test/", nil
}
func (f *fakeDriver) Quit() error { return nil }
func (f *fakeDriver) FindElement(by, value string) (selenium.WebElement, error) {
	return &fakeElement{text: "hello"}, nil
}
func (f *fakeDriver) ExecuteScript(script string, args []interface{}) (interface{}, error) {
	return "42", nil
}
func (f *fakeDriver) ResizeWindow(name string, w, h int) error { return nil }
func (f *fakeDriver) PageSource() (string, error)              { return f.pageSource, nil }

type fakeGrid struct{ capacity int }

func (g *fakeGrid) Capacity(ctx context.Context) (int, error) { return g.capacity, nil }
func (g *fakeGrid) Dial(ctx context.Context) (selenium.WebDriver, error) {
	return &fakeDriver{pageSource: "<html>live</html>"}, nil
}

const sideDoc = `{
	"id": "proj", "name": "login", "url": "https://example.test/",
	"tests": [{"id": "t1", "name": "Default", "commands": [
		{"id": "c1", "command": "open", "target": "/"}
	]}],
	"suites": [{"id": "s1", "name": "Default", "tests": ["t1"]}]
}`

func newTestGateway(t *testing.T) (*Gateway, *dispatcher.Dispatcher) {
	store, err := sidestore.New(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.Save("login", []byte(sideDoc)))

	locks, err := lockrepo.New(t.TempDir(), nil)
	require.NoError(t, err)

	p := pool.New(&fakeGrid{capacity: 1}, time.Second, "browserName=chrome", nil)
	p.WarmUp(context.Background())

	renderer := template.NewRenderer(t.TempDir(), 1)
	d := dispatcher.New(p, locks, store, renderer, time.Minute, 2*time.Second, time.Second, nil)
	return New(d, time.Minute, nil), d
}

func dialGateway(t *testing.T, gw *Gateway) (*websocket.Conn, *httptest.Server) {
	srv := httptest.NewServer(http.HandlerFunc(gw.HandleConnection))
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	return conn, srv
}

func TestHandleConnection_PinsSessionAndHoldsLock(t *testing.T) {
	gw, d := newTestGateway(t)
	conn, srv := dialGateway(t, gw)
	defer srv.Close()
	defer conn.Close()

	ids := d.Pool.List()
	require.Len(t, ids, 1)
	assert.True(t, d.Locks.IsHeld(ids[0]))
}

func TestExecuteJS_ReturnsScriptResult(t *testing.T) {
	gw, _ := newTestGateway(t)
	conn, srv := dialGateway(t, gw)
	defer srv.Close()
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(models.StreamMessage{Type: "execute_js", Code: "return 1+1"}))

	var resp models.StreamResponse
	require.NoError(t, conn.ReadJSON(&resp))
	assert.Equal(t, "result", resp.Type)
	assert.Equal(t, "42", resp.Data)
}

func TestGetPageSource_ReturnsCurrentSource(t *testing.T) {
	gw, _ := newTestGateway(t)
	conn, srv := dialGateway(t, gw)
	defer srv.Close()
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(models.StreamMessage{Type: "get_page_source"}))

	var resp models.StreamResponse
	require.NoError(t, conn.ReadJSON(&resp))
	assert.Equal(t, "result", resp.Type)
	assert.Equal(t, "<html>live</html>", resp.Data)
}

func TestExecuteSide_RunsStoredScriptAgainstPinnedSession(t *testing.T) {
	gw, _ := newTestGateway(t)
	conn, srv := dialGateway(t, gw)
	defer srv.Close()
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(models.StreamMessage{Type: "execute_side", ScriptID: "login"}))

	var resp models.StreamResponse
	require.NoError(t, conn.ReadJSON(&resp))
	assert.Equal(t, "result", resp.Type)
	assert.Equal(t, "<html>live</html>", resp.Data)
}

func TestExecuteSide_UnknownScriptReturnsErrorEnvelope(t *testing.T) {
	gw, _ := newTestGateway(t)
	conn, srv := dialGateway(t, gw)
	defer srv.Close()
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(models.StreamMessage{Type: "execute_side", ScriptID: "missing"}))

	var resp models.StreamResponse
	require.NoError(t, conn.ReadJSON(&resp))
	assert.Equal(t, "error", resp.Type)
	assert.NotEmpty(t, resp.Message)
}

func TestUnsupportedMessageType_ReturnsErrorEnvelope(t *testing.T) {
	gw, _ := newTestGateway(t)
	conn, srv := dialGateway(t, gw)
	defer srv.Close()
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(models.StreamMessage{Type: "bogus"}))

	var resp models.StreamResponse
	require.NoError(t, conn.ReadJSON(&resp))
	assert.Equal(t, "error", resp.Type)
}

func TestDisconnect_ReleasesLockForNextConnection(t *testing.T) {
	gw, d := newTestGateway(t)
	conn, srv := dialGateway(t, gw)
	defer srv.Close()

	ids := d.Pool.List()
	require.Len(t, ids, 1)
	require.NoError(t, conn.Close())

	assert.Eventually(t, func() bool {
		return !d.Locks.IsHeld(ids[0])
	}, time.Second, 10*time.Millisecond)
}
