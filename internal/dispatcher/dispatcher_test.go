package dispatcher

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tebeka/selenium"

	"github.com/sideruntime/sidesvc/internal/apperr"
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
	return nil, nil
}
func (f *fakeDriver) ResizeWindow(name string, w, h int) error { return nil }
func (f *fakeDriver) PageSource() (string, error)              { return f.pageSource, nil }

type fakeGrid struct{ capacity int }

func (g *fakeGrid) Capacity(ctx context.Context) (int, error) { return g.capacity, nil }
func (g *fakeGrid) Dial(ctx context.Context) (selenium.WebDriver, error) {
	return &fakeDriver{pageSource: "<html>done</html>"}, nil
}

const sideDoc = `{
	"id": "proj", "name": "login", "url": "https://example.test/",
	"tests": [{"id": "t1", "name": "Default", "commands": [
		{"id": "c1", "command": "open", "target": "/"},
		{"id": "c2", "command": "storeText", "target": "id=u", "value": "greeting"}
	]}],
	"suites": [{"id": "s1", "name": "Default", "tests": ["t1"]}]
}`

func newTestDispatcher(t *testing.T, capacity int) *Dispatcher {
	store, err := sidestore.New(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.Save("login", []byte(sideDoc)))

	locks, err := lockrepo.New(t.TempDir(), nil)
	require.NoError(t, err)

	p := pool.New(&fakeGrid{capacity: capacity}, time.Second, "browserName=chrome", nil)
	p.WarmUp(context.Background())

	renderer := template.NewRenderer(t.TempDir(), 1)

	return New(p, locks, store, renderer, time.Minute, 2*time.Second, time.Second, nil)
}

func TestExecuteAny_RunsAgainstAnIdleSession(t *testing.T) {
	d := newTestDispatcher(t, 1)

	result, err := d.ExecuteAny(context.Background(), models.ExecuteRequest{ScriptID: "login"})
	require.NoError(t, err)
	assert.Equal(t, "<html>done</html>", result.PageSource)
	assert.NotEmpty(t, result.SessionID)
}

func TestExecuteAny_NoCapacityWhenPoolEmpty(t *testing.T) {
	d := newTestDispatcher(t, 0)

	_, err := d.ExecuteAny(context.Background(), models.ExecuteRequest{ScriptID: "login"})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.NoCapacity))
}

func TestExecuteAny_LockReleasedAfterRunAllowsAnother(t *testing.T) {
	d := newTestDispatcher(t, 1)

	_, err := d.ExecuteAny(context.Background(), models.ExecuteRequest{ScriptID: "login"})
	require.NoError(t, err)

	_, err = d.ExecuteAny(context.Background(), models.ExecuteRequest{ScriptID: "login"})
	require.NoError(t, err)
}

func TestExecuteOn_UnknownTestFailsWithInvalidReference(t *testing.T) {
	d := newTestDispatcher(t, 1)
	ids := d.Pool.List()
	require.Len(t, ids, 1)

	_, err := d.ExecuteOn(context.Background(), ids[0], models.ExecuteRequest{ScriptID: "login", Test: "no-such-test"})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.InvalidReference))
}

func TestExecuteOn_MissingScriptFailsWithNotFound(t *testing.T) {
	d := newTestDispatcher(t, 1)
	ids := d.Pool.List()
	require.Len(t, ids, 1)

	_, err := d.ExecuteOn(context.Background(), ids[0], models.ExecuteRequest{ScriptID: "missing"})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.NotFound))
}

func TestPickIdleSession_ReturnsNoCapacityWhenAllBusy(t *testing.T) {
	d := newTestDispatcher(t, 1)
	ids := d.Pool.List()
	require.Len(t, ids, 1)

	scoped, err := d.Locks.AcquireScoped(ids[0], time.Minute, 0)
	require.NoError(t, err)
	defer scoped.Release()

	_, err = d.PickIdleSession()
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.NoCapacity))
}
