package executor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tebeka/selenium"

	"github.com/sideruntime/sidesvc/internal/apperr"
	"github.com/sideruntime/sidesvc/pkg/models"
)

type fakeElement struct {
	selenium.WebElement
	text    string
	clicked bool
	cleared bool
	sentKey string
}

func (f *fakeElement) Click() error            { f.clicked = true; return nil }
func (f *fakeElement) Clear() error            { f.cleared = true; return nil }
func (f *fakeElement) SendKeys(k string) error { f.sentKey = k; return nil }
func (f *fakeElement) Text() (string, error)   { return f.text, nil }

type fakeDriver struct {
	gotURL   string
	elements map[string]*fakeElement
	missing  map[string]bool
	scripts  []string
	resizedW int
	resizedH int
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{elements: map[string]*fakeElement{}, missing: map[string]bool{}}
}

func (f *fakeDriver) Get(u string) error { f.gotURL = u; return nil }

func (f *fakeDriver) FindElement(by, value string) (selenium.WebElement, error) {
	if f.missing[value] {
		return nil, assert.AnError
	}
	if el, ok := f.elements[value]; ok {
		return el, nil
	}
	return nil, assert.AnError
}

func (f *fakeDriver) ExecuteScript(script string, args []interface{}) (interface{}, error) {
	f.scripts = append(f.scripts, script)
	return "result", nil
}

func (f *fakeDriver) ResizeWindow(name string, width, height int) error {
	f.resizedW, f.resizedH = width, height
	return nil
}

func TestOpen_ResolvesRelativeAgainstBaseURL(t *testing.T) {
	drv := newFakeDriver()
	e := New(drv, "https://example.test/", NewScope(nil), time.Second)

	require.NoError(t, e.Run(models.Command{Command: "open", Target: "/login"}))
	assert.Equal(t, "https://example.test/login", drv.gotURL)
}

func TestClick_ClicksElementFoundByIDLocator(t *testing.T) {
	drv := newFakeDriver()
	el := &fakeElement{}
	drv.elements["go"] = el
	e := New(drv, "", NewScope(nil), time.Second)

	require.NoError(t, e.Run(models.Command{Command: "click", Target: "id=go"}))
	assert.True(t, el.clicked)
}

func TestType_ClearsThenSends(t *testing.T) {
	drv := newFakeDriver()
	el := &fakeElement{}
	drv.elements["u"] = el
	e := New(drv, "", NewScope(nil), time.Second)

	require.NoError(t, e.Run(models.Command{Command: "type", Target: "id=u", Value: "alice"}))
	assert.True(t, el.cleared)
	assert.Equal(t, "alice", el.sentKey)
}

func TestSendKeys_ExpandsKeyTokens(t *testing.T) {
	drv := newFakeDriver()
	el := &fakeElement{}
	drv.elements["u"] = el
	e := New(drv, "", NewScope(nil), time.Second)

	require.NoError(t, e.Run(models.Command{Command: "sendKeys", Target: "id=u", Value: "hi${KEY_ENTER}"}))
	assert.Equal(t, "hi"+selenium.EnterKey, el.sentKey)
}

func TestStoreText_ThenSubstituteInLaterCommand(t *testing.T) {
	drv := newFakeDriver()
	drv.elements["u"] = &fakeElement{text: "Welcome, Bob"}
	drv.elements["v"] = &fakeElement{}
	e := New(drv, "", NewScope(nil), time.Second)

	require.NoError(t, e.Run(models.Command{Command: "storeText", Target: "id=u", Value: "greeting"}))
	require.NoError(t, e.Run(models.Command{Command: "type", Target: "id=v", Value: "${greeting}"}))

	assert.Equal(t, "Welcome, Bob", drv.elements["v"].sentKey)
}

func TestSubstitute_UndefinedVariableFails(t *testing.T) {
	drv := newFakeDriver()
	drv.elements["v"] = &fakeElement{}
	e := New(drv, "", NewScope(nil), time.Second)

	err := e.Run(models.Command{Command: "type", Target: "id=v", Value: "${missing}"})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.UnboundVariable))
}

func TestAssertText_MismatchFailsWithAssertionFailed(t *testing.T) {
	drv := newFakeDriver()
	drv.elements["u"] = &fakeElement{text: "actual"}
	e := New(drv, "", NewScope(nil), time.Second)

	err := e.Run(models.Command{Command: "assertText", Target: "id=u", Value: "expected"})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.AssertionFailed))
}

func TestAssertElementPresent_MissingFailsAfterImplicitWait(t *testing.T) {
	drv := newFakeDriver()
	drv.missing["nope"] = true
	e := New(drv, "", NewScope(nil), 20*time.Millisecond)

	start := time.Now()
	err := e.Run(models.Command{Command: "assertElementPresent", Target: "id=nope"})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.AssertionFailed))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestBadLocator_UnknownPrefixFails(t *testing.T) {
	drv := newFakeDriver()
	e := New(drv, "", NewScope(nil), time.Second)

	err := e.Run(models.Command{Command: "click", Target: "weird=foo"})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.BadLocator))
}

func TestSetWindowSize_ParsesWxHFormat(t *testing.T) {
	drv := newFakeDriver()
	e := New(drv, "", NewScope(nil), time.Second)

	require.NoError(t, e.Run(models.Command{Command: "setWindowSize", Target: "1024x768"}))
	assert.Equal(t, 1024, drv.resizedW)
	assert.Equal(t, 768, drv.resizedH)
}

func TestExecuteScript_StoresResultWhenValueIsBindingName(t *testing.T) {
	drv := newFakeDriver()
	drv.elements["v"] = &fakeElement{}
	e := New(drv, "", NewScope(nil), time.Second)

	require.NoError(t, e.Run(models.Command{Command: "executeScript", Target: "return 1+1", Value: "sum"}))
	require.NoError(t, e.Run(models.Command{Command: "type", Target: "id=v", Value: "${sum}"}))
	assert.Equal(t, "result", drv.elements["v"].sentKey)
}
