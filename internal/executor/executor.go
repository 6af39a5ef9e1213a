// Package executor is the Command Executor (spec.md §4.6): it runs one
// Selenium IDE command against a WebDriver handle, resolving locators,
// expanding ${KEY_*} tokens, and threading a per-run variable scope through
// storeText/${name} substitution.
package executor

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tebeka/selenium"

	"github.com/sideruntime/sidesvc/internal/apperr"
	"github.com/sideruntime/sidesvc/pkg/models"
)

// WebDriver is the subset of selenium.WebDriver the executor depends on. A
// real selenium.WebDriver value satisfies this interface structurally.
type WebDriver interface {
	Get(url string) error
	FindElement(by, value string) (selenium.WebElement, error)
	ExecuteScript(script string, args []interface{}) (interface{}, error)
	ResizeWindow(name string, width, height int) error
}

// Executor runs commands against one driver handle for the lifetime of one
// execution (every test the dispatcher selected for one request).
type Executor struct {
	driver       WebDriver
	baseURL      string
	scope        *Scope
	implicitWait time.Duration
}

// New builds an Executor. baseURL resolves relative open targets; scope
// seeds the variable scope (run params, typically); implicitWait bounds
// assertElementPresent's wait.
func New(driver WebDriver, baseURL string, scope *Scope, implicitWait time.Duration) *Executor {
	return &Executor{driver: driver, baseURL: baseURL, scope: scope, implicitWait: implicitWait}
}

// Run dispatches one command by name, per spec.md §4.6's command table.
func (e *Executor) Run(cmd models.Command) error {
	target, err := e.scope.Substitute(cmd.Target)
	if err != nil {
		return apperr.Wrap(apperr.UnboundVariable, err, "command %s target", cmd.Command).WithCommand(cmd.ID, cmd.Command)
	}
	value, err := e.scope.Substitute(cmd.Value)
	if err != nil {
		return apperr.Wrap(apperr.UnboundVariable, err, "command %s value", cmd.Command).WithCommand(cmd.ID, cmd.Command)
	}

	var runErr error
	switch cmd.Command {
	case "open":
		runErr = e.open(target)
	case "click":
		runErr = e.click(target)
	case "clickAndWait":
		runErr = e.clickAndWait(target, value)
	case "type":
		runErr = e.typeInto(target, value)
	case "sendKeys":
		runErr = e.sendKeys(target, value)
	case "pause":
		runErr = e.pause(target, value)
	case "mouseOver":
		runErr = e.mouseOver(target)
	case "setWindowSize":
		runErr = e.setWindowSize(target, value)
	case "assertText":
		runErr = e.assertText(target, value)
	case "assertElementPresent":
		runErr = e.assertElementPresent(target)
	case "storeText":
		runErr = e.storeText(target, value)
	case "executeScript":
		runErr = e.executeScript(target, value)
	default:
		runErr = apperr.New(apperr.CommandFailed, "unsupported command %q", cmd.Command)
	}

	if runErr == nil {
		return nil
	}
	if ae, ok := runErr.(*apperr.Error); ok {
		return ae.WithCommand(cmd.ID, cmd.Command)
	}
	return apperr.Wrap(apperr.CommandFailed, runErr, "command %s failed", cmd.Command).WithCommand(cmd.ID, cmd.Command)
}

func (e *Executor) resolveURL(target string) string {
	if e.baseURL == "" || strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
		return target
	}
	base, err := url.Parse(e.baseURL)
	if err != nil {
		return target
	}
	ref, err := url.Parse(target)
	if err != nil {
		return target
	}
	return base.ResolveReference(ref).String()
}

func (e *Executor) open(target string) error {
	target = strings.TrimSpace(target)
	if target == "" {
		return nil
	}
	return e.driver.Get(e.resolveURL(target))
}

func (e *Executor) findElement(target string) (selenium.WebElement, error) {
	by, value, err := resolveLocator(target)
	if err != nil {
		return nil, err
	}
	el, err := e.driver.FindElement(by, value)
	if err != nil {
		return nil, apperr.Wrap(apperr.CommandFailed, err, "element not found for locator %q", target)
	}
	return el, nil
}

func (e *Executor) click(target string) error {
	el, err := e.findElement(target)
	if err != nil {
		return err
	}
	return el.Click()
}

func (e *Executor) clickAndWait(target, value string) error {
	if err := e.click(target); err != nil {
		return err
	}
	if value != "" {
		return e.pause("", value)
	}
	return nil
}

func (e *Executor) typeInto(target, value string) error {
	el, err := e.findElement(target)
	if err != nil {
		return err
	}
	if err := el.Clear(); err != nil {
		return err
	}
	return el.SendKeys(value)
}

func (e *Executor) sendKeys(target, value string) error {
	el, err := e.findElement(target)
	if err != nil {
		return err
	}
	return el.SendKeys(expandKeyTokens(value))
}

func (e *Executor) pause(target, value string) error {
	raw := target
	if raw == "" {
		raw = value
	}
	ms, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return apperr.Wrap(apperr.CommandFailed, err, "pause: invalid duration %q", raw)
	}
	time.Sleep(time.Duration(ms * float64(time.Millisecond)))
	return nil
}

func (e *Executor) mouseOver(target string) error {
	// tebeka/selenium exposes no ActionChains equivalent; a synthetic hover
	// via JS dispatch is the closest the real WebDriver protocol affords
	// without a browser-specific extension.
	by, value, err := resolveLocator(target)
	if err != nil {
		return err
	}
	script := fmt.Sprintf(
		`var el = document.querySelector(%s); if (el) { el.dispatchEvent(new MouseEvent('mouseover', {bubbles: true})); }`,
		jsSelectorFor(by, value),
	)
	_, err = e.driver.ExecuteScript(script, nil)
	return err
}

func jsSelectorFor(by, value string) string {
	switch by {
	case selenium.ByID:
		return strconv.Quote("#" + value)
	case selenium.ByClassName:
		return strconv.Quote("." + value)
	default:
		return strconv.Quote(value)
	}
}

func (e *Executor) setWindowSize(target, value string) error {
	spec := target
	if spec == "" {
		spec = value
	}
	spec = strings.ToLower(strings.ReplaceAll(strings.TrimSpace(spec), " ", ""))
	if spec == "" {
		return nil
	}
	delimiter := "x"
	if !strings.Contains(spec, "x") {
		delimiter = ","
	}
	parts := strings.SplitN(spec, delimiter, 2)
	if len(parts) != 2 {
		return apperr.New(apperr.CommandFailed, "setWindowSize: malformed size %q", spec)
	}
	width, err := strconv.Atoi(parts[0])
	if err != nil {
		return apperr.Wrap(apperr.CommandFailed, err, "setWindowSize: invalid width")
	}
	height, err := strconv.Atoi(parts[1])
	if err != nil {
		return apperr.Wrap(apperr.CommandFailed, err, "setWindowSize: invalid height")
	}
	return e.driver.ResizeWindow("current", width, height)
}

func (e *Executor) assertText(target, value string) error {
	el, err := e.findElement(target)
	if err != nil {
		return apperr.New(apperr.AssertionFailed, "assertText: %v", err)
	}
	actual, err := el.Text()
	if err != nil {
		return apperr.Wrap(apperr.AssertionFailed, err, "assertText: could not read element text")
	}
	if strings.TrimSpace(actual) != strings.TrimSpace(value) {
		return apperr.New(apperr.AssertionFailed, "assertText: expected %q, got %q", value, actual)
	}
	return nil
}

func (e *Executor) assertElementPresent(target string) error {
	deadline := time.Now().Add(e.implicitWait)
	var lastErr error
	for {
		if _, err := e.findElement(target); err == nil {
			return nil
		} else {
			lastErr = err
		}
		if !time.Now().Before(deadline) {
			return apperr.Wrap(apperr.AssertionFailed, lastErr, "assertElementPresent: %q not found within implicit wait", target)
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func (e *Executor) storeText(target, value string) error {
	el, err := e.findElement(target)
	if err != nil {
		return err
	}
	text, err := el.Text()
	if err != nil {
		return apperr.Wrap(apperr.CommandFailed, err, "storeText: could not read element text")
	}
	if value != "" {
		e.scope.Set(value, text)
	}
	return nil
}

func (e *Executor) executeScript(target, value string) error {
	result, err := e.driver.ExecuteScript(target, nil)
	if err != nil {
		return apperr.Wrap(apperr.CommandFailed, err, "executeScript failed")
	}
	if value != "" {
		e.scope.Set(value, fmt.Sprintf("%v", result))
	}
	return nil
}
