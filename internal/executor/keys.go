package executor

import (
	"regexp"

	"github.com/tebeka/selenium"
)

// specialKeys maps the Selenium IDE token vocabulary to WebDriver key
// constants, grounded on the original runner's KEY_MAP (src/runner.py).
var specialKeys = map[string]string{
	"KEY_ENTER":     selenium.EnterKey,
	"KEY_TAB":       selenium.TabKey,
	"KEY_ESCAPE":    selenium.EscapeKey,
	"KEY_BACKSPACE": selenium.BackspaceKey,
	"KEY_DELETE":    selenium.DeleteKey,
	"KEY_UP":        selenium.UpArrowKey,
	"KEY_DOWN":      selenium.DownArrowKey,
	"KEY_LEFT":      selenium.LeftArrowKey,
	"KEY_RIGHT":     selenium.RightArrowKey,
	"KEY_HOME":      selenium.HomeKey,
	"KEY_END":       selenium.EndKey,
	"KEY_PAGEUP":    selenium.PageUpKey,
	"KEY_PAGEDOWN":  selenium.PageDownKey,
	"KEY_SPACE":     selenium.SpaceKey,
	"KEY_F1":        selenium.F1Key,
	"KEY_F2":        selenium.F2Key,
	"KEY_F3":        selenium.F3Key,
	"KEY_F4":        selenium.F4Key,
	"KEY_F5":        selenium.F5Key,
	"KEY_F6":        selenium.F6Key,
	"KEY_F7":        selenium.F7Key,
	"KEY_F8":        selenium.F8Key,
	"KEY_F9":        selenium.F9Key,
	"KEY_F10":       selenium.F10Key,
	"KEY_F11":       selenium.F11Key,
	"KEY_F12":       selenium.F12Key,
}

var keyTokenPattern = regexp.MustCompile(`\$\{(KEY_[A-Z0-9]+)\}`)

// expandKeyTokens replaces every recognized ${KEY_*} token in value with its
// WebDriver key constant. Unrecognized KEY_ tokens are left as literal text.
func expandKeyTokens(value string) string {
	return keyTokenPattern.ReplaceAllStringFunc(value, func(token string) string {
		name := keyTokenPattern.FindStringSubmatch(token)[1]
		if key, ok := specialKeys[name]; ok {
			return key
		}
		return token
	})
}
