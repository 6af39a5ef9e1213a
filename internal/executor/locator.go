package executor

import (
	"strings"

	"github.com/tebeka/selenium"

	"github.com/sideruntime/sidesvc/internal/apperr"
)

var locatorPrefixes = map[string]string{
	"css=":             selenium.ByCSSSelector,
	"xpath=":           selenium.ByXPATH,
	"id=":              selenium.ByID,
	"name=":            selenium.ByName,
	"linkText=":        selenium.ByLinkText,
	"partialLinkText=": selenium.ByPartialLinkText,
	"tagName=":         selenium.ByTagName,
	"className=":       selenium.ByClassName,
}

// resolveLocator parses target as prefix=expr. Bare targets default to css;
// a target starting with "//" defaults to xpath. An unrecognized prefix
// fails with BadLocator (spec.md §4.6).
func resolveLocator(target string) (by, value string, err error) {
	for prefix, locatorBy := range locatorPrefixes {
		if strings.HasPrefix(target, prefix) {
			return locatorBy, strings.TrimPrefix(target, prefix), nil
		}
	}
	if strings.HasPrefix(target, "//") {
		return selenium.ByXPATH, target, nil
	}
	if idx := strings.Index(target, "="); idx > 0 && isBareAlpha(target[:idx]) {
		return "", "", apperr.New(apperr.BadLocator, "unknown locator prefix %q", target[:idx+1])
	}
	return selenium.ByCSSSelector, target, nil
}

// isBareAlpha reports whether s looks like an attempted locator prefix name
// (letters only) rather than part of an ordinary CSS selector such as
// "input[type=submit]".
func isBareAlpha(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z') {
			return false
		}
	}
	return true
}
