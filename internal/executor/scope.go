package executor

import (
	"regexp"
	"strings"
	"sync"

	"github.com/sideruntime/sidesvc/internal/apperr"
)

// Scope is the per-run variable mapping storeText writes into and ${name}
// substitution reads from (spec.md §4.6).
type Scope struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewScope builds an empty variable scope, optionally seeded with run
// parameters so ${paramName} resolves the same way ${storedName} does.
func NewScope(seed map[string]string) *Scope {
	values := make(map[string]string, len(seed))
	for k, v := range seed {
		values[k] = v
	}
	return &Scope{values: values}
}

// Set binds name to value, overwriting any prior binding.
func (s *Scope) Set(name, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[name] = value
}

// Get returns name's binding.
func (s *Scope) Get(name string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[name]
	return v, ok
}

var variableTokenPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Substitute replaces every ${name} token in s with its bound value. Tokens
// naming a KEY_* special key are left untouched — expandKeyTokens handles
// those separately for sendKeys. An unbound, non-KEY name fails with
// UnboundVariable.
func (s *Scope) Substitute(input string) (string, error) {
	var firstErr error
	out := variableTokenPattern.ReplaceAllStringFunc(input, func(token string) string {
		if firstErr != nil {
			return token
		}
		name := variableTokenPattern.FindStringSubmatch(token)[1]
		if strings.HasPrefix(name, "KEY_") {
			return token
		}
		value, ok := s.Get(name)
		if !ok {
			firstErr = apperr.New(apperr.UnboundVariable, "undefined variable %q", name)
			return token
		}
		return value
	})
	if firstErr != nil {
		return "", firstErr
	}
	return out, nil
}
