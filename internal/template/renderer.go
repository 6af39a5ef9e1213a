// Package template expands a raw .side document as a text/template before
// it is handed to the script loader (spec.md §4.2). It exposes the fixed
// helper vocabulary the spec names: today, randomInt, randomString, faker,
// jsFile. User params bind into the template root so `{{ .name }}` reaches
// them directly, mirroring how the original's jinja2 Parser exposed
// `{{ parser['name'] }}`.
package template

import (
	"bytes"
	"encoding/json"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"text/template"
	"time"

	"github.com/sideruntime/sidesvc/internal/apperr"
)

// today formats the current local time per a Go time-layout string, e.g.
// today "2006-01-02 15:04:05".
func today(layout string) string {
	return time.Now().Format(layout)
}

// Renderer renders .side templates. It is safe for concurrent use: the
// underlying PRNG is guarded by a mutex so stochastic helpers never race.
type Renderer struct {
	jsDir string

	mu  sync.Mutex
	rng *rand.Rand
}

// NewRenderer builds a Renderer. jsDir roots the jsFile helper; seed feeds
// the stochastic helpers (today excepted) so tests can pin determinism, per
// SPEC_FULL.md §4.2 / spec.md §9 design notes.
func NewRenderer(jsDir string, seed int64) *Renderer {
	return &Renderer{
		jsDir: jsDir,
		rng:   rand.New(rand.NewSource(seed)),
	}
}

// Render expands raw against params, returning the rendered bytes or a
// TemplateRender / TemplateResource apperr.Error.
func (r *Renderer) Render(raw []byte, params map[string]string) ([]byte, error) {
	if params == nil {
		params = map[string]string{}
	}

	tmpl := template.New("side").Option("missingkey=error").Funcs(r.funcMap(params))
	tmpl, err := tmpl.Parse(string(raw))
	if err != nil {
		return nil, apperr.Wrap(apperr.TemplateRender, err, "parse failed")
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, params); err != nil {
		if ae := asAppErr(err); ae != nil {
			return nil, ae
		}
		return nil, apperr.Wrap(apperr.TemplateRender, err, "render failed")
	}
	return buf.Bytes(), nil
}

// funcMap builds the helper vocabulary bound to this renderer's PRNG/jsDir.
// param is niladic so a bare `{{ param.name }}` chains a field/key lookup
// directly onto its result, matching the jinja2-style dict access the
// original scripts use alongside the `{{ .name }}` root binding.
func (r *Renderer) funcMap(params map[string]string) template.FuncMap {
	return template.FuncMap{
		"today":        today,
		"randomInt":    r.randomInt,
		"randomString": r.randomString,
		"faker":        r.faker,
		"jsFile":       r.jsFile,
		"param":        func() map[string]string { return params },
	}
}

func (r *Renderer) randomInt(min, max int) (int, error) {
	if max < min {
		return 0, apperr.New(apperr.TemplateRender, "randomInt: max %d < min %d", max, min)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return min + r.rng.Intn(max-min+1), nil
}

const randomStringAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

func (r *Renderer) randomString(n int) string {
	if n <= 0 {
		return ""
	}
	buf := make([]byte, n)
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range buf {
		buf[i] = randomStringAlphabet[r.rng.Intn(len(randomStringAlphabet))]
	}
	return string(buf)
}

// faker returns a fresh Korean-locale identity generator seeded from this
// renderer's PRNG, one instance per call as the spec requires.
func (r *Renderer) faker() *koreanFaker {
	r.mu.Lock()
	seed := r.rng.Int63()
	r.mu.Unlock()
	return newKoreanFaker(seed)
}

// jsFile reads name from the configured JS directory, recursively renders
// it through the same helper vocabulary, and returns it JSON-escaped (minus
// the surrounding quotes) so it can be embedded as a JSON string value —
// the same trick the original's Parser.js_file used to smuggle raw JS
// through a comment field.
func (r *Renderer) jsFile(name string) (string, error) {
	clean := filepath.Clean(name)
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", apperr.New(apperr.TemplateResource, "invalid js file name %q", name)
	}

	path := filepath.Join(r.jsDir, clean)
	rel, err := filepath.Rel(r.jsDir, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", apperr.New(apperr.TemplateResource, "js file %q escapes js_dir", name)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return "", apperr.Wrap(apperr.TemplateResource, err, "js file %q not found", name)
	}

	rendered, err := r.Render(content, nil)
	if err != nil {
		return "", err
	}

	escaped, err := json.Marshal(string(rendered))
	if err != nil {
		return "", apperr.Wrap(apperr.TemplateRender, err, "js file %q failed to escape", name)
	}
	return string(escaped[1 : len(escaped)-1]), nil
}

// asAppErr unwraps a template execution error down to the *apperr.Error a
// helper returned, if any, so callers see TemplateResource instead of a
// generic TemplateRender.
func asAppErr(err error) *apperr.Error {
	for err != nil {
		if ae, ok := err.(*apperr.Error); ok {
			return ae
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return nil
		}
		err = u.Unwrap()
	}
	return nil
}
