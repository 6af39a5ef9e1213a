package template

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sideruntime/sidesvc/internal/apperr"
)

func TestRender_ParamSubstitution(t *testing.T) {
	r := NewRenderer(t.TempDir(), 1)
	out, err := r.Render([]byte(`{"name": "{{ .name }}"}`), map[string]string{"name": "Bob"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"name": "Bob"}`, string(out))
}

func TestRender_DeterministicWithoutStochasticHelpers(t *testing.T) {
	r1 := NewRenderer(t.TempDir(), 1)
	r2 := NewRenderer(t.TempDir(), 99) // different seed, no stochastic helpers used

	doc := []byte(`{"greeting": "hi {{ .who }}"}`)
	out1, err := r1.Render(doc, map[string]string{"who": "alice"})
	require.NoError(t, err)
	out2, err := r2.Render(doc, map[string]string{"who": "alice"})
	require.NoError(t, err)

	assert.Equal(t, out1, out2)
}

func TestRender_UndefinedParamFails(t *testing.T) {
	r := NewRenderer(t.TempDir(), 1)
	_, err := r.Render([]byte(`{{ .missing }}`), map[string]string{})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.TemplateRender))
}

func TestRender_RandomIntInRange(t *testing.T) {
	r := NewRenderer(t.TempDir(), 42)
	out, err := r.Render([]byte(`{{ randomInt 5 5 }}`), nil)
	require.NoError(t, err)
	assert.Equal(t, "5", string(out))
}

func TestRender_RandomStringLength(t *testing.T) {
	r := NewRenderer(t.TempDir(), 42)
	out, err := r.Render([]byte(`{{ randomString 12 }}`), nil)
	require.NoError(t, err)
	assert.Len(t, out, 12)
}

func TestRender_FakerName(t *testing.T) {
	r := NewRenderer(t.TempDir(), 7)
	out, err := r.Render([]byte(`{{ (faker).Name }}`), nil)
	require.NoError(t, err)
	assert.NotEmpty(t, out)
}

func TestRender_JSFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "snippet.js"), []byte("console.log('hi');\n"), 0o644))

	r := NewRenderer(dir, 1)
	out, err := r.Render([]byte(`{"comment": "{{ jsFile "snippet.js" }}"}`), nil)
	require.NoError(t, err)
	assert.Contains(t, string(out), `console.log`)
}

func TestRender_JSFileMissing(t *testing.T) {
	r := NewRenderer(t.TempDir(), 1)
	_, err := r.Render([]byte(`{{ jsFile "missing.js" }}`), nil)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.TemplateResource))
}

func TestRender_JSFileEscapesDirectory(t *testing.T) {
	r := NewRenderer(t.TempDir(), 1)
	_, err := r.Render([]byte(`{{ jsFile "../secret.js" }}`), nil)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.TemplateResource))
}
