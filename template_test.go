package courier

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTemplateRender(t *testing.T) {
	engine, err := NewTemplateEngine(DefaultTemplateConfig())
	require.NoError(t, err)

	require.NoError(t, engine.Register("greeting.text", `Hello {{.Name | title}}, {{default "friend" .Nick}}`))
	require.NoError(t, engine.Register("greeting.html", `<b>{{.Name}}</b>`))

	out, err := engine.Render("greeting.text", map[string]any{"Name": "ada lovelace", "Nick": ""})
	require.NoError(t, err)
	assert.Equal(t, "Hello Ada Lovelace, friend", out)

	out, err = engine.Render("greeting.html", map[string]any{"Name": "<script>"})
	require.NoError(t, err)
	assert.Equal(t, "<b>&lt;script&gt;</b>", out)

	_, err = engine.Render("missing", nil)
	assert.ErrorIs(t, err, ErrTemplateNotFound)

	assert.Equal(t, []string{"greeting.html", "greeting.text"}, engine.Names())
}

func TestTemplateErrors(t *testing.T) {
	engine, err := NewTemplateEngine(TemplateConfig{})
	require.NoError(t, err)

	err = engine.Register("broken.text", "{{.Name")
	var tmplErr *TemplateError
	require.ErrorAs(t, err, &tmplErr)
	assert.Equal(t, "parse", tmplErr.Operation)

	require.NoError(t, engine.Register("strict.text", "{{.Missing.Field}}"))
	_, err = engine.Render("strict.text", struct{ Name string }{})
	require.ErrorAs(t, err, &tmplErr)
	assert.Equal(t, "render", tmplErr.Operation)
}

func TestUnsafeFunctionsAreOptIn(t *testing.T) {
	engine, err := NewTemplateEngine(TemplateConfig{})
	require.NoError(t, err)
	assert.Error(t, engine.Register("raw.html", `{{unsafeHTML .}}`))

	engine, err = NewTemplateEngine(TemplateConfig{AllowUnsafeFunctions: true})
	require.NoError(t, err)
	require.NoError(t, engine.Register("raw.html", `{{unsafeHTML .}}`))
	out, err := engine.Render("raw.html", "<i>ok</i>")
	require.NoError(t, err)
	assert.Equal(t, "<i>ok</i>", out)
}

func TestRenderMessage(t *testing.T) {
	engine, err := NewTemplateEngine(TemplateConfig{})
	require.NoError(t, err)
	require.NoError(t, engine.Register("reset.subject", "  Reset your password \n"))
	require.NoError(t, engine.Register("reset.text", "Code: {{.}}"))
	require.NoError(t, engine.Register("empty.subject", "nothing else"))

	msg, err := engine.RenderMessage("reset", "1234")
	require.NoError(t, err)
	assert.Equal(t, "Reset your password", msg.Subject)
	assert.Equal(t, "Code: 1234", msg.Text)
	assert.Empty(t, msg.HTML)

	_, err = engine.RenderMessage("empty", nil)
	assert.ErrorIs(t, err, ErrTemplateNotFound)
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "auth"), 0o755))
	files := map[string]string{
		"auth/welcome.html.tmpl": "<p>{{.}}</p>",
		"auth/welcome.text.tmpl": "{{.}}",
		"digest.text.gotmpl":     "digest",
		"README.md":              "ignored",
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
	}

	engine, err := NewTemplateEngine(TemplateConfig{Directory: dir})
	require.NoError(t, err)
	assert.Equal(t, []string{"auth.welcome.html", "auth.welcome.text", "digest.text"}, engine.Names())

	msg, err := engine.RenderMessage("auth.welcome", "hi")
	require.NoError(t, err)
	assert.Equal(t, "<p>hi</p>", msg.HTML)
	assert.Equal(t, "hi", msg.Text)

	_, err = NewTemplateEngine(TemplateConfig{Directory: filepath.Join(dir, "missing")})
	assert.Error(t, err)
}
