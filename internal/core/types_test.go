package core

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmailAddress(t *testing.T) {
	tests := []struct {
		name      string
		email     string
		display   string
		want      string
		wantEmail string
	}{
		{name: "bare", email: "ada@example.com", want: "ada@example.com", wantEmail: "ada@example.com"},
		{name: "with name", email: "ada@example.com", display: "Ada", want: "Ada <ada@example.com>", wantEmail: "ada@example.com"},
		{name: "trimmed", email: "  ada@example.com ", display: " Ada ", want: "Ada <ada@example.com>", wantEmail: "ada@example.com"},
		{name: "encoded name", email: "jo@example.com", display: "Jösé", want: "=?UTF-8?q?J=C3=B6s=C3=A9?= <jo@example.com>", wantEmail: "jo@example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewEmailAddress(tt.email, tt.display)
			assert.Equal(t, tt.want, a.String())
			assert.Equal(t, tt.wantEmail, a.Email())
			assert.False(t, a.IsZero())
		})
	}

	assert.True(t, EmailAddress{}.IsZero())
}

func TestCredentialsHidePassword(t *testing.T) {
	c := NewCredentials("api", "secret")
	assert.Equal(t, "api", c.Username())
	assert.Equal(t, "secret", c.Password())
	assert.Equal(t, map[string]string{"username": "api", "password": "secret"}, c.AsMap())
	assert.NotContains(t, c.String(), "secret")
}

func TestErrorRecord(t *testing.T) {
	assert.Equal(t, "boom", NewErrorRecord("boom", 0).Error())
	assert.Equal(t, "boom (code 500)", NewErrorRecord("boom", 500).Error())
}

func TestProviderSettings(t *testing.T) {
	ps := ProviderSettings{"port": "2525", "bad": "x", "flag": "true", "empty": ""}

	assert.Equal(t, "2525", ps.Get("port"))
	assert.Equal(t, "def", ps.GetOr("empty", "def"))
	assert.Equal(t, "def", ps.GetOr("missing", "def"))
	assert.Equal(t, 2525, ps.Int("port", 25))
	assert.Equal(t, 25, ps.Int("bad", 25))
	assert.True(t, ps.Bool("flag"))
	assert.False(t, ps.Bool("bad"))

	ps.Set("region", "eu-west-1")
	assert.Equal(t, "eu-west-1", ps.Get("region"))
}

func TestAttachmentName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"report.pdf", "report.pdf"},
		{"/var/tmp/report.pdf", "report.pdf"},
		{`C:\Users\ada\report.pdf`, "report.pdf"},
		{"dir/sub/", "sub"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NewDataAttachment(tt.in, []byte("x"), "").Name())
		})
	}
}

func TestAttachmentContentType(t *testing.T) {
	assert.Equal(t, "application/pdf", NewDataAttachment("a.PDF", nil, "").MIME())
	assert.Equal(t, "application/octet-stream", NewDataAttachment("blob", nil, "").MIME())
	assert.Equal(t, "text/plain; charset=utf-8", NewStringAttachment("notes", "hello", "").MIME())
	assert.Equal(t, "text/x-custom", NewStringAttachment("a.txt", "hello", "text/x-custom").MIME())
}

func TestAttachmentData(t *testing.T) {
	a := NewStringAttachment("a.txt", strings.Repeat("a", 100), "")

	lines := strings.Split(strings.TrimSuffix(a.Data(), "\r\n"), "\r\n")
	require.Len(t, lines, 2)
	assert.Len(t, lines[0], 76)
	assert.Equal(t, "base64", a.Encoding())
	assert.Equal(t, SourceString, a.Type())
	assert.Equal(t, 100, a.Size())

	contents := a.Contents()
	contents[0] = 'b'
	assert.Equal(t, byte('a'), a.Contents()[0])
}

func TestNewFileAttachment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hello.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o600))

	a, err := NewFileAttachment(path, "")
	require.NoError(t, err)
	assert.Equal(t, "hello.txt", a.Name())
	assert.Equal(t, SourceFile, a.Type())
	assert.Equal(t, "text/plain", a.MIME())

	_, err = NewFileAttachment(filepath.Join(t.TempDir(), "missing"), "")
	assert.Error(t, err)
}

func TestNewURLAttachment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.png" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png; charset=binary")
		_, _ = w.Write([]byte("png"))
	}))
	defer srv.Close()

	a, err := NewURLAttachment(context.Background(), srv.Client(), srv.URL+"/img/logo.png", "")
	require.NoError(t, err)
	assert.Equal(t, "logo.png", a.Name())
	assert.Equal(t, "image/png", a.MIME())
	assert.Equal(t, SourceURL, a.Type())
	assert.Equal(t, []byte("png"), a.Contents())

	_, err = NewURLAttachment(context.Background(), srv.Client(), srv.URL+"/missing.png", "")
	assert.Error(t, err)
}

func TestNewURLAttachmentTooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 64)))
	}))
	defer srv.Close()

	limit := MaxURLAttachmentSize
	MaxURLAttachmentSize = 32
	t.Cleanup(func() { MaxURLAttachmentSize = limit })

	_, err := NewURLAttachment(context.Background(), srv.Client(), srv.URL+"/big.bin", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "larger than 32 bytes")

	MaxURLAttachmentSize = 64
	a, err := NewURLAttachment(context.Background(), srv.Client(), srv.URL+"/big.bin", "")
	require.NoError(t, err)
	assert.Len(t, a.Contents(), 64)
}
