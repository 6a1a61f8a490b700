package sendmail

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lattiq/courier/internal/core"
)

type recordingTransport struct {
	from  string
	msg   []byte
	err   error
	calls int
}

func (t *recordingTransport) Deliver(_ context.Context, from string, msg []byte) error {
	t.calls++
	t.from = from
	t.msg = msg
	return t.err
}

func newTestProvider(transport Transport) *Provider {
	sender := core.NewEmailAddress("app@example.com", "App")
	p := NewWithTransport(core.DriverConfig{
		Sender:   &sender,
		Settings: core.ProviderSettings{"message_id_domain": "mail.example.com"},
	}, transport)
	p.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }
	return p
}

func TestSend(t *testing.T) {
	transport := &recordingTransport{}
	p := newTestProvider(transport)
	p.AddRecipient(core.NewEmailAddress("ada@example.com", ""))
	p.SetSubject("Hello")
	p.SetMessage("Hi")

	require.True(t, p.Send(context.Background()))
	assert.Nil(t, p.LastError())
	assert.Equal(t, 1, transport.calls)
	assert.Equal(t, "app@example.com", transport.from)

	raw := string(transport.msg)
	assert.Contains(t, raw, "To: ada@example.com\r\n")
	assert.Contains(t, raw, "Subject: Hello\r\n")
	assert.Contains(t, raw, "@mail.example.com>\r\n")
	assert.Contains(t, raw, "Date: Tue, 02 Jan 2024 03:04:05 +0000\r\n")
}

func TestSendValidation(t *testing.T) {
	transport := &recordingTransport{}
	p := newTestProvider(transport)

	assert.False(t, p.Send(context.Background()))
	assert.Equal(t, 0, transport.calls)
	assert.Contains(t, p.LastError().Message, "no recipient")
}

func TestSendFailures(t *testing.T) {
	transport := &recordingTransport{err: errors.New("exit status 75")}
	p := newTestProvider(transport)
	p.AddRecipient(core.NewEmailAddress("ada@example.com", ""))
	p.SetMessage("Hi")

	assert.False(t, p.Send(context.Background()))
	assert.Equal(t, "Failed to deliver email: exit status 75", p.LastError().Message)

	transport.err = nil
	p.SetContentType("application/json")
	assert.False(t, p.Send(context.Background()))
	assert.Equal(t, "Mail service does not accept the specified content type.", p.LastError().Message)

	p.SetContentType(core.ContentTypeText)
	assert.True(t, p.Send(context.Background()))
	assert.Nil(t, p.LastError())
}

func TestEmbeddedImageUnsupported(t *testing.T) {
	p := newTestProvider(&recordingTransport{})

	assert.False(t, p.SetEmbeddedImage("logo", "logo.png", ""))
	assert.Equal(t, core.ErrEmbedUnsupported, p.LastError().Message)
}

func TestNewProviderDefaultPath(t *testing.T) {
	p, err := NewProvider(core.DriverConfig{})
	require.NoError(t, err)
	assert.Equal(t, CommandTransport{Path: DefaultPath}, p.transport)

	p, err = NewProvider(core.DriverConfig{Settings: core.ProviderSettings{"path": "/opt/bin/sendmail"}})
	require.NoError(t, err)
	assert.Equal(t, CommandTransport{Path: "/opt/bin/sendmail"}, p.transport)
}
