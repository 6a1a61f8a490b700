package courier

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lattiq/courier/internal/core"
)

func newTestMailer(t *testing.T, drivers ...*fakeDriver) *Mailer {
	t.Helper()
	list := make([]Driver, len(drivers))
	for i, d := range drivers {
		list[i] = d
	}
	m, err := NewWithDrivers(list...)
	require.NoError(t, err)
	return m
}

func addr(email string) EmailAddress {
	return NewEmailAddress(email, "")
}

func TestBroadcastAggregatesWithoutShortCircuit(t *testing.T) {
	var calls []string
	a := newFakeDriver("a", &calls)
	b := newFakeDriver("b", &calls)
	c := newFakeDriver("c", &calls)
	a.refuse = true
	m := newTestMailer(t, a, b, c)

	assert.False(t, m.AddRecipient(addr("ada@example.com")))
	assert.Equal(t, []string{"a:to", "b:to", "c:to"}, calls)
	assert.Empty(t, a.Recipients)
	assert.Len(t, b.Recipients, 1)
	assert.Len(t, c.Recipients, 1)

	a.refuse = false
	assert.True(t, m.AddRecipient(addr("bob@example.com")))
}

func TestBroadcastSetters(t *testing.T) {
	a := newFakeDriver("a", nil)
	b := newFakeDriver("b", nil)
	m := newTestMailer(t, a, b)

	m.SetSubject("Hi\r\nthere")
	m.SetContentType(ContentTypeHTML)
	m.SetMessage("<p>x</p>")
	m.SetAltMessage("x")
	m.Log(true)
	assert.True(t, m.SetSender(addr("app@example.com")))
	assert.True(t, m.SetReplyTo(addr("help@example.com")))
	assert.True(t, m.AddCC(addr("cc@example.com")))
	assert.True(t, m.AddBCC(addr("bcc@example.com")))
	assert.True(t, m.AddAttachment(NewStringAttachment("a.txt", "a", "")))
	assert.False(t, m.AddAttachment(nil))

	for _, d := range []*fakeDriver{a, b} {
		assert.Equal(t, "Hithere", d.Subject)
		assert.Equal(t, ContentTypeHTML, d.ContentType)
		assert.Equal(t, "<p>x</p>", d.Message)
		assert.Equal(t, "x", d.AltMessage)
		assert.True(t, d.Logging())
		assert.Equal(t, "app@example.com", d.Sender.Email())
		assert.Equal(t, "help@example.com", d.ReplyTo.Email())
		assert.Len(t, d.CC, 1)
		assert.Len(t, d.BCC, 1)
		assert.Len(t, d.Attachments, 1)
	}

	assert.False(t, m.SetEmbeddedImage("logo", "logo.png", ""))
	assert.Equal(t, core.ErrEmbedUnsupported, m.LastError().Message)
}

func TestSendStopsAtFirstSuccess(t *testing.T) {
	var calls []string
	a := newFakeDriver("a", &calls)
	b := newFakeDriver("b", &calls)
	c := newFakeDriver("c", &calls)
	a.sendOK = false
	m := newTestMailer(t, a, b, c)

	assert.True(t, m.Send(context.Background()))
	assert.Equal(t, []string{"a:send", "b:send"}, calls)
	assert.Equal(t, 1, a.sends)
	assert.Equal(t, 1, b.sends)
	assert.Equal(t, 0, c.sends)

	assert.Nil(t, m.LastError())
	require.NotNil(t, a.LastError())
	assert.Equal(t, "a failed", a.LastError().Message)

	m.SetSubject("Again")
	assert.Nil(t, m.LastError())

	// a later failed send reports the first failing driver
	a.sendOK, b.sendOK, c.sendOK = false, false, false
	assert.False(t, m.Send(context.Background()))
	require.NotNil(t, m.LastError())
	assert.Equal(t, "a failed", m.LastError().Message)
}

func TestSendAllFail(t *testing.T) {
	a := newFakeDriver("a", nil)
	b := newFakeDriver("b", nil)
	a.sendOK, b.sendOK = false, false
	m := newTestMailer(t, a, b)

	assert.False(t, m.Send(context.Background()))
	assert.Equal(t, 1, a.sends)
	assert.Equal(t, 1, b.sends)
	assert.Equal(t, "a failed", m.LastError().Message)
	assert.Equal(t, 500, m.LastError().Code)
}

func TestLastErrorOrder(t *testing.T) {
	a := newFakeDriver("a", nil)
	b := newFakeDriver("b", nil)
	c := newFakeDriver("c", nil)
	m := newTestMailer(t, a, b, c)

	assert.Nil(t, m.LastError())

	c.Fail("third", 0)
	b.Fail("second", 0)
	assert.Equal(t, "second", m.LastError().Message)

	b.Succeed()
	assert.Equal(t, "third", m.LastError().Message)
}

func TestAddMailingList(t *testing.T) {
	var calls []string
	a := newFakeDriver("a", &calls)
	a.refuse = true
	m := newTestMailer(t, a)

	ok := m.AddMailingList(MailingList{
		"Recipient": {{Email: "ada@example.com"}},
		"CC":        {{Email: "cc@example.com"}},
		"bcc":       {{Email: "bcc1@example.com"}, {Email: "bcc2@example.com"}},
		"reviewers": {{Email: "skip@example.com"}},
	})
	assert.True(t, ok)
	assert.Equal(t, []string{"a:cc", "a:to", "a:bcc", "a:bcc"}, calls)
	assert.Len(t, a.CC, 1)
	assert.Len(t, a.BCC, 2)
}

func TestAddNamedMailingList(t *testing.T) {
	a := newFakeDriver("a", nil)
	m := newTestMailer(t, a)

	_, err := m.AddNamedMailingList("staff")
	assert.ErrorIs(t, err, ErrUnknownGroup)

	m.source = &MapSource{MailingLists: map[string]MailingList{
		"staff": {"recipient": {{Email: "ops@example.com", Name: "Ops"}}},
	}}
	ok, err := m.AddNamedMailingList("staff")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Ops <ops@example.com>", a.Recipients[0].String())

	_, err = m.AddNamedMailingList("missing")
	assert.ErrorIs(t, err, ErrUnknownGroup)
}

func TestRequestEmailVerificationUsesFirstDriver(t *testing.T) {
	first := verifyingDriver{newFakeDriver("a", nil)}
	second := verifyingDriver{newFakeDriver("b", nil)}
	m, err := NewWithDrivers(first, second)
	require.NoError(t, err)

	assert.True(t, m.RequestEmailVerification(context.Background(), addr("new@example.com")))
	assert.Equal(t, []string{"new@example.com"}, first.verified)
	assert.Empty(t, second.verified)

	plain := newFakeDriver("plain", nil)
	m, err = NewWithDrivers(plain, second)
	require.NoError(t, err)
	assert.False(t, m.RequestEmailVerification(context.Background(), addr("new@example.com")))
	assert.Empty(t, second.verified)
}

func TestNewWithDriversErrors(t *testing.T) {
	_, err := NewWithDrivers()
	assert.ErrorIs(t, err, ErrInvalidConfiguration)

	_, err = NewWithDrivers(newFakeDriver("a", nil), nil)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
}

// testRegistry registers "fake" and collects the drivers it builds.
func testRegistry(built *[]*fakeDriver) *Registry {
	r := NewRegistry()
	r.RegisterMailer("fake", func(cfg DriverConfig) (any, error) {
		d := newFakeDriver(cfg.Settings.Get("name"), nil)
		if cfg.Sender != nil {
			d.Sender = *cfg.Sender
		}
		*built = append(*built, d)
		return d, nil
	})
	r.RegisterMailer("broken", func(DriverConfig) (any, error) {
		return nil, errors.New("missing api key")
	})
	r.RegisterMailer("wrong", func(DriverConfig) (any, error) {
		return struct{}{}, nil
	})
	r.RegisterSubscriber("fake", func(DriverConfig) (any, error) {
		return newFakeSubscription(), nil
	})
	r.RegisterSubscriber("wrong", func(DriverConfig) (any, error) {
		return newFakeDriver("x", nil), nil
	})
	return r
}

func TestNewResolvesGroups(t *testing.T) {
	var built []*fakeDriver
	src := &MapSource{Mailers: map[string]BackendSpec{
		"default": {Driver: "fake", Settings: map[string]string{"name": "d"}},
		"primary": {Driver: "FAKE", Settings: map[string]string{"name": "p"}, Sender: &Address{Email: "app@example.com"}},
	}}

	m, err := New(DefaultConfig(), WithRegistry(testRegistry(&built)), WithConfigSource(src))
	require.NoError(t, err)
	assert.Equal(t, []string{"fake"}, m.Drivers())
	require.Len(t, built, 1)
	assert.Equal(t, "d", built[0].name)

	built = nil
	_, err = New(DefaultConfig(),
		WithRegistry(testRegistry(&built)),
		WithConfigSource(src),
		WithGroup("primary"),
		WithBackend(BackendSpec{Driver: "fake", Settings: map[string]string{"name": "inline"}}),
	)
	require.NoError(t, err)
	require.Len(t, built, 2)
	assert.Equal(t, "p", built[0].name)
	assert.Equal(t, "app@example.com", built[0].Sender.Email())
	assert.Equal(t, "inline", built[1].name)
}

func TestNewErrors(t *testing.T) {
	var built []*fakeDriver
	src := &MapSource{Mailers: map[string]BackendSpec{
		"broken":  {Driver: "broken"},
		"wrong":   {Driver: "wrong"},
		"unknown": {Driver: "carrier-pigeon"},
		"empty":   {},
	}}

	tests := []struct {
		name    string
		opts    []Option
		wantErr error
	}{
		{name: "no source", opts: []Option{WithGroup("primary")}, wantErr: ErrUnknownGroup},
		{name: "unknown group", opts: []Option{WithConfigSource(src), WithGroup("primary")}, wantErr: ErrUnknownGroup},
		{name: "empty spec", opts: []Option{WithConfigSource(src), WithGroup("empty")}, wantErr: ErrInvalidConfiguration},
		{name: "empty inline spec", opts: []Option{WithBackend(BackendSpec{})}, wantErr: ErrInvalidConfiguration},
		{name: "unknown driver", opts: []Option{WithConfigSource(src), WithGroup("unknown")}, wantErr: ErrUnknownDriver},
		{name: "factory error", opts: []Option{WithConfigSource(src), WithGroup("broken")}, wantErr: ErrInvalidConfiguration},
		{name: "contract violation", opts: []Option{WithConfigSource(src), WithGroup("wrong")}, wantErr: ErrContractViolation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := append([]Option{WithRegistry(testRegistry(&built))}, tt.opts...)
			m, err := New(DefaultConfig(), opts...)
			assert.Nil(t, m)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	_, err := New(DefaultConfig(), WithRegistry(testRegistry(&built)), WithConfigSource(src), WithGroup("wrong"))
	var contractErr *ContractError
	require.ErrorAs(t, err, &contractErr)
	assert.Equal(t, "wrong", contractErr.Driver)
	assert.Equal(t, "Driver", contractErr.Contract)

	_, err = New(Config{Backends: []Backend{{Group: "a", Spec: &BackendSpec{Driver: "fake"}}}})
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
}

func TestSendRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := NewMetrics(reg)
	require.NoError(t, err)

	a := newFakeDriver("a", nil)
	b := newFakeDriver("b", nil)
	a.sendOK = false
	m := newTestMailer(t, a, b)
	m.ids = []string{"primary", "backup"}
	m.metrics = metrics

	require.True(t, m.Send(context.Background()))
	assert.Equal(t, 1.0, counterValue(t, reg, "courier_send_attempts_total", map[string]string{"driver": "primary", "result": "failure"}))
	assert.Equal(t, 1.0, counterValue(t, reg, "courier_send_attempts_total", map[string]string{"driver": "backup", "result": "success"}))
}

func TestApplyTemplate(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
	}
	write("welcome.subject.tmpl", "Welcome {{.Name}}\n")
	write("welcome.html.tmpl", "<p>Hi {{.Name}}</p>")
	write("welcome.text.tmpl", "Hi {{.Name}}")
	write("note.text.tmpl", "Plain {{.Name}}")

	var built []*fakeDriver
	m, err := New(DefaultConfig(),
		WithRegistry(testRegistry(&built)),
		WithBackend(BackendSpec{Driver: "fake"}),
		WithTemplates(dir),
	)
	require.NoError(t, err)
	require.NotNil(t, m.Templates())

	data := map[string]string{"Name": "<Ada>"}
	require.NoError(t, m.ApplyTemplate("welcome", data))
	d := built[0]
	assert.Equal(t, "Welcome <Ada>", d.Subject)
	assert.Equal(t, ContentTypeHTML, d.ContentType)
	assert.Equal(t, "<p>Hi &lt;Ada&gt;</p>", d.Message)
	assert.Equal(t, "Hi <Ada>", d.AltMessage)

	require.NoError(t, m.ApplyTemplate("note", data))
	assert.Equal(t, ContentTypeText, d.ContentType)
	assert.Equal(t, "Plain <Ada>", d.Message)

	assert.ErrorIs(t, m.ApplyTemplate("missing", data), ErrTemplateNotFound)

	plain := newTestMailer(t, newFakeDriver("a", nil))
	assert.Error(t, plain.ApplyTemplate("welcome", data))
}
