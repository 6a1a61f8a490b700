package ses

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lattiq/courier/internal/core"
)

type fakeClient struct {
	simple   *ses.SendEmailInput
	raw      *ses.SendRawEmailInput
	verified string
	err      error
}

func (c *fakeClient) SendEmail(_ context.Context, in *ses.SendEmailInput, _ ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	if c.err != nil {
		return nil, c.err
	}
	c.simple = in
	return &ses.SendEmailOutput{MessageId: aws.String("simple-1")}, nil
}

func (c *fakeClient) SendRawEmail(_ context.Context, in *ses.SendRawEmailInput, _ ...func(*ses.Options)) (*ses.SendRawEmailOutput, error) {
	if c.err != nil {
		return nil, c.err
	}
	c.raw = in
	return &ses.SendRawEmailOutput{MessageId: aws.String("raw-1")}, nil
}

func (c *fakeClient) VerifyEmailIdentity(_ context.Context, in *ses.VerifyEmailIdentityInput, _ ...func(*ses.Options)) (*ses.VerifyEmailIdentityOutput, error) {
	if c.err != nil {
		return nil, c.err
	}
	c.verified = aws.ToString(in.EmailAddress)
	return &ses.VerifyEmailIdentityOutput{}, nil
}

func newTestProvider(client Client) *Provider {
	sender := core.NewEmailAddress("app@example.com", "App")
	p := NewWithClient(core.DriverConfig{
		Sender:   &sender,
		Settings: core.ProviderSettings{"configuration_set": "tracking"},
	}, client)
	p.AddRecipient(core.NewEmailAddress("ada@example.com", ""))
	p.SetSubject("Hello")
	return p
}

func TestSendSimple(t *testing.T) {
	client := &fakeClient{}
	p := newTestProvider(client)
	p.AddCC(core.NewEmailAddress("cc@example.com", ""))
	p.SetContentType(core.ContentTypeHTML)
	p.SetMessage("<p>Hi <i>Ada</i></p>")

	require.True(t, p.Send(context.Background()))
	require.NotNil(t, client.simple)
	assert.Nil(t, client.raw)

	in := client.simple
	assert.Equal(t, "App <app@example.com>", aws.ToString(in.Source))
	assert.Equal(t, []string{"ada@example.com"}, in.Destination.ToAddresses)
	assert.Equal(t, []string{"cc@example.com"}, in.Destination.CcAddresses)
	assert.Equal(t, []string{"App <app@example.com>"}, in.ReplyToAddresses)
	assert.Equal(t, "Hello", aws.ToString(in.Message.Subject.Data))
	assert.Equal(t, "<p>Hi <i>Ada</i></p>", aws.ToString(in.Message.Body.Html.Data))
	assert.Equal(t, "Hi Ada", aws.ToString(in.Message.Body.Text.Data))
	assert.Equal(t, "tracking", aws.ToString(in.ConfigurationSetName))
}

func TestSendRawWithAttachment(t *testing.T) {
	client := &fakeClient{}
	p := newTestProvider(client)
	p.AddBCC(core.NewEmailAddress("audit@example.com", ""))
	p.SetMessage("Hi")
	p.AddAttachment(core.NewStringAttachment("notes.txt", "hello", ""))

	require.True(t, p.Send(context.Background()))
	require.NotNil(t, client.raw)
	assert.Nil(t, client.simple)

	assert.Equal(t, "app@example.com", aws.ToString(client.raw.Source))
	assert.Equal(t, []string{"ada@example.com", "audit@example.com"}, client.raw.Destinations)

	raw := string(client.raw.RawMessage.Data)
	assert.Contains(t, raw, `filename="notes.txt"`)
	assert.NotContains(t, raw, "Bcc:")
}

func TestSendFailure(t *testing.T) {
	client := &fakeClient{err: errors.New("throttled")}
	p := newTestProvider(client)
	p.SetMessage("Hi")

	assert.False(t, p.Send(context.Background()))
	assert.Equal(t, "failed to send email: throttled", p.LastError().Message)
	assert.Equal(t, 0, p.LastError().Code)
}

func TestRequestEmailVerification(t *testing.T) {
	client := &fakeClient{}
	p := newTestProvider(client)

	require.True(t, p.RequestEmailVerification(context.Background(), core.NewEmailAddress("new@example.com", "New")))
	assert.Equal(t, "new@example.com", client.verified)

	client.err = errors.New("denied")
	assert.False(t, p.RequestEmailVerification(context.Background(), core.NewEmailAddress("new@example.com", "")))
	assert.Contains(t, p.LastError().Message, "denied")
}

func TestNewProviderValidation(t *testing.T) {
	_, err := NewProvider(core.DriverConfig{Settings: core.ProviderSettings{}})
	assert.Error(t, err)

	_, err = NewProvider(core.DriverConfig{Settings: core.ProviderSettings{"region": "eu-west-1", "access_key": "AKIA"}})
	assert.Error(t, err)

	p, err := NewProvider(core.DriverConfig{
		Credentials: core.NewCredentials("AKIA", "secret"),
		Settings:    core.ProviderSettings{"region": "eu-west-1"},
	})
	require.NoError(t, err)
	assert.NotNil(t, p.client)
}
