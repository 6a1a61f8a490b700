package ses

import (
	"context"
	"errors"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	"github.com/lattiq/courier/internal/core"
	"github.com/lattiq/courier/internal/mime"
)

// Name is the driver identifier.
const Name = "aws_ses"

// Client is the subset of the SES API used by the provider.
type Client interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
	SendRawEmail(ctx context.Context, params *ses.SendRawEmailInput, optFns ...func(*ses.Options)) (*ses.SendRawEmailOutput, error)
	VerifyEmailIdentity(ctx context.Context, params *ses.VerifyEmailIdentityInput, optFns ...func(*ses.Options)) (*ses.VerifyEmailIdentityOutput, error)
}

// Provider implements the mail driver contract for AWS SES.
type Provider struct {
	core.Envelope

	client    Client
	configSet string
	logger    *slog.Logger
}

// NewProvider creates a new AWS SES provider.
//
// Credentials come from the driver credentials (username is the access key
// id, password the secret), the access_key/secret_key settings, or the
// default AWS chain, in that order.
func NewProvider(cfg core.DriverConfig) (*Provider, error) {
	region := cfg.Settings.Get("region")
	if region == "" {
		return nil, core.NewValidationError("region", "AWS region is required")
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}

	accessKey, secretKey := cfg.Settings.Get("access_key"), cfg.Settings.Get("secret_key")
	if cfg.Credentials != nil {
		accessKey, secretKey = cfg.Credentials.Username(), cfg.Credentials.Password()
	}
	if accessKey != "" {
		if secretKey == "" {
			return nil, core.NewValidationError("secret_key", "secret key is required when access key is provided")
		}
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, cfg.Settings.Get("session_token")),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, core.NewProviderError(Name, "config_error", "failed to load AWS config: "+err.Error())
	}

	return NewWithClient(cfg, ses.NewFromConfig(awsCfg)), nil
}

// NewWithClient creates a provider with a custom client, used for testing.
func NewWithClient(cfg core.DriverConfig, client Client) *Provider {
	return &Provider{
		Envelope:  core.NewEnvelope(cfg),
		client:    client,
		configSet: cfg.Settings.Get("configuration_set"),
		logger:    cfg.Log().With(slog.String("driver", Name)),
	}
}

// Send sends the message. Messages with attachments go through the raw API.
func (p *Provider) Send(ctx context.Context) bool {
	if !p.Validate() {
		return false
	}

	var (
		messageID string
		err       error
	)
	if len(p.Attachments) > 0 {
		messageID, err = p.sendRaw(ctx)
	} else {
		messageID, err = p.sendSimple(ctx)
	}
	if err != nil {
		p.fail("failed to send email", err)
		return false
	}

	p.Succeed()
	p.LogSent(p.logger, Name, messageID)
	return true
}

// RequestEmailVerification asks SES to verify address as a sender identity.
func (p *Provider) RequestEmailVerification(ctx context.Context, address core.EmailAddress) bool {
	_, err := p.client.VerifyEmailIdentity(ctx, &ses.VerifyEmailIdentityInput{
		EmailAddress: aws.String(address.Email()),
	})
	if err != nil {
		p.fail("failed to request email verification", err)
		return false
	}
	p.Succeed()
	return true
}

func (p *Provider) sendSimple(ctx context.Context) (string, error) {
	input := &ses.SendEmailInput{
		Source: aws.String(p.Sender.String()),
		Destination: &types.Destination{
			ToAddresses: core.Strings(p.Recipients),
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data:    aws.String(p.Subject),
				Charset: aws.String("UTF-8"),
			},
			Body: &types.Body{},
		},
	}

	if len(p.CC) > 0 {
		input.Destination.CcAddresses = core.Strings(p.CC)
	}
	if len(p.BCC) > 0 {
		input.Destination.BccAddresses = core.Strings(p.BCC)
	}
	if !p.ReplyTo.IsZero() {
		input.ReplyToAddresses = []string{p.ReplyTo.String()}
	}

	if p.IsHTML() {
		input.Message.Body.Html = &types.Content{Data: aws.String(p.Message), Charset: aws.String("UTF-8")}
		text := p.AltMessage
		if text == "" {
			text = mime.StripTags(p.Message)
		}
		input.Message.Body.Text = &types.Content{Data: aws.String(text), Charset: aws.String("UTF-8")}
	} else {
		input.Message.Body.Text = &types.Content{Data: aws.String(p.Message), Charset: aws.String("UTF-8")}
	}

	if p.configSet != "" {
		input.ConfigurationSetName = aws.String(p.configSet)
	}

	output, err := p.client.SendEmail(ctx, input)
	if err != nil {
		return "", err
	}
	return aws.ToString(output.MessageId), nil
}

func (p *Provider) sendRaw(ctx context.Context) (string, error) {
	msg, err := mime.Build(&p.Envelope, mime.Options{OmitBcc: true})
	if err != nil {
		return "", err
	}

	input := &ses.SendRawEmailInput{
		Source:       aws.String(p.Sender.Email()),
		Destinations: recipients(&p.Envelope),
		RawMessage:   &types.RawMessage{Data: msg.Bytes()},
	}
	if p.configSet != "" {
		input.ConfigurationSetName = aws.String(p.configSet)
	}

	output, err := p.client.SendRawEmail(ctx, input)
	if err != nil {
		return "", err
	}
	return aws.ToString(output.MessageId), nil
}

// fail records err using the HTTP status of the SES response as code.
func (p *Provider) fail(message string, err error) {
	code := 0
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		code = respErr.HTTPStatusCode()
	}
	p.logger.Debug(message, slog.Any("error", err))
	p.Fail(message+": "+err.Error(), code)
}

func recipients(env *core.Envelope) []string {
	all := make([]string, 0, env.TotalRecipients())
	for _, list := range [][]core.EmailAddress{env.Recipients, env.CC, env.BCC} {
		for _, a := range list {
			all = append(all, a.Email())
		}
	}
	return all
}
