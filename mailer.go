package courier

import (
	"context"

	"github.com/lattiq/courier/internal/core"
)

// Type aliases to re-export core types for the public API.
type (
	Driver             = core.Driver
	EmailVerifier      = core.EmailVerifier
	SubscriptionDriver = core.SubscriptionDriver
	DriverConfig       = core.DriverConfig
	EmailAddress       = core.EmailAddress
	Credentials        = core.Credentials
	Attachment         = core.Attachment
	SourceType         = core.SourceType
	ErrorRecord        = core.ErrorRecord
	Options            = core.Options
	ProviderSettings   = core.ProviderSettings
	SubscriberData     = core.SubscriberData
	MergeFields        = core.MergeFields
	FieldNames         = core.FieldNames
	FieldNamer         = core.FieldNamer
	ValidationError    = core.ValidationError
	ProviderError      = core.ProviderError
)

// Content types accepted by SetContentType.
const (
	ContentTypeMixed = core.ContentTypeMixed
	ContentTypeHTML  = core.ContentTypeHTML
	ContentTypeText  = core.ContentTypeText
	DefaultSubject   = core.DefaultSubject
)

// Attachment sources.
const (
	SourceData   = core.SourceData
	SourceFile   = core.SourceFile
	SourceString = core.SourceString
	SourceURL    = core.SourceURL
)

// Value object constructors.
var (
	NewEmailAddress     = core.NewEmailAddress
	NewCredentials      = core.NewCredentials
	NewErrorRecord      = core.NewErrorRecord
	NewAttachment       = core.NewAttachment
	NewDataAttachment   = core.NewDataAttachment
	NewStringAttachment = core.NewStringAttachment
	NewFileAttachment   = core.NewFileAttachment
	NewURLAttachment    = core.NewURLAttachment
	DefaultFieldNames   = core.DefaultFieldNames
	NewValidationError  = core.NewValidationError
	NewProviderError    = core.NewProviderError
)

// Notifier sends the post-action notification of a Subscriber. *Mailer
// implements it.
type Notifier interface {
	Send(ctx context.Context) bool
	LastError() *ErrorRecord
}

var _ Notifier = (*Mailer)(nil)
