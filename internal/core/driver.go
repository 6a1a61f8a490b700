package core

import "context"

// Driver is the capability set every mail backend must implement.
//
// Each mutating method reports a local success signal and, on failure,
// records an ErrorRecord readable through LastError. The dispatcher relies on
// both channels: booleans are aggregated across drivers, LastError locates
// which driver's failure to surface.
type Driver interface {
	// Configure applies backend specific options. Unknown keys are ignored.
	Configure(options Options)

	// AddRecipient appends a "To" recipient.
	AddRecipient(address EmailAddress) bool

	// AddCC appends a carbon copy recipient.
	AddCC(address EmailAddress) bool

	// AddBCC appends a blind carbon copy recipient.
	AddBCC(address EmailAddress) bool

	// SetSender sets the "From" address.
	SetSender(address EmailAddress) bool

	// SetReplyTo sets the "Reply-To" address.
	SetReplyTo(address EmailAddress) bool

	// SetSubject sets a sanitized subject line. It cannot fail.
	SetSubject(subject string)

	// SetContentType sets one of multipart/mixed, text/html or text/plain.
	SetContentType(mime string)

	// SetMessage sets the message body.
	SetMessage(message string)

	// SetAltMessage sets the alternative plain text body.
	SetAltMessage(message string)

	// AddAttachment appends an attachment. A backend may refuse it.
	AddAttachment(attachment *Attachment) bool

	// SetEmbeddedImage embeds file under the content ID cid. Backends
	// without inline image support return false with an error recorded.
	SetEmbeddedImage(cid, file, alias string) bool

	// Send attempts delivery. On failure an error is recorded before
	// returning, on success the error is cleared.
	Send(ctx context.Context) bool

	// LastError returns the most recent error or nil.
	LastError() *ErrorRecord

	// Log toggles logging of sent messages.
	Log(enabled bool)
}

// EmailVerifier is implemented by drivers whose provider can verify an
// address, typically a sender identity.
type EmailVerifier interface {
	RequestEmailVerification(ctx context.Context, address EmailAddress) bool
}

// SubscriptionDriver is the capability set of a mailing list backend.
type SubscriptionDriver interface {
	// SetMailingList selects the list by the key the backend understands.
	SetMailingList(list string)

	// SetSubscriber sets the subscriber's address and normalized fields.
	// A nil fields map clears previously stored data.
	SetSubscriber(email string, fields MergeFields)

	// SetContentType sets the preferred email format of the subscriber.
	SetContentType(mime string)

	// DoNotify asks the backend to send its own notification on success.
	DoNotify(send bool)

	// Subscribe adds the subscriber. With force an existing member is updated.
	Subscribe(ctx context.Context, force bool) bool

	// Unsubscribe removes the subscriber. With remove the member is deleted
	// rather than marked unsubscribed.
	Unsubscribe(ctx context.Context, remove bool) bool

	// LastError returns the most recent error or nil.
	LastError() *ErrorRecord
}
