package core

import "strings"

// Email formats a subscriber may prefer.
const (
	FormatHTML = "html"
	FormatText = "text"
)

// Subscription holds the state shared by subscription drivers. Drivers embed
// it and add Subscribe and Unsubscribe.
type Subscription struct {
	List   string
	Email  string
	Fields MergeFields
	Format string
	Notify bool

	err *ErrorRecord
}

// NewSubscription creates subscription state with the text format selected.
func NewSubscription() Subscription {
	return Subscription{Format: FormatText}
}

// SetMailingList selects the list.
func (s *Subscription) SetMailingList(list string) {
	s.List = strings.TrimSpace(list)
}

// SetSubscriber sets the subscriber's address and fields. A nil map clears
// previously stored fields.
func (s *Subscription) SetSubscriber(email string, fields MergeFields) {
	s.Email = strings.TrimSpace(email)
	s.Fields = fields
}

// SetContentType maps multipart/mixed and text/html to the html format and
// anything else to text.
func (s *Subscription) SetContentType(mime string) {
	switch strings.ToLower(strings.TrimSpace(mime)) {
	case ContentTypeMixed, ContentTypeHTML:
		s.Format = FormatHTML
	default:
		s.Format = FormatText
	}
}

// DoNotify toggles provider side notification.
func (s *Subscription) DoNotify(send bool) {
	s.Notify = send
}

// LastError returns the most recent error or nil.
func (s *Subscription) LastError() *ErrorRecord {
	return s.err
}

// Fail records an error.
func (s *Subscription) Fail(message string, code int) {
	s.err = NewErrorRecord(message, code)
}

// Succeed clears the recorded error.
func (s *Subscription) Succeed() {
	s.err = nil
}

// Validate checks that a list and a subscriber are set. verb is "subscribe"
// or "unsubscribe" and appears in the recorded message.
func (s *Subscription) Validate(verb string) bool {
	switch {
	case s.List == "":
		s.Fail("Failed to "+verb+" because no mailing list has been set.", 0)
		return false
	case s.Email == "":
		s.Fail("Failed to "+verb+" because no subscriber has been set.", 0)
		return false
	}
	return true
}

// FieldString returns a top level field as a string.
func (s *Subscription) FieldString(key string) string {
	v, _ := s.Fields[key].(string)
	return v
}
