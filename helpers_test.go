package courier

import (
	"context"

	"github.com/lattiq/courier/internal/core"
)

// fakeDriver records calls and returns configurable results.
type fakeDriver struct {
	core.Envelope

	name     string
	calls    *[]string
	refuse   bool
	sendOK   bool
	sends    int
	verified []string
}

func newFakeDriver(name string, calls *[]string) *fakeDriver {
	return &fakeDriver{
		Envelope: core.NewEnvelope(core.DriverConfig{}),
		name:     name,
		calls:    calls,
		sendOK:   true,
	}
}

func (d *fakeDriver) record(op string) {
	if d.calls != nil {
		*d.calls = append(*d.calls, d.name+":"+op)
	}
}

func (d *fakeDriver) AddRecipient(a EmailAddress) bool {
	d.record("to")
	if d.refuse {
		d.Fail(d.name+" refused recipient", 0)
		return false
	}
	return d.Envelope.AddRecipient(a)
}

func (d *fakeDriver) AddCC(a EmailAddress) bool {
	d.record("cc")
	return d.Envelope.AddCC(a)
}

func (d *fakeDriver) AddBCC(a EmailAddress) bool {
	d.record("bcc")
	return d.Envelope.AddBCC(a)
}

func (d *fakeDriver) Send(context.Context) bool {
	d.record("send")
	d.sends++
	if !d.sendOK {
		d.Fail(d.name+" failed", 500)
		return false
	}
	d.Succeed()
	return true
}

// verifyingDriver also implements EmailVerifier.
type verifyingDriver struct {
	*fakeDriver
}

func (d verifyingDriver) RequestEmailVerification(_ context.Context, a EmailAddress) bool {
	d.verified = append(d.verified, a.Email())
	return true
}

// fakeSubscription stores the normalized data it receives.
type fakeSubscription struct {
	core.Subscription

	ok  bool
	ops []string
}

func newFakeSubscription() *fakeSubscription {
	return &fakeSubscription{Subscription: core.NewSubscription(), ok: true}
}

func (s *fakeSubscription) Subscribe(_ context.Context, force bool) bool {
	if !s.Validate("subscribe") {
		return false
	}
	s.ops = append(s.ops, "subscribe")
	if !s.ok {
		s.Fail("list rejected member", 400)
		return false
	}
	s.Succeed()
	return true
}

func (s *fakeSubscription) Unsubscribe(_ context.Context, remove bool) bool {
	if !s.Validate("unsubscribe") {
		return false
	}
	s.ops = append(s.ops, "unsubscribe")
	if !s.ok {
		s.Fail("list rejected member", 400)
		return false
	}
	s.Succeed()
	return true
}

// namedSubscription declares custom field names.
type namedSubscription struct {
	*fakeSubscription
}

func (namedSubscription) FieldNames() FieldNames {
	return FieldNames{FirstName: "fname", City: "town", Address: "addr"}
}

// fakeNotifier is a Notifier with a fixed outcome.
type fakeNotifier struct {
	ok    bool
	err   *ErrorRecord
	sends int
}

func (n *fakeNotifier) Send(context.Context) bool {
	n.sends++
	return n.ok
}

func (n *fakeNotifier) LastError() *ErrorRecord { return n.err }
