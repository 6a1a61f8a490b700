// Package mailgun manages Mailgun mailing list members.
package mailgun

import (
	"context"
	"log/slog"
	"strings"

	"github.com/mailgun/mailgun-go/v4"

	"github.com/lattiq/courier/internal/core"
	mgprovider "github.com/lattiq/courier/internal/providers/mailgun"
)

// Name is the driver identifier.
const Name = "mailgun"

// Client is the subset of the Mailgun members API used by the subscriber.
type Client interface {
	CreateMember(ctx context.Context, merge bool, address string, prototype mailgun.Member) error
	UpdateMember(ctx context.Context, member, list string, prototype mailgun.Member) (mailgun.Member, error)
	DeleteMember(ctx context.Context, member, list string) error
}

// Subscriber implements the subscription driver contract for Mailgun lists.
// The mailing list is the list address, e.g. news@mg.example.com.
type Subscriber struct {
	core.Subscription

	client Client
	logger *slog.Logger
}

// NewSubscriber creates a Mailgun subscriber from the same settings as the
// Mailgun mail provider.
func NewSubscriber(cfg core.DriverConfig) (*Subscriber, error) {
	client, err := mgprovider.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	s := NewWithClient(cfg, client)
	s.SetMailingList(cfg.Settings.Get("mailing_list"))
	return s, nil
}

// NewWithClient creates a subscriber with a custom client, used for testing.
func NewWithClient(cfg core.DriverConfig, client Client) *Subscriber {
	return &Subscriber{
		Subscription: core.NewSubscription(),
		client:       client,
		logger:       cfg.Log().With(slog.String("driver", Name)),
	}
}

// Subscribe adds the member as subscribed. With force an existing member is
// updated in place.
func (s *Subscriber) Subscribe(ctx context.Context, force bool) bool {
	if !s.Validate("subscribe") {
		return false
	}

	err := s.client.CreateMember(ctx, force, s.List, mailgun.Member{
		Address:    s.Email,
		Name:       s.name(),
		Subscribed: mailgun.Subscribed,
		Vars:       s.vars(),
	})
	if err != nil {
		s.fail("failed to subscribe", err)
		return false
	}

	s.Succeed()
	return true
}

// Unsubscribe deletes the member when remove is set, otherwise marks it
// unsubscribed.
func (s *Subscriber) Unsubscribe(ctx context.Context, remove bool) bool {
	if !s.Validate("unsubscribe") {
		return false
	}

	var err error
	if remove {
		err = s.client.DeleteMember(ctx, s.Email, s.List)
	} else {
		_, err = s.client.UpdateMember(ctx, s.Email, s.List, mailgun.Member{
			Subscribed: mailgun.Unsubscribed,
		})
	}
	if err != nil {
		s.fail("failed to unsubscribe", err)
		return false
	}

	s.Succeed()
	return true
}

func (s *Subscriber) name() string {
	first := s.FieldString(core.DefaultFieldNames.FirstName)
	last := s.FieldString(core.DefaultFieldNames.LastName)
	return strings.TrimSpace(first + " " + last)
}

func (s *Subscriber) vars() map[string]interface{} {
	vars := make(map[string]interface{}, len(s.Fields)+1)
	for k, v := range s.Fields {
		vars[k] = v
	}
	vars["email_type"] = s.Format
	return vars
}

func (s *Subscriber) fail(message string, err error) {
	s.logger.Debug(message, slog.String("list", s.List), slog.Any("error", err))
	code := mailgun.GetStatusFromErr(err)
	if code < 0 {
		code = 0
	}
	s.Fail(message+": "+err.Error(), code)
}
