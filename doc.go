// Package courier composes an email once and dispatches it through one or
// more interchangeable mail drivers, and manages mailing list subscriptions
// through list services.
//
// # Sending
//
// A Mailer holds an ordered list of drivers. Every mutating call is broadcast
// to all of them and reports true only if every driver accepted it. Send tries
// the drivers in order and stops at the first one that delivers, so later
// drivers act as fallbacks:
//
//	m, err := courier.New(courier.DefaultConfig(),
//		courier.WithConfigSource(src),
//		courier.WithGroup("primary", "backup"),
//	)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	m.AddRecipient(courier.NewEmailAddress("user@example.com", "User"))
//	m.SetSubject("Welcome")
//	m.SetContentType(courier.ContentTypeHTML)
//	m.SetMessage("<h1>Welcome!</h1>")
//
//	if !m.Send(ctx) {
//		log.Printf("send failed: %v", m.LastError())
//	}
//
// Per-message failures are reported as false plus an ErrorRecord from
// LastError, never as Go errors. Construction errors are: ErrInvalidConfiguration,
// ErrUnknownGroup, ErrUnknownDriver and *ContractError.
//
// # Subscriptions
//
// A Subscriber wraps a single subscription driver. When notification is
// enabled with a Notifier (usually a Mailer), a failed notification turns a
// successful subscribe or unsubscribe into a failure:
//
//	s, err := courier.NewSubscriber(courier.SubscriberConfig{Group: "newsletter", Source: src})
//	s.SetMailingList("Weekly")
//	s.SetSubscriber("user@example.com", &courier.SubscriberData{FirstName: "Ada"})
//	s.DoNotify(true, welcome)
//	ok := s.Subscribe(ctx, false)
//
// # Drivers
//
// Mail: sendmail, smtp, gmail, oneandone, aws_ses, sendgrid, mailgun.
// Subscription: mailchimp, mailgun. Custom drivers are added through a
// Registry.
package courier
