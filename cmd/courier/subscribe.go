package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lattiq/courier"
)

var subscribeCmd = &cobra.Command{
	Use:   "subscribe [flags]",
	Short: "Add a subscriber to a mailing list",
	Long: `Add a subscriber to a mailing list.

Examples:
  courier subscribe --group newsletter --list Weekly --email ada@example.com --first-name Ada
  courier subscribe --group newsletter --list Weekly --email ada@example.com --force --notify-group welcome`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runSubscription(cmd, "subscribe")
	},
}

var unsubscribeCmd = &cobra.Command{
	Use:   "unsubscribe [flags]",
	Short: "Remove a subscriber from a mailing list",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runSubscription(cmd, "unsubscribe")
	},
}

func init() {
	for _, c := range []*cobra.Command{subscribeCmd, unsubscribeCmd} {
		f := c.Flags()
		f.String("group", courier.DefaultGroup, "Subscriber group to use")
		f.String("list", "", "Mailing list (overrides the group's mailing_list)")
		f.String("email", "", "Subscriber email address")
		f.String("content-type", courier.ContentTypeHTML, "Preferred email format")
		f.Bool("notify", false, "Let the list service send its own notification")
		f.String("notify-group", "", "Send the notification through this mailer group instead")
		f.String("notify-subject", "", "Subject of the notification email")
		f.String("notify-body", "", "Body of the notification email")
		_ = c.MarkFlagRequired("email")
	}

	f := subscribeCmd.Flags()
	f.Bool("force", false, "Update the member if it already exists")
	f.String("organization", "", "Organization")
	f.String("first-name", "", "First name")
	f.String("last-name", "", "Last name")
	f.String("phone", "", "Phone number")
	f.String("address1", "", "Address line 1")
	f.String("address2", "", "Address line 2")
	f.String("city", "", "City")
	f.String("state", "", "State")
	f.String("postal-code", "", "Postal code")
	f.String("country", "", "Country")

	unsubscribeCmd.Flags().Bool("delete", false, "Delete the member instead of marking it unsubscribed")
}

func runSubscription(cmd *cobra.Command, operation string) error {
	src, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	f := cmd.Flags()

	group, _ := f.GetString("group")
	s, err := courier.NewSubscriber(courier.SubscriberConfig{
		Group:  group,
		Source: src,
		Logger: logger,
	})
	if err != nil {
		return err
	}

	if list, _ := f.GetString("list"); list != "" {
		s.SetMailingList(list)
	}
	email, _ := f.GetString("email")
	s.SetSubscriber(email, subscriberData(cmd, operation))
	contentType, _ := f.GetString("content-type")
	s.SetContentType(contentType)

	notify, _ := f.GetBool("notify")
	if notifyGroup, _ := f.GetString("notify-group"); notifyGroup != "" {
		n, err := notifier(cmd, src, notifyGroup, email)
		if err != nil {
			return err
		}
		s.DoNotify(true, n)
	} else {
		s.DoNotify(notify, nil)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var ok bool
	if operation == "subscribe" {
		force, _ := f.GetBool("force")
		ok = s.Subscribe(ctx, force)
	} else {
		remove, _ := f.GetBool("delete")
		ok = s.Unsubscribe(ctx, remove)
	}
	if !ok {
		return printError(cmd, operation, s.LastError())
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%sd %s\n", operation, email)
	return nil
}

// subscriberData collects the member fields. Only subscribe carries them.
func subscriberData(cmd *cobra.Command, operation string) *courier.SubscriberData {
	if operation != "subscribe" {
		return nil
	}
	f := cmd.Flags()
	get := func(name string) string {
		v, _ := f.GetString(name)
		return v
	}
	return &courier.SubscriberData{
		Organization: get("organization"),
		FirstName:    get("first-name"),
		LastName:     get("last-name"),
		Phone:        get("phone"),
		Address1:     get("address1"),
		Address2:     get("address2"),
		City:         get("city"),
		State:        get("state"),
		PostalCode:   get("postal-code"),
		Country:      get("country"),
	}
}

func notifier(cmd *cobra.Command, src courier.ConfigSource, group, email string) (*courier.Mailer, error) {
	f := cmd.Flags()
	m, err := courier.New(courier.DefaultConfig(),
		courier.WithConfigSource(src),
		courier.WithGroup(group),
	)
	if err != nil {
		return nil, fmt.Errorf("notification mailer: %w", err)
	}

	m.AddRecipient(courier.NewEmailAddress(email, ""))
	subject, _ := f.GetString("notify-subject")
	m.SetSubject(subject)
	body, _ := f.GetString("notify-body")
	if body == "" {
		body = "Your subscription has been updated."
	}
	m.SetMessage(body)
	return m, nil
}
