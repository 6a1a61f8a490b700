package main

import (
	"context"
	"fmt"
	"net/mail"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lattiq/courier"
)

var sendCmd = &cobra.Command{
	Use:   "send [flags]",
	Short: "Send an email through one or more mailer groups",
	Long: `Send an email. Groups are tried in order until one delivers.

Examples:
  courier send --group primary --to "Ada <ada@example.com>" --subject Hi --body "Hello"
  courier send --group primary --group backup --list staff --html --body-file welcome.html`,
	Args: cobra.NoArgs,
	RunE: runSend,
}

func init() {
	f := sendCmd.Flags()
	f.StringSlice("group", nil, "Mailer group to use (repeatable, default \"default\")")
	f.StringSlice("to", nil, "Recipient address (repeatable)")
	f.StringSlice("cc", nil, "Carbon copy address (repeatable)")
	f.StringSlice("bcc", nil, "Blind carbon copy address (repeatable)")
	f.String("from", "", "Sender address, overrides the group's sender")
	f.String("reply-to", "", "Reply-To address")
	f.String("subject", "", "Subject line")
	f.String("body", "", "Message body")
	f.String("body-file", "", "Read the message body from a file")
	f.String("alt", "", "Alternative plain text body for HTML messages")
	f.Bool("html", false, "Send the body as text/html")
	f.StringSlice("attach", nil, "File to attach (repeatable)")
	f.StringSlice("list", nil, "Named mailing list to add (repeatable)")
	f.String("template", "", "Render subject and body from this template")
	f.String("templates-dir", "", "Directory holding templates")
	f.Bool("log-sent", false, "Log basic information about the sent message")
}

func runSend(cmd *cobra.Command, _ []string) error {
	src, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	f := cmd.Flags()

	groups, _ := f.GetStringSlice("group")
	opts := []courier.Option{
		courier.WithConfigSource(src),
		courier.WithLogger(logger),
		courier.WithGroup(groups...),
	}
	if dir, _ := f.GetString("templates-dir"); dir != "" {
		opts = append(opts, courier.WithTemplates(dir))
	}

	m, err := courier.New(courier.DefaultConfig(), opts...)
	if err != nil {
		return err
	}

	logSent, _ := f.GetBool("log-sent")
	m.Log(logSent)

	if err := addAddresses(f, m); err != nil {
		return err
	}

	lists, _ := f.GetStringSlice("list")
	for _, name := range lists {
		if _, err := m.AddNamedMailingList(name); err != nil {
			return err
		}
	}

	if tmpl, _ := f.GetString("template"); tmpl != "" {
		if err := m.ApplyTemplate(tmpl, nil); err != nil {
			return err
		}
	} else {
		if err := applyBody(f, m); err != nil {
			return err
		}
	}

	if subject, _ := f.GetString("subject"); subject != "" {
		m.SetSubject(subject)
	}

	attachments, _ := f.GetStringSlice("attach")
	for _, path := range attachments {
		a, err := courier.NewFileAttachment(path, "")
		if err != nil {
			return err
		}
		if !m.AddAttachment(a) {
			return printError(cmd, "attach "+path, m.LastError())
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if !m.Send(ctx) {
		return printError(cmd, "send", m.LastError())
	}
	fmt.Fprintln(cmd.OutOrStdout(), "sent")
	return nil
}

type flagGetter interface {
	GetString(name string) (string, error)
	GetStringSlice(name string) ([]string, error)
	GetBool(name string) (bool, error)
}

func addAddresses(f flagGetter, m *courier.Mailer) error {
	single := []struct {
		flag string
		set  func(courier.EmailAddress) bool
	}{
		{"from", m.SetSender},
		{"reply-to", m.SetReplyTo},
	}
	for _, s := range single {
		raw, _ := f.GetString(s.flag)
		if raw == "" {
			continue
		}
		addr, err := parseAddress(raw)
		if err != nil {
			return fmt.Errorf("--%s: %w", s.flag, err)
		}
		s.set(addr)
	}

	multi := []struct {
		flag string
		add  func(courier.EmailAddress) bool
	}{
		{"to", m.AddRecipient},
		{"cc", m.AddCC},
		{"bcc", m.AddBCC},
	}
	for _, r := range multi {
		values, _ := f.GetStringSlice(r.flag)
		for _, raw := range values {
			addr, err := parseAddress(raw)
			if err != nil {
				return fmt.Errorf("--%s: %w", r.flag, err)
			}
			r.add(addr)
		}
	}
	return nil
}

func applyBody(f flagGetter, m *courier.Mailer) error {
	body, _ := f.GetString("body")
	if file, _ := f.GetString("body-file"); file != "" {
		data, err := os.ReadFile(file) // #nosec G304 -- operator supplied path
		if err != nil {
			return fmt.Errorf("reading body: %w", err)
		}
		body = string(data)
	}

	if html, _ := f.GetBool("html"); html {
		m.SetContentType(courier.ContentTypeHTML)
	} else {
		m.SetContentType(courier.ContentTypeText)
	}
	m.SetMessage(body)

	if alt, _ := f.GetString("alt"); alt != "" {
		m.SetAltMessage(alt)
	}
	return nil
}

// parseAddress accepts "Name <email>" or a bare address.
func parseAddress(raw string) (courier.EmailAddress, error) {
	addr, err := mail.ParseAddress(raw)
	if err != nil {
		return courier.EmailAddress{}, fmt.Errorf("invalid address %q: %w", raw, err)
	}
	return courier.NewEmailAddress(addr.Address, addr.Name), nil
}
