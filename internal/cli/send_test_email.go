package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/tbourn/go-contact-intake/internal/config"
	"github.com/tbourn/go-contact-intake/internal/delivery"
	"github.com/tbourn/go-contact-intake/internal/sysutil"
)

var sendTestEmailCmd = &cobra.Command{
	Use:   "send-test-email",
	Short: "Send a test message through the configured SMTP relay",
	Example: `  contactd send-test-email
  contactd send-test-email --to ops@example.com`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		to, _ := cmd.Flags().GetString("to")
		timeout, _ := cmd.Flags().GetDuration("timeout")

		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()
		return sendTestEmail(ctx, cmd.OutOrStdout(), cfg, to)
	},
}

func init() {
	sendTestEmailCmd.Flags().String("to", "", "recipient (default: CONTACT_EMAIL)")
	sendTestEmailCmd.Flags().Duration("timeout", 30*time.Second, "overall deadline for the SMTP exchange")
}

// sendTestEmail sends one fixed message and prints the relay settings with
// the user masked.
func sendTestEmail(ctx context.Context, out io.Writer, cfg config.Config, to string) error {
	fmt.Fprintf(out, "SMTP host:   %s\n", cfg.SMTP.Host)
	fmt.Fprintf(out, "SMTP port:   %d\n", cfg.SMTP.Port)
	fmt.Fprintf(out, "SMTP user:   %s\n", sysutil.MaskSecret(cfg.SMTP.User))
	fmt.Fprintf(out, "SMTP secure: %t\n", cfg.SMTP.Secure)
	fmt.Fprintf(out, "STARTTLS:    %t\n", cfg.SMTP.StartTLS)

	if !cfg.SMTP.Configured() {
		return fmt.Errorf("%w: set SMTP_HOST, SMTP_PORT, SMTP_USER and SMTP_PASS", delivery.ErrConfigurationMissing)
	}

	sender := delivery.NewSMTPSender(cfg.SMTP, cfg.Mail)
	composer := sender.Composer()
	msg := delivery.Message{
		From:    composer.From,
		To:      sysutil.FirstNonEmpty(to, composer.To),
		Subject: "SMTP test from contactd",
		Text:    "This is a test message sent by contactd send-test-email.",
		HTML:    "<p>This is a test message sent by <code>contactd send-test-email</code>.</p>",
	}
	if err := sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	fmt.Fprintf(out, "sent test message to %s\n", msg.To)
	return nil
}
