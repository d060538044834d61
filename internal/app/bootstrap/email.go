package bootstrap

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/sesv2"

	appconfig "github.com/wolfman30/wellness-crm/internal/config"
	"github.com/wolfman30/wellness-crm/internal/notify"
	"github.com/wolfman30/wellness-crm/pkg/logging"
)

// BuildEmailSender selects the staff email transport. EMAIL_PROVIDER picks
// sendgrid, ses or smtp explicitly; when unset the first configured of
// SendGrid and SMTP is used. Anything unusable falls back to the stub sender,
// which only logs.
func BuildEmailSender(ctx context.Context, cfg *appconfig.Config, loadAWS AWSConfigLoader, logger *logging.Logger) notify.EmailSender {
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	provider := cfg.EmailProvider
	if provider == "" {
		switch {
		case cfg.SendGridAPIKey != "":
			provider = "sendgrid"
		case cfg.SMTPHost != "":
			provider = "smtp"
		}
	}

	switch provider {
	case "sendgrid":
		if s := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger); s != nil {
			logger.Info("email provider configured", "provider", provider)
			return s
		}
	case "ses":
		if loadAWS != nil && cfg.SESFromEmail != "" {
			awsCfg, err := loadAWS(ctx)
			if err != nil {
				logger.Error("failed to load aws config for SES", "error", err)
				break
			}
			if s := notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.SESConfig{
				FromEmail: cfg.SESFromEmail,
				FromName:  cfg.SendGridFromName,
			}, logger); s != nil {
				logger.Info("email provider configured", "provider", provider)
				return s
			}
		}
	case "smtp":
		if s := notify.NewSMTPSender(notify.SMTPConfig{
			Host:      cfg.SMTPHost,
			Port:      cfg.SMTPPort,
			Username:  cfg.SMTPUsername,
			Password:  cfg.SMTPPassword,
			FromEmail: cfg.SMTPFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger); s != nil {
			logger.Info("email provider configured", "provider", provider)
			return s
		}
	}

	logger.Warn("no email provider configured; staff notifications are logged only", "provider", provider)
	return notify.NewStubEmailSender(logger)
}

// BuildNotifier wires staff notifications to NOTIFY_EMAILS.
func BuildNotifier(ctx context.Context, cfg *appconfig.Config, loadAWS AWSConfigLoader, logger *logging.Logger) *notify.Service {
	return notify.NewService(BuildEmailSender(ctx, cfg, loadAWS, logger), cfg.NotifyRecipients, logger)
}
