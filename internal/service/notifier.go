package service

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"go.uber.org/zap"

	"kidcheck/internal/config"
	"kidcheck/internal/models"
)

// Notifier tells leaders about events that need human attention
type Notifier interface {
	NotifyOverride(ctx context.Context, o models.LeaderOverride, rec models.CustodyRecord) error
	NotifyLockout(ctx context.Context, rec models.CustodyRecord) error
}

// NopNotifier discards notifications
type NopNotifier struct{}

func (NopNotifier) NotifyOverride(context.Context, models.LeaderOverride, models.CustodyRecord) error {
	return nil
}

func (NopNotifier) NotifyLockout(context.Context, models.CustodyRecord) error {
	return nil
}

// sesSender is the part of the SES client used for sending
type sesSender interface {
	SendEmail(ctx context.Context, in *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// EmailNotifier sends notifications via Amazon SES
type EmailNotifier struct {
	client     sesSender
	fromEmail  string
	fromName   string
	to         []string
	appBaseURL string
	enabled    bool
	debug      bool
	logger     *zap.Logger
}

// NewEmailNotifier creates a notifier. It is disabled when no sender or no
// recipient is configured.
func NewEmailNotifier(ctx context.Context, cfg config.MailConfig, logger *zap.Logger) (*EmailNotifier, error) {
	logger = logger.Named("mail")
	if cfg.FromEmail == "" || len(cfg.NotifyTo) == 0 {
		logger.Info("email notifications disabled: sender or recipients not configured")
		return &EmailNotifier{enabled: false, debug: cfg.Debug, logger: logger}, nil
	}

	if cfg.Debug {
		logger.Debug("initializing SES client",
			zap.String("region", cfg.AWSRegion),
			zap.String("from", cfg.FromEmail),
			zap.Strings("to", cfg.NotifyTo))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	logger.Info("email notifications enabled", zap.String("from", cfg.FromEmail), zap.String("region", cfg.AWSRegion))
	return &EmailNotifier{
		client:     sesv2.NewFromConfig(awsCfg),
		fromEmail:  cfg.FromEmail,
		fromName:   cfg.FromName,
		to:         cfg.NotifyTo,
		appBaseURL: cfg.AppBaseURL,
		enabled:    true,
		debug:      cfg.Debug,
		logger:     logger,
	}, nil
}

// IsEnabled returns whether notifications are sent
func (n *EmailNotifier) IsEnabled() bool {
	return n.enabled
}

// NotifyOverride reports an emergency release
func (n *EmailNotifier) NotifyOverride(ctx context.Context, o models.LeaderOverride, rec models.CustodyRecord) error {
	if !n.enabled {
		n.logger.Debug("skipping override notification (disabled)", zap.Int64("custody_record_id", rec.ID))
		return nil
	}

	subject := fmt.Sprintf("Emergency release: label %d in %s", rec.LabelNumber, rec.Classroom)
	lines := []string{
		fmt.Sprintf("Label: %d", rec.LabelNumber),
		fmt.Sprintf("Classroom: %s", rec.Classroom),
		fmt.Sprintf("Event: %s (%s)", rec.EventName, rec.EventDate),
		fmt.Sprintf("Released by: %s", o.LeaderActorID),
		fmt.Sprintf("Collected by: %s", o.PickupPersonName),
		fmt.Sprintf("Document: %s", o.PickupPersonDocument),
		fmt.Sprintf("Reason: %s", o.Reason),
		fmt.Sprintf("At: %s", o.CreatedAt.Format("2006-01-02 15:04:05 MST")),
	}
	return n.send(ctx, subject, "Emergency release", lines, n.recordLink(rec))
}

// NotifyLockout reports that PIN checks for a record are locked
func (n *EmailNotifier) NotifyLockout(ctx context.Context, rec models.CustodyRecord) error {
	if !n.enabled {
		n.logger.Debug("skipping lockout notification (disabled)", zap.Int64("custody_record_id", rec.ID))
		return nil
	}

	subject := fmt.Sprintf("PIN lockout: label %d in %s", rec.LabelNumber, rec.Classroom)
	lines := []string{
		fmt.Sprintf("Label: %d", rec.LabelNumber),
		fmt.Sprintf("Classroom: %s", rec.Classroom),
		fmt.Sprintf("Event: %s (%s)", rec.EventName, rec.EventDate),
		"Too many wrong PINs were entered for this child. A leader must assist at the desk.",
	}
	return n.send(ctx, subject, "PIN lockout", lines, n.recordLink(rec))
}

func (n *EmailNotifier) recordLink(rec models.CustodyRecord) string {
	if n.appBaseURL == "" {
		return ""
	}
	return fmt.Sprintf("%s/api/custody/%d", strings.TrimRight(n.appBaseURL, "/"), rec.ID)
}

func (n *EmailNotifier) send(ctx context.Context, subject, heading string, lines []string, link string) error {
	var htmlBody, textBody strings.Builder
	htmlBody.WriteString(`<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"></head>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
`)
	fmt.Fprintf(&htmlBody, "<h2>%s</h2>\n<ul>\n", html.EscapeString(heading))
	for _, l := range lines {
		fmt.Fprintf(&htmlBody, "<li>%s</li>\n", html.EscapeString(l))
		textBody.WriteString(l + "\n")
	}
	htmlBody.WriteString("</ul>\n")
	if link != "" {
		fmt.Fprintf(&htmlBody, "<p><a href=\"%s\">Open record</a></p>\n", html.EscapeString(link))
		textBody.WriteString("\n" + link + "\n")
	}
	htmlBody.WriteString("<p style=\"font-size: 12px; color: #666;\">This is an automated message from kidcheck.</p>\n</body>\n</html>\n")
	textBody.WriteString("\n---\nThis is an automated message from kidcheck.\n")

	return n.sendEmail(ctx, subject, htmlBody.String(), textBody.String())
}

// sendEmail sends one message to every configured recipient
func (n *EmailNotifier) sendEmail(ctx context.Context, subject, htmlBody, textBody string) error {
	fromAddress := n.fromEmail
	if n.fromName != "" {
		fromAddress = fmt.Sprintf("%s <%s>", n.fromName, n.fromEmail)
	}

	if n.debug {
		n.logger.Debug("sending email",
			zap.String("from", fromAddress),
			zap.Strings("to", n.to),
			zap.String("subject", subject),
			zap.Int("html_bytes", len(htmlBody)),
			zap.Int("text_bytes", len(textBody)))
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(fromAddress),
		Destination: &types.Destination{
			ToAddresses: n.to,
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{
					Data:    aws.String(subject),
					Charset: aws.String("UTF-8"),
				},
				Body: &types.Body{
					Html: &types.Content{
						Data:    aws.String(htmlBody),
						Charset: aws.String("UTF-8"),
					},
					Text: &types.Content{
						Data:    aws.String(textBody),
						Charset: aws.String("UTF-8"),
					},
				},
			},
		},
	}

	result, err := n.client.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to send email %q: %w", subject, err)
	}

	fields := []zap.Field{zap.String("subject", subject)}
	if result.MessageId != nil {
		fields = append(fields, zap.String("message_id", *result.MessageId))
	}
	n.logger.Info("email sent", fields...)
	return nil
}
