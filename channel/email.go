package channel

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gopkg.in/gomail.v2"

	"leadpilot/models"
)

// SMTPConfig carries the sending account credentials.
type SMTPConfig struct {
	Host      string
	Port      int
	Username  string
	Password  string
	FromEmail string
	FromName  string
}

// EmailProvider sends over SMTP through gomail. Permanent rejections
// (hard-bounce class SMTP codes) are reported via SendResult.Permanent;
// everything network-shaped is a transient error.
type EmailProvider struct {
	cfg    SMTPConfig
	dialer *gomail.Dialer
	logger *logrus.Entry
}

func NewEmailProvider(cfg SMTPConfig, logger *logrus.Entry) *EmailProvider {
	dialer := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	dialer.TLSConfig = &tls.Config{ServerName: cfg.Host}
	return &EmailProvider{cfg: cfg, dialer: dialer, logger: logger}
}

func (p *EmailProvider) Name() string { return models.ChannelEmail }

func (p *EmailProvider) Send(ctx context.Context, req SendRequest) (SendResult, error) {
	messageID := fmt.Sprintf("<%s@%s>", uuid.New().String(), p.cfg.Host)

	m := gomail.NewMessage()
	m.SetHeader("From", fmt.Sprintf("%s <%s>", p.cfg.FromName, p.cfg.FromEmail))
	m.SetHeader("To", req.Recipient)
	m.SetHeader("Subject", req.Subject)
	m.SetHeader("Message-ID", messageID)
	m.SetHeader("X-Idempotency-Key", req.IdempotencyKey)
	m.SetBody("text/plain", req.Body)

	// gomail has no context support; honor the caller's timeout by racing
	// the send against ctx.
	errCh := make(chan error, 1)
	go func() {
		errCh <- p.dialer.DialAndSend(m)
	}()

	var err error
	select {
	case <-ctx.Done():
		return SendResult{}, fmt.Errorf("%w: smtp send: %v", ErrTransient, ctx.Err())
	case err = <-errCh:
	}

	if err != nil {
		if isPermanentSMTPError(err) {
			p.logger.WithField("recipient", req.Recipient).Warnf("permanent SMTP rejection: %v", err)
			return SendResult{
				Status:       models.AttemptStatusBounced,
				ErrorMessage: err.Error(),
				Permanent:    true,
			}, nil
		}
		return SendResult{}, fmt.Errorf("%w: smtp send: %v", ErrTransient, err)
	}

	return SendResult{
		Success:           true,
		Status:            models.AttemptStatusSent,
		ProviderMessageID: messageID,
	}, nil
}

// isPermanentSMTPError picks out 5xx-class rejections. Network errors and
// 4xx codes are temporary and retried.
func isPermanentSMTPError(err error) bool {
	if err == nil {
		return false
	}
	if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
		return false
	}

	errStr := strings.ToLower(err.Error())
	tempMarkers := []string{"try again", "temporary", "4.", "421", "450", "451", "452"}
	for _, marker := range tempMarkers {
		if strings.Contains(errStr, marker) {
			return false
		}
	}

	permMarkers := []string{"5.", "550", "551", "552", "553", "554", "no such user", "mailbox unavailable", "user unknown"}
	for _, marker := range permMarkers {
		if strings.Contains(errStr, marker) {
			return true
		}
	}
	return false
}
