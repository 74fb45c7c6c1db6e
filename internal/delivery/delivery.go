// Package delivery mails exported reports to their recipients.
package delivery

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/wneessen/go-mail"

	"github.com/anstrom/openvas-reporter/internal/errors"
	"github.com/anstrom/openvas-reporter/internal/logging"
)

// Defaults for the SMTP submission endpoint.
const (
	DefaultHost     = "smtp.office365.com"
	DefaultPort     = 587
	DefaultAuth     = "login"
	DefaultTimeout  = 30 * time.Second
	DefaultSubject  = "OpenVAS Scan Report"
	DefaultBodyText = "Here is your OpenVAS Scan Report!"
)

// Config holds SMTP transport settings.
type Config struct {
	Host    string        `yaml:"host" json:"host"`
	Port    int           `yaml:"port" json:"port"`
	Auth    string        `yaml:"auth" json:"auth"`
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
	// Username defaults to the message sender when empty.
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"-"`
}

// DefaultConfig returns the submission settings for Office 365.
func DefaultConfig() Config {
	return Config{
		Host:    DefaultHost,
		Port:    DefaultPort,
		Auth:    DefaultAuth,
		Timeout: DefaultTimeout,
	}
}

// Message is one outbound report mail.
type Message struct {
	Subject    string
	Body       string
	Sender     string
	Recipients []string
	// AttachmentPath is read when the message is built; the attachment is
	// named after the file's base name.
	AttachmentPath string
}

// Sender submits built messages. *mail.Client implements it.
type Sender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// SenderFactory creates a Sender for a transport configuration and login.
type SenderFactory func(cfg Config, username string) (Sender, error)

// Mailer builds report messages and hands them to an SMTP sender.
type Mailer struct {
	cfg       Config
	newSender SenderFactory
	logger    *logging.Logger
}

// Option configures a Mailer.
type Option func(*Mailer)

// WithSenderFactory replaces the SMTP client constructor.
func WithSenderFactory(f SenderFactory) Option {
	return func(m *Mailer) {
		m.newSender = f
	}
}

// WithLogger sets the logger used by the mailer.
func WithLogger(logger *logging.Logger) Option {
	return func(m *Mailer) {
		m.logger = logger
	}
}

// NewMailer creates a Mailer for the given transport.
func NewMailer(cfg Config, opts ...Option) *Mailer {
	m := &Mailer{
		cfg:       cfg,
		newSender: NewSMTPSender,
		logger:    logging.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.WithComponent("delivery")
	return m
}

// NewSMTPSender creates a go-mail client that requires STARTTLS before it
// authenticates.
func NewSMTPSender(cfg Config, username string) (Sender, error) {
	auth, err := smtpAuthType(cfg.Auth)
	if err != nil {
		return nil, err
	}

	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTLSPolicy(mail.TLSMandatory),
		mail.WithSMTPAuth(auth),
		mail.WithUsername(username),
		mail.WithPassword(cfg.Password),
	}
	if cfg.Timeout > 0 {
		opts = append(opts, mail.WithTimeout(cfg.Timeout))
	}
	return mail.NewClient(cfg.Host, opts...)
}

func smtpAuthType(name string) (mail.SMTPAuthType, error) {
	switch strings.ToLower(name) {
	case "", "login":
		return mail.SMTPAuthLogin, nil
	case "plain":
		return mail.SMTPAuthPlain, nil
	case "cram-md5":
		return mail.SMTPAuthCramMD5, nil
	default:
		return "", fmt.Errorf("unsupported SMTP auth mechanism %q", name)
	}
}

// Build assembles a multipart message: a plain text body and, when
// AttachmentPath is set, the file's raw bytes as an attachment.
func (m *Mailer) Build(msg Message) (*mail.Msg, error) {
	if len(msg.Recipients) == 0 {
		return nil, deliveryError("message has no recipients", msg.AttachmentPath, nil)
	}

	out := mail.NewMsg()
	if err := out.From(msg.Sender); err != nil {
		return nil, deliveryError("invalid sender address", msg.AttachmentPath, err)
	}
	if err := out.To(msg.Recipients...); err != nil {
		return nil, deliveryError("invalid recipient address", msg.AttachmentPath, err)
	}
	out.Subject(msg.Subject)
	out.SetBodyString(mail.TypeTextPlain, msg.Body)

	if msg.AttachmentPath != "" {
		data, err := os.ReadFile(msg.AttachmentPath)
		if err != nil {
			return nil, deliveryError("failed to read attachment", msg.AttachmentPath, err)
		}
		if err := out.AttachReader(filepath.Base(msg.AttachmentPath), bytes.NewReader(data)); err != nil {
			return nil, deliveryError("failed to attach file", msg.AttachmentPath, err)
		}
	}

	return out, nil
}

// Send builds msg and submits it. The attachment file is only ever read.
func (m *Mailer) Send(ctx context.Context, msg Message) error {
	built, err := m.Build(msg)
	if err != nil {
		m.logger.Error("Failed to build report mail", "error", err)
		return err
	}

	username := m.cfg.Username
	if username == "" {
		username = msg.Sender
	}

	sender, err := m.newSender(m.cfg, username)
	if err != nil {
		err = deliveryError("failed to configure mail transport", msg.AttachmentPath, err)
		m.logger.Error("Failed to send report mail", "error", err)
		return err
	}

	if err := sender.DialAndSendWithContext(ctx, built); err != nil {
		err = deliveryError("failed to send report mail", msg.AttachmentPath, err)
		m.logger.Error("Failed to send report mail", "error", err, "host", m.cfg.Host, "port", m.cfg.Port)
		return err
	}

	m.logger.Info("Report mail sent", "recipients", len(msg.Recipients), "host", m.cfg.Host)
	return nil
}

// SendReport mails the file at path to recipients.
func (m *Mailer) SendReport(ctx context.Context, path, subject, body, sender string, recipients []string) error {
	return m.Send(ctx, Message{
		Subject:        subject,
		Body:           body,
		Sender:         sender,
		Recipients:     recipients,
		AttachmentPath: path,
	})
}

func deliveryError(msg, path string, err error) *errors.DeliveryError {
	return errors.WrapDeliveryError(errors.CodeDeliveryFailed, msg, path, err)
}
