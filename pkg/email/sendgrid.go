package email

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

const (
	defaultHost = "https://api.sendgrid.com"
	endpoint    = "/v3/mail/send"
)

// ErrDeliveryFailed indicates the email provider rejected or never received the message.
var ErrDeliveryFailed = errors.New("email delivery failed")

// Message is a single outbound email.
type Message struct {
	ToAddress string
	ToName    string
	Subject   string
	Text      string
	HTML      string
}

// Config configures the SendGrid sender.
type Config struct {
	APIKey      string
	Host        string
	FromAddress string
	FromName    string
	Timeout     time.Duration
}

// SendgridSender delivers messages through the SendGrid v3 mail API.
type SendgridSender struct {
	key        string
	host       string
	from       *sgmail.Email
	subjPrefix string
	client     *rest.Client
	logger     zerolog.Logger
}

// NewSendgridSender validates configuration and builds a sender.
func NewSendgridSender(cfg Config, logger zerolog.Logger) (*SendgridSender, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("sendgrid api key is required")
	}
	if strings.TrimSpace(cfg.FromAddress) == "" {
		return nil, fmt.Errorf("sendgrid from address is required")
	}

	host := strings.TrimRight(strings.TrimSpace(cfg.Host), "/")
	if host == "" {
		host = defaultHost
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	subjPrefix := ""
	if cfg.FromName != "" {
		subjPrefix = "[" + cfg.FromName + "] "
	}

	return &SendgridSender{
		key:        cfg.APIKey,
		host:       host,
		from:       sgmail.NewEmail(cfg.FromName, cfg.FromAddress),
		subjPrefix: subjPrefix,
		client:     &rest.Client{HTTPClient: &http.Client{Timeout: timeout}},
		logger:     logger.With().Str("component", "sendgrid_sender").Logger(),
	}, nil
}

// Send delivers one message synchronously. Status codes >= 400 are reported as failures.
func (s *SendgridSender) Send(ctx context.Context, msg Message) error {
	if strings.TrimSpace(msg.ToAddress) == "" {
		return fmt.Errorf("%w: recipient address is required", ErrDeliveryFailed)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
	}

	req := sendgrid.GetRequest(s.key, endpoint, s.host)
	req.Method = rest.Post
	req.Body = sgmail.GetRequestBody(s.prepare(msg))

	res, err := s.client.SendWithContext(ctx, req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
	}
	if res.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("%w: status %d: %s", ErrDeliveryFailed, res.StatusCode, res.Body)
	}

	s.logger.Debug().Int("status", res.StatusCode).Msg("email accepted by provider")
	return nil
}

func (s *SendgridSender) prepare(msg Message) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.Subject = s.subjPrefix + msg.Subject
	p.AddTos(sgmail.NewEmail(msg.ToName, msg.ToAddress))

	m := sgmail.NewV3Mail()
	m.SetFrom(s.from)
	m.AddPersonalizations(p)

	text := msg.Text
	if text == "" {
		text = msg.Subject
	}
	m.AddContent(sgmail.NewContent("text/plain", text))
	if msg.HTML != "" {
		m.AddContent(sgmail.NewContent("text/html", msg.HTML))
	}

	return m
}
