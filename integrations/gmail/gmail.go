// Package gmail sends mail through the Gmail API on behalf of one
// authorized account.
package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/mail"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

type Message struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

func (m Message) Validate() error {
	if strings.TrimSpace(m.To) == "" {
		return fmt.Errorf("recipient is required")
	}
	if _, err := mail.ParseAddressList(m.To); err != nil {
		return fmt.Errorf("invalid recipient %q: %w", m.To, err)
	}
	if strings.TrimSpace(m.Subject) == "" {
		return fmt.Errorf("subject is required")
	}
	return nil
}

// rfc822 renders the message in the wire form Gmail expects in Raw.
func (m Message) rfc822() []byte {
	var b strings.Builder
	b.WriteString("To: " + m.To + "\r\n")
	b.WriteString("Subject: " + mimeHeader(m.Subject) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(m.Body)
	return []byte(b.String())
}

func mimeHeader(s string) string {
	for _, r := range s {
		if r > 127 {
			return "=?UTF-8?B?" + base64.StdEncoding.EncodeToString([]byte(s)) + "?="
		}
	}
	return s
}

type Sender struct {
	tokens   oauth2.TokenSource
	endpoint string
	base     *http.Client
}

type Option func(*Sender)

// WithEndpoint points the sender at a different API root.
func WithEndpoint(endpoint string) Option {
	return func(s *Sender) {
		s.endpoint = endpoint
	}
}

// WithBaseClient sets the HTTP client the OAuth transport wraps.
func WithBaseClient(hc *http.Client) Option {
	return func(s *Sender) {
		s.base = hc
	}
}

func NewSender(tokens oauth2.TokenSource, opts ...Option) *Sender {
	s := &Sender{tokens: tokens}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RefreshTokenSource builds a token source from an installed-app refresh
// token.
func RefreshTokenSource(ctx context.Context, clientID, clientSecret, refreshToken string) oauth2.TokenSource {
	cfg := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{gmailapi.GmailSendScope},
	}
	return cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
}

// Send delivers m from the authorized account and returns the Gmail
// message id.
func (s *Sender) Send(ctx context.Context, m Message) (string, error) {
	if err := m.Validate(); err != nil {
		return "", err
	}
	if s.tokens == nil {
		return "", fmt.Errorf("gmail: no credentials configured")
	}

	clientCtx := ctx
	if s.base != nil {
		clientCtx = context.WithValue(ctx, oauth2.HTTPClient, s.base)
	}
	opts := []option.ClientOption{option.WithHTTPClient(oauth2.NewClient(clientCtx, s.tokens))}
	if s.endpoint != "" {
		opts = append(opts, option.WithEndpoint(s.endpoint))
	}
	svc, err := gmailapi.NewService(ctx, opts...)
	if err != nil {
		return "", fmt.Errorf("gmail: create service: %w", err)
	}

	raw := base64.URLEncoding.EncodeToString(m.rfc822())
	sent, err := svc.Users.Messages.Send("me", &gmailapi.Message{Raw: raw}).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("gmail: send: %w", err)
	}
	return sent.Id, nil
}
