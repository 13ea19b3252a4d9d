// Package email sends share links over SMTP.
package email

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"mime"
	"net/mail"
	"net/smtp"
	"strings"
	"time"
)

var (
	ErrNotConfigured = errors.New("email not configured")
	ErrNoRecipients  = errors.New("no recipients")
	ErrBadRecipient  = errors.New("invalid recipient")
)

// Config holds SMTP configuration
type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Service provides email sending
type Service struct {
	config Config
	server string
	auth   smtp.Auth
	send   sendFunc
}

// NewService creates a new email service
func NewService(config Config) *Service {
	var auth smtp.Auth
	if config.Username != "" {
		auth = smtp.PlainAuth("", config.Username, config.Password, config.Host)
	}

	return &Service{
		config: config,
		server: config.Host + ":" + config.Port,
		auth:   auth,
		send:   smtp.SendMail,
	}
}

// IsConfigured returns true if email is configured
func (s *Service) IsConfigured() bool {
	return s.config.Host != "" && s.config.Port != "" && s.config.From != ""
}

// SendHTMLEmail sends a multipart email with a plain text fallback.
func (s *Service) SendHTMLEmail(to []string, subject, textBody, htmlBody string) error {
	if !s.IsConfigured() {
		return ErrNotConfigured
	}
	recipients, err := normalizeRecipients(to)
	if err != nil {
		return err
	}

	from := s.config.From
	if s.config.FromName != "" {
		from = (&mail.Address{Name: s.config.FromName, Address: s.config.From}).String()
	}

	boundary := fmt.Sprintf("gridshare-%d", time.Now().UnixNano())

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(recipients, ", "))
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "Subject: %s\r\n", mime.QEncoding.Encode("UTF-8", stripNewlines(subject)))
	fmt.Fprintf(&msg, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/alternative; boundary=\"%s\"\r\n", boundary)
	fmt.Fprintf(&msg, "\r\n")

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/plain; charset=UTF-8\r\n")
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "%s\r\n", textBody)
	fmt.Fprintf(&msg, "\r\n")

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/html; charset=UTF-8\r\n")
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "%s\r\n", htmlBody)
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "--%s--\r\n", boundary)

	if err := s.send(s.server, s.auth, s.config.From, recipients, msg.Bytes()); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}

// ShareLinkData holds data for the share link template
type ShareLinkData struct {
	AppName   string
	Nickname  string
	ShareURL  string
	ExpiresIn string
}

// SendShareLink mails a grid share URL to recipients.
func (s *Service) SendShareLink(to []string, nickname, shareURL string, ttl time.Duration) error {
	data := ShareLinkData{
		AppName:   "Grid Share",
		Nickname:  strings.TrimSpace(nickname),
		ShareURL:  shareURL,
		ExpiresIn: describeTTL(ttl),
	}
	if data.Nickname == "" {
		data.Nickname = "だれか"
	}

	html, err := renderTemplate(shareLinkHTMLTemplate, data)
	if err != nil {
		return fmt.Errorf("render share link template: %w", err)
	}
	text := fmt.Sprintf("%sさんがグリッドを共有しました。\r\n%s\r\n", data.Nickname, shareURL)
	if data.ExpiresIn != "" {
		text += fmt.Sprintf("このリンクは%s有効です。\r\n", data.ExpiresIn)
	}

	subject := fmt.Sprintf("%sさんからグリッドが届きました", data.Nickname)
	return s.SendHTMLEmail(to, subject, text, html)
}

func normalizeRecipients(to []string) ([]string, error) {
	out := make([]string, 0, len(to))
	for _, raw := range to {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		addr, err := mail.ParseAddress(raw)
		if err != nil {
			return nil, fmt.Errorf("%w %q: %v", ErrBadRecipient, raw, err)
		}
		out = append(out, addr.Address)
	}
	if len(out) == 0 {
		return nil, ErrNoRecipients
	}
	return out, nil
}

func stripNewlines(s string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
}

// describeTTL renders a lifetime in whole days, or hours below one day.
func describeTTL(ttl time.Duration) string {
	switch {
	case ttl <= 0:
		return ""
	case ttl >= 24*time.Hour:
		return fmt.Sprintf("%d日間", int(ttl/(24*time.Hour)))
	default:
		return fmt.Sprintf("%d時間", max(int(ttl/time.Hour), 1))
	}
}

func renderTemplate(tmpl string, data interface{}) (string, error) {
	t := template.Must(template.New("email").Parse(tmpl))
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const shareLinkHTMLTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>{{.AppName}}</title>
    <style>
        body { font-family: "Hiragino Sans", "Noto Sans JP", sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { border-bottom: 2px solid #FF8B25; padding-bottom: 10px; margin-bottom: 20px; }
        .button { display: inline-block; padding: 12px 24px; background: #FF8B25; color: white; text-decoration: none; border-radius: 4px; margin: 20px 0; }
        .link { word-break: break-all; color: #FF8B25; }
        .footer { margin-top: 30px; padding-top: 20px; border-top: 1px solid #eee; font-size: 12px; color: #666; }
    </style>
</head>
<body>
    <div class="header">
        <h1>{{.AppName}}</h1>
    </div>

    <h2>{{.Nickname}}さんがグリッドを共有しました</h2>

    <p>
        <a href="{{.ShareURL}}" class="button">グリッドを見る</a>
    </p>

    <p>ボタンが開けない場合は、次のリンクをブラウザに貼り付けてください:</p>
    <p class="link">{{.ShareURL}}</p>

    {{if .ExpiresIn}}<p>このリンクは{{.ExpiresIn}}有効です。</p>{{end}}

    <div class="footer">
        <p>このメールに心当たりがない場合は破棄してください。</p>
    </div>
</body>
</html>`
