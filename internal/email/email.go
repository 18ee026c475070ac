// Package email notifies administrators over SMTP.
package email

import (
	"crypto/rand"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"tangled.org/agora.social/agora/internal/moderation"
)

// Config is the SMTP relay and the address reports are sent to.
type Config struct {
	Host       string
	Port       int
	User       string
	Pass       string
	From       string
	AdminEmail string
}

type Sender struct {
	cfg Config
	now func() time.Time
}

func NewSender(cfg Config) *Sender {
	return &Sender{cfg: cfg, now: time.Now}
}

// Enabled returns true if SMTP and an admin recipient are configured.
func (s *Sender) Enabled() bool {
	return s.cfg.Host != "" && s.cfg.AdminEmail != ""
}

// NotifyReport emails the admin address about a newly filed report.
// It is a no-op when the sender is not enabled.
func (s *Sender) NotifyReport(r moderation.Report) error {
	if !s.Enabled() {
		return nil
	}
	subject, body := reportEmail(r)
	return s.Send(s.cfg.AdminEmail, subject, body)
}

func reportEmail(r moderation.Report) (string, string) {
	var target string
	switch {
	case r.Target.AccountID != "":
		target = "account " + r.Target.AccountID
	case r.Target.PostID != "":
		target = "post " + r.Target.PostID
	default:
		target = "comment " + r.Target.CommentID
	}

	var b strings.Builder
	fmt.Fprintf(&b, "A new report was filed.\n\n")
	fmt.Fprintf(&b, "Report: %s\n", r.ID)
	fmt.Fprintf(&b, "Target: %s\n", target)
	fmt.Fprintf(&b, "Reason: %s\n", r.Reason)
	if r.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", r.Description)
	}
	fmt.Fprintf(&b, "Reporter: %s\n", r.ReporterID)
	fmt.Fprintf(&b, "Time: %s\n", r.CreatedAt.UTC().Format(time.RFC3339))
	return "New Agora report: " + r.Reason, b.String()
}

// Send delivers one plain-text message to to. Port 465 uses implicit TLS,
// any other port upgrades with STARTTLS when the server offers it.
func (s *Sender) Send(to, subject, body string) error {
	if s.cfg.Host == "" {
		return nil
	}
	client, err := s.dial()
	if err != nil {
		return err
	}
	defer client.Close()

	if s.cfg.User != "" {
		if err := client.Auth(smtp.PlainAuth("", s.cfg.User, s.cfg.Pass, s.cfg.Host)); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}
	if err := client.Mail(s.cfg.From); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("smtp rcpt to: %w", err)
	}
	wc, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := io.WriteString(wc, s.message(to, subject, body)); err != nil {
		_ = wc.Close()
		return fmt.Errorf("smtp write message: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("smtp end data: %w", err)
	}
	return client.Quit()
}

func (s *Sender) dial() (*smtp.Client, error) {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	tlsCfg := &tls.Config{ServerName: s.cfg.Host}

	if s.cfg.Port == 465 {
		conn, err := tls.Dial("tcp", addr, tlsCfg)
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", addr, err)
		}
		client, err := smtp.NewClient(conn, s.cfg.Host)
		if err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("smtp handshake: %w", err)
		}
		return client, nil
	}

	client, err := smtp.Dial(addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(tlsCfg); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("starttls: %w", err)
		}
	}
	return client, nil
}

// message renders the RFC 5322 text. The Message-ID is random within the
// From address's domain.
func (s *Sender) message(to, subject, body string) string {
	domain := s.cfg.Host
	if _, d, ok := strings.Cut(s.cfg.From, "@"); ok {
		domain = d
	}
	var nonce [16]byte
	_, _ = rand.Read(nonce[:])
	now := s.now().UTC()

	var b strings.Builder
	for _, h := range [][2]string{
		{"From", "Agora <" + s.cfg.From + ">"},
		{"To", to},
		{"Subject", sanitizeHeader(subject)},
		{"Date", now.Format(time.RFC1123Z)},
		{"Message-ID", fmt.Sprintf("<%x.%d@%s>", nonce, now.UnixNano(), domain)},
		{"MIME-Version", "1.0"},
		{"Content-Type", "text/plain; charset=UTF-8"},
	} {
		b.WriteString(h[0] + ": " + h[1] + "\r\n")
	}
	b.WriteString("\r\n")
	b.WriteString(body)
	return b.String()
}

// sanitizeHeader drops line breaks so user text cannot inject headers
func sanitizeHeader(v string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(v)
}
