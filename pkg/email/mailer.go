package email

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
)

// EmailSender delivers a single transactional email.
type EmailSender interface {
	SendEmail(ctx context.Context, params SendEmailParams) error
}

// SendEmailParams describes one outbound message.
type SendEmailParams struct {
	SendTo   string `json:"send_to"`
	Subject  string `json:"subject"`
	BodyHTML string `json:"body_html"`
	Tag      string `json:"tag,omitempty"` // Postmark tag, used for stats grouping
}

// Validate checks that the message can be delivered.
func (p SendEmailParams) Validate() error {
	if !validAddress(p.SendTo) {
		return fmt.Errorf("%w: recipient %q is not a valid address", ErrInvalidParams, p.SendTo)
	}
	if strings.TrimSpace(p.Subject) == "" {
		return fmt.Errorf("%w: subject is required", ErrInvalidParams)
	}
	if strings.TrimSpace(p.BodyHTML) == "" {
		return fmt.Errorf("%w: body is required", ErrInvalidParams)
	}
	return nil
}

// validAddress accepts a bare address only, not "Name <addr>".
func validAddress(s string) bool {
	if s == "" {
		return false
	}
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s
}
