// Package mailer delivers verification emails. Delivery runs off the
// request path: callers hand a message to a Dispatcher and move on.
package mailer

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/url"
	"strings"
	"time"
)

// Message is a single outbound email.
type Message struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
	Text    string `json:"text"`
}

// Sender delivers one message synchronously.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

const verificationSubject = "Verify your account"

var verificationHTML = template.Must(template.New("verify").Parse(
	`<h3>Welcome to StarAuth!</h3>
<p>Hi {{.Username}}, click the link below to verify your email address:</p>
<p><a href="{{.Link}}">{{.Link}}</a></p>
<p>This link will expire in {{.Hours}} hours.</p>
`))

// VerificationLink builds <frontendURL>/verify-email?token=<token>.
func VerificationLink(frontendURL, token string) string {
	return strings.TrimRight(frontendURL, "/") + "/verify-email?token=" + url.QueryEscape(token)
}

// NewVerificationMessage renders the verification email for one recipient.
func NewVerificationMessage(from, to, username, frontendURL, token string, ttl time.Duration) (Message, error) {
	link := VerificationLink(frontendURL, token)
	hours := int(ttl.Hours())

	var body bytes.Buffer
	err := verificationHTML.Execute(&body, struct {
		Username string
		Link     string
		Hours    int
	}{username, link, hours})
	if err != nil {
		return Message{}, err
	}

	return Message{
		From:    from,
		To:      to,
		Subject: verificationSubject,
		HTML:    body.String(),
		Text: fmt.Sprintf("Hi %s,\n\nVerify your email address by opening:\n%s\n\nThis link will expire in %d hours.\n",
			username, link, hours),
	}, nil
}
