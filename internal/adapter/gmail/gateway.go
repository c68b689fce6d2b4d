// Package gmail wraps the Gmail API as the mail gateway: list unread, fetch,
// reply in thread, mark read. Stateless beyond the credential session it
// holds; every call builds its service from a freshly validated token.
package gmail

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/inboxagent/inboxagent/internal/auth"
	"github.com/inboxagent/inboxagent/internal/domain"
)

// snippetLimit caps how much of a message body is stored on a draft and fed
// to the generator, matching the provider snippet convention.
const snippetLimit = 500

// Gateway is the Gmail adapter.
type Gateway struct {
	session    *auth.Session
	maxResults int64
}

// NewGateway creates a gateway listing at most maxResults unread messages
// per refresh.
func NewGateway(session *auth.Session, maxResults int64) *Gateway {
	if maxResults <= 0 {
		maxResults = 10
	}
	return &Gateway{session: session, maxResults: maxResults}
}

// service builds a Gmail service around the session's current access token.
// An AuthRequired failure from the session propagates unchanged.
func (g *Gateway) service(ctx context.Context) (*gmail.Service, error) {
	tok, err := g.session.Token(ctx)
	if err != nil {
		return nil, err
	}
	svc, err := gmail.NewService(ctx, option.WithTokenSource(oauth2.StaticTokenSource(tok)))
	if err != nil {
		return nil, fmt.Errorf("build gmail service: %v: %w", err, domain.ErrUpstream)
	}
	return svc, nil
}

// ListUnread returns unread inbox messages in the provider's native order,
// walking result pages up to the configured cap.
func (g *Gateway) ListUnread(ctx context.Context) ([]domain.MessageSummary, error) {
	svc, err := g.service(ctx)
	if err != nil {
		return nil, err
	}

	var out []domain.MessageSummary
	pageToken := ""
	for {
		call := svc.Users.Messages.List("me").
			LabelIds("INBOX", "UNREAD").
			MaxResults(g.maxResults - int64(len(out)))
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		resp, err := call.Context(ctx).Do()
		if err != nil {
			return nil, wrapError(err, "list unread messages")
		}

		for _, m := range resp.Messages {
			out = append(out, domain.MessageSummary{MessageID: m.Id, ThreadID: m.ThreadId})
		}
		if resp.NextPageToken == "" || int64(len(out)) >= g.maxResults {
			return out, nil
		}
		pageToken = resp.NextPageToken
	}
}

// FetchMessage returns sender, subject and a plain-text body snippet for one
// message. Fails with NotFound when the message no longer exists.
func (g *Gateway) FetchMessage(ctx context.Context, messageID string) (domain.Message, error) {
	svc, err := g.service(ctx)
	if err != nil {
		return domain.Message{}, err
	}

	msg, err := svc.Users.Messages.Get("me", messageID).Format("full").Context(ctx).Do()
	if err != nil {
		return domain.Message{}, wrapError(err, "get message "+messageID)
	}

	var headers []*gmail.MessagePartHeader
	if msg.Payload != nil {
		headers = msg.Payload.Headers
	}

	sender := headerValue(headers, "From")
	if sender == "" {
		sender = "Unknown"
	}
	subject := headerValue(headers, "Subject")
	if subject == "" {
		subject = "No Subject"
	}

	body := extractBody(msg.Payload)
	if body == "" {
		body = msg.Snippet
	}

	return domain.Message{
		MessageID: messageID,
		Sender:    sender,
		Subject:   subject,
		Body:      truncate(body, snippetLimit),
	}, nil
}

// SendReply sends replyText in the thread of messageID, addressed to the
// original sender. Provider rejections surface as SendFailed.
func (g *Gateway) SendReply(ctx context.Context, messageID, replyText string) error {
	svc, err := g.service(ctx)
	if err != nil {
		return err
	}

	original, err := svc.Users.Messages.Get("me", messageID).
		Format("metadata").
		MetadataHeaders("From", "Subject", "Message-ID").
		Context(ctx).Do()
	if err != nil {
		return wrapError(err, "get original message "+messageID)
	}

	var headers []*gmail.MessagePartHeader
	if original.Payload != nil {
		headers = original.Payload.Headers
	}
	to := headerValue(headers, "From")
	if to == "" {
		return fmt.Errorf("message %s has no sender to reply to: %w", messageID, domain.ErrSendFailed)
	}
	subject := headerValue(headers, "Subject")
	if !strings.HasPrefix(strings.ToLower(subject), "re:") {
		subject = "Re: " + subject
	}

	raw := buildReplyRaw(to, subject, headerValue(headers, "Message-ID"), replyText)
	_, err = svc.Users.Messages.Send("me", &gmail.Message{
		Raw:      base64.URLEncoding.EncodeToString([]byte(raw)),
		ThreadId: original.ThreadId,
	}).Context(ctx).Do()
	if err != nil {
		if mapped := wrapError(err, "send reply"); errors.Is(mapped, domain.ErrAuthRequired) {
			return mapped
		}
		return fmt.Errorf("send reply to %s: %v: %w", messageID, err, domain.ErrSendFailed)
	}
	return nil
}

// MarkRead removes the UNREAD label. Marking an already-read message is a
// no-op on the provider side, so the call is idempotent.
func (g *Gateway) MarkRead(ctx context.Context, messageID string) error {
	svc, err := g.service(ctx)
	if err != nil {
		return err
	}

	_, err = svc.Users.Messages.Modify("me", messageID, &gmail.ModifyMessageRequest{
		RemoveLabelIds: []string{"UNREAD"},
	}).Context(ctx).Do()
	if err != nil {
		return wrapError(err, "mark message "+messageID+" read")
	}
	return nil
}

// Profile returns the authenticated account's email address.
func (g *Gateway) Profile(ctx context.Context) (string, error) {
	svc, err := g.service(ctx)
	if err != nil {
		return "", err
	}

	profile, err := svc.Users.GetProfile("me").Context(ctx).Do()
	if err != nil {
		return "", wrapError(err, "get profile")
	}
	return profile.EmailAddress, nil
}

// buildReplyRaw assembles the RFC822 reply message for the Gmail raw field.
func buildReplyRaw(to, subject, inReplyTo, body string) string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "To: %s\r\n", to)
	fmt.Fprintf(&buf, "Subject: %s\r\n", subject)
	if inReplyTo != "" {
		fmt.Fprintf(&buf, "In-Reply-To: %s\r\n", inReplyTo)
		fmt.Fprintf(&buf, "References: %s\r\n", inReplyTo)
	}
	buf.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	buf.WriteString("\r\n")
	buf.WriteString(body)
	return buf.String()
}

// extractBody returns the text body of the message payload: the first
// text/plain part of a multipart message, or the payload data of a
// single-part one. Non-plain leaves never satisfy the walk, so a
// multipart/alternative with text/html listed first still yields the
// plain-text part.
func extractBody(payload *gmail.MessagePart) string {
	if payload == nil {
		return ""
	}
	if len(payload.Parts) > 0 {
		return findPlainText(payload)
	}
	// Single-part messages carry the data directly on the payload.
	if payload.Body != nil && payload.Body.Data != "" {
		if data, err := decodeBody(payload.Body.Data); err == nil {
			return string(data)
		}
	}
	return ""
}

// findPlainText walks the MIME tree for the first text/plain part.
func findPlainText(part *gmail.MessagePart) string {
	if part == nil {
		return ""
	}
	if part.MimeType == "text/plain" && part.Body != nil && part.Body.Data != "" {
		if data, err := decodeBody(part.Body.Data); err == nil {
			return string(data)
		}
	}
	for _, p := range part.Parts {
		if body := findPlainText(p); body != "" {
			return body
		}
	}
	return ""
}

// decodeBody decodes Gmail's base64url body data, which usually arrives
// without padding.
func decodeBody(data string) ([]byte, error) {
	if decoded, err := base64.RawURLEncoding.DecodeString(data); err == nil {
		return decoded, nil
	}
	return base64.URLEncoding.DecodeString(data)
}

func headerValue(headers []*gmail.MessagePartHeader, name string) string {
	for _, h := range headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

// wrapError maps Gmail API failures into the domain taxonomy.
func wrapError(err error, msg string) error {
	if err == nil {
		return nil
	}
	if apiErr, ok := err.(*googleapi.Error); ok {
		switch apiErr.Code {
		case 401, 403:
			return fmt.Errorf("%s: %v: %w", msg, err, domain.ErrAuthRequired)
		case 404:
			return fmt.Errorf("%s: %w", msg, domain.ErrNotFound)
		}
	}
	return fmt.Errorf("%s: %v: %w", msg, err, domain.ErrUpstream)
}
