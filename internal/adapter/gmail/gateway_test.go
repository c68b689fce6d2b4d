package gmail

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"

	"github.com/inboxagent/inboxagent/internal/domain"
)

func b64(s string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(s))
}

func TestExtractBodyMultipart(t *testing.T) {
	payload := &gmail.MessagePart{
		MimeType: "multipart/alternative",
		Parts: []*gmail.MessagePart{
			{
				MimeType: "text/html",
				Body:     &gmail.MessagePartBody{Data: b64("<p>hi</p>")},
			},
			{
				MimeType: "text/plain",
				Body:     &gmail.MessagePartBody{Data: b64("plain text body")},
			},
		},
	}

	if got := extractBody(payload); got != "plain text body" {
		t.Fatalf("unexpected body: %q", got)
	}
}

func TestExtractBodySinglePart(t *testing.T) {
	payload := &gmail.MessagePart{
		MimeType: "text/plain",
		Body:     &gmail.MessagePartBody{Data: b64("hello there")},
	}
	if got := extractBody(payload); got != "hello there" {
		t.Fatalf("unexpected body: %q", got)
	}
}

func TestExtractBodyNested(t *testing.T) {
	payload := &gmail.MessagePart{
		MimeType: "multipart/mixed",
		Parts: []*gmail.MessagePart{
			{
				MimeType: "multipart/alternative",
				Parts: []*gmail.MessagePart{
					{
						MimeType: "text/plain",
						Body:     &gmail.MessagePartBody{Data: b64("nested body")},
					},
				},
			},
		},
	}
	if got := extractBody(payload); got != "nested body" {
		t.Fatalf("unexpected body: %q", got)
	}
}

func TestExtractBodyHTMLOnlyMultipart(t *testing.T) {
	// Without a text/plain part the walk comes back empty; raw HTML from a
	// leaf part must never become the body.
	payload := &gmail.MessagePart{
		MimeType: "multipart/alternative",
		Parts: []*gmail.MessagePart{
			{
				MimeType: "text/html",
				Body:     &gmail.MessagePartBody{Data: b64("<p>only html</p>")},
			},
		},
	}
	if got := extractBody(payload); got != "" {
		t.Fatalf("expected empty body, got %q", got)
	}
}

func TestExtractBodyEmpty(t *testing.T) {
	if got := extractBody(nil); got != "" {
		t.Fatalf("expected empty body, got %q", got)
	}
	if got := extractBody(&gmail.MessagePart{MimeType: "text/html"}); got != "" {
		t.Fatalf("expected empty body, got %q", got)
	}
}

func TestDecodeBodyPaddedFallback(t *testing.T) {
	// Padded base64url, as some providers emit.
	padded := base64.URLEncoding.EncodeToString([]byte("padded!"))
	got, err := decodeBody(padded)
	if err != nil {
		t.Fatalf("decodeBody failed: %v", err)
	}
	if string(got) != "padded!" {
		t.Fatalf("unexpected decoded data: %q", got)
	}
}

func TestBuildReplyRaw(t *testing.T) {
	raw := buildReplyRaw("alice@example.com", "Re: Report", "<orig@mail.example.com>", "Thanks, will review.")

	for _, want := range []string{
		"To: alice@example.com\r\n",
		"Subject: Re: Report\r\n",
		"In-Reply-To: <orig@mail.example.com>\r\n",
		"References: <orig@mail.example.com>\r\n",
		"Content-Type: text/plain; charset=UTF-8\r\n",
	} {
		if !strings.Contains(raw, want) {
			t.Fatalf("raw message missing %q:\n%s", want, raw)
		}
	}
	if !strings.HasSuffix(raw, "\r\n\r\nThanks, will review.") {
		t.Fatalf("body not separated from headers:\n%s", raw)
	}
}

func TestBuildReplyRawNoMessageID(t *testing.T) {
	raw := buildReplyRaw("alice@example.com", "Re: Report", "", "body")
	if strings.Contains(raw, "In-Reply-To") {
		t.Fatalf("unexpected In-Reply-To header:\n%s", raw)
	}
}

func TestHeaderValue(t *testing.T) {
	headers := []*gmail.MessagePartHeader{
		{Name: "From", Value: "alice@example.com"},
		{Name: "subject", Value: "Hello"},
	}
	if got := headerValue(headers, "From"); got != "alice@example.com" {
		t.Fatalf("unexpected From: %q", got)
	}
	// Header names match case-insensitively.
	if got := headerValue(headers, "Subject"); got != "Hello" {
		t.Fatalf("unexpected Subject: %q", got)
	}
	if got := headerValue(headers, "Date"); got != "" {
		t.Fatalf("expected empty value, got %q", got)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 500); got != "short" {
		t.Fatalf("unexpected truncation: %q", got)
	}
	long := strings.Repeat("é", 600)
	if got := truncate(long, 500); len([]rune(got)) != 500 {
		t.Fatalf("expected 500 runes, got %d", len([]rune(got)))
	}
}

func TestWrapError(t *testing.T) {
	cases := []struct {
		code int
		want error
	}{
		{401, domain.ErrAuthRequired},
		{403, domain.ErrAuthRequired},
		{404, domain.ErrNotFound},
		{500, domain.ErrUpstream},
		{429, domain.ErrUpstream},
	}
	for _, tc := range cases {
		err := wrapError(&googleapi.Error{Code: tc.code}, "op")
		if !errors.Is(err, tc.want) {
			t.Fatalf("code %d: expected %v, got %v", tc.code, tc.want, err)
		}
	}

	if err := wrapError(errors.New("connection reset"), "op"); !errors.Is(err, domain.ErrUpstream) {
		t.Fatalf("expected ErrUpstream for transport error, got %v", err)
	}
	if wrapError(nil, "op") != nil {
		t.Fatalf("expected nil for nil error")
	}
}
