package policy

import (
	"context"
	"strings"
	"testing"
)

func evaluate(t *testing.T, input map[string]interface{}) string {
	t.Helper()

	engine, err := NewEngine(context.Background(), DefaultSendPolicy)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	decision, err := engine.Evaluate(context.Background(), input)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	return decision
}

func TestDefaultPolicyAllows(t *testing.T) {
	decision := evaluate(t, map[string]interface{}{
		"message_id":   "m1",
		"reply_text":   "Thanks, will review.",
		"reply_length": 20,
		"state":        "GENERATED",
	})
	if decision != "allow" {
		t.Fatalf("expected allow, got %q", decision)
	}
}

func TestDefaultPolicyBlocksBlankReply(t *testing.T) {
	decision := evaluate(t, map[string]interface{}{
		"message_id":   "m1",
		"reply_text":   "   ",
		"reply_length": 3,
		"state":        "EDITED",
	})
	if decision != "block" {
		t.Fatalf("expected block, got %q", decision)
	}
}

func TestDefaultPolicyBlocksOversizedReply(t *testing.T) {
	text := strings.Repeat("a", 10001)
	decision := evaluate(t, map[string]interface{}{
		"message_id":   "m1",
		"reply_text":   text,
		"reply_length": len(text),
		"state":        "EDITED",
	})
	if decision != "block" {
		t.Fatalf("expected block, got %q", decision)
	}
}

func TestBadPolicyRejected(t *testing.T) {
	_, err := NewEngine(context.Background(), "package send_policy\ndecision = {")
	if err == nil {
		t.Fatalf("expected error for malformed policy")
	}
}
