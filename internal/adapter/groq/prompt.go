package groq

import "fmt"

// BuildPrompt assembles the reply-drafting prompt from the source message.
func BuildPrompt(sender, subject, body string) string {
	return fmt.Sprintf(`You are a professional email assistant. Generate a polite, helpful reply to this email.

From: %s
Subject: %s
Body: %s

Generate a professional reply that:
- Addresses the sender's concerns
- Is concise and clear
- Has a friendly but professional tone
- Includes a proper greeting and closing

Reply:`, sender, subject, body)
}
