package service

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/inboxagent/inboxagent/internal/domain"
)

// maxGenerateConcurrency bounds how many fetch+generate calls run at once
// during one inbox refresh.
const maxGenerateConcurrency = 4

// InboxView is the result of one inbox refresh: the drafts for the current
// unread messages in listing order, plus the messages that were skipped
// because draft generation failed for them.
type InboxView struct {
	Drafts  []domain.Draft
	Skipped []domain.SkippedMessage
}

// RefreshInbox lists unread messages and makes sure each one has a draft.
// Messages that already have a draft are returned as-is, without a generator
// call. Generation failures are isolated per message: the message is skipped
// and the refresh continues. An auth failure from the gateway aborts the
// whole refresh.
func (s *Service) RefreshInbox(ctx context.Context) (InboxView, error) {
	summaries, err := s.gateway.ListUnread(ctx)
	if err != nil {
		return InboxView{}, err
	}

	// Only messages without a draft cost a generator call.
	var missing []string
	for _, m := range summaries {
		if !s.store.Has(ctx, m.MessageID) {
			missing = append(missing, m.MessageID)
		}
	}

	type result struct {
		messageID string
		err       error
	}

	results := make(chan result, len(missing))
	sem := make(chan struct{}, maxGenerateConcurrency)

	for _, id := range missing {
		go func(messageID string) {
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results <- result{messageID: messageID, err: ctx.Err()}
				return
			}
			results <- result{messageID: messageID, err: s.createDraft(ctx, messageID)}
		}(id)
	}

	failed := make(map[string]error, len(missing))
	for range missing {
		r := <-results
		if r.err != nil {
			failed[r.messageID] = r.err
		}
	}

	// Losing auth mid-refresh halts the whole operation rather than
	// masquerading as per-message skips.
	for _, err := range failed {
		if errors.Is(err, domain.ErrAuthRequired) {
			return InboxView{}, err
		}
	}

	view := InboxView{}
	for _, m := range summaries {
		if genErr, ok := failed[m.MessageID]; ok {
			log.Printf("WARN: skipping message %s: %v", m.MessageID, genErr)
			view.Skipped = append(view.Skipped, domain.SkippedMessage{
				MessageID: m.MessageID,
				Reason:    domain.ErrorCode(genErr),
			})
			continue
		}
		draft, err := s.store.Get(ctx, m.MessageID)
		if err != nil {
			// Listed but never drafted and not failed: dropped between
			// list and fetch.
			continue
		}
		view.Drafts = append(view.Drafts, draft)
	}
	return view, nil
}

// createDraft fetches the message and generates its initial reply.
func (s *Service) createDraft(ctx context.Context, messageID string) error {
	msg, err := s.gateway.FetchMessage(ctx, messageID)
	if err != nil {
		return err
	}

	reply, err := s.generator.GenerateReply(ctx, msg)
	if err != nil {
		return err
	}

	_, err = s.store.Create(ctx, domain.Draft{
		MessageID: messageID,
		Sender:    msg.Sender,
		Subject:   msg.Subject,
		Snippet:   msg.Body,
		ReplyText: reply,
		CreatedAt: time.Now().UTC(),
	})
	if errors.Is(err, domain.ErrAlreadyExists) {
		// A concurrent refresh won the race; its draft stands.
		return nil
	}
	return err
}
