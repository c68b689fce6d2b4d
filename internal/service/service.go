// Package service composes the draft store, mail gateway and reply generator
// into the request-level operations the transport exposes.
package service

import (
	"context"
	"fmt"

	"github.com/inboxagent/inboxagent/internal/domain"
	"github.com/inboxagent/inboxagent/internal/store"
	"github.com/inboxagent/inboxagent/policy"
)

// MailGateway is the mail provider surface the service needs.
type MailGateway interface {
	ListUnread(ctx context.Context) ([]domain.MessageSummary, error)
	FetchMessage(ctx context.Context, messageID string) (domain.Message, error)
	SendReply(ctx context.Context, messageID, replyText string) error
	MarkRead(ctx context.Context, messageID string) error
	Profile(ctx context.Context) (string, error)
}

// ReplyGenerator drafts a reply for one source message.
type ReplyGenerator interface {
	GenerateReply(ctx context.Context, msg domain.Message) (string, error)
}

// AuthFlow is the consent-flow surface of the credential session.
type AuthFlow interface {
	Authenticated() bool
	AuthURL() string
	Exchange(ctx context.Context, state, code string) error
}

// Service wires the components together. All draft state lives in the store;
// the service itself holds no mutable state.
type Service struct {
	store      *store.DraftStore
	gateway    MailGateway
	generator  ReplyGenerator
	authFlow   AuthFlow
	sendPolicy *policy.Engine
}

// New creates the service. sendPolicy may be nil, in which case every
// approved send is allowed through.
func New(drafts *store.DraftStore, gateway MailGateway, generator ReplyGenerator, authFlow AuthFlow, sendPolicy *policy.Engine) *Service {
	return &Service{
		store:      drafts,
		gateway:    gateway,
		generator:  generator,
		authFlow:   authFlow,
		sendPolicy: sendPolicy,
	}
}

// Drafts returns all stored drafts, newest first.
func (s *Service) Drafts(ctx context.Context) []domain.Draft {
	return s.store.List(ctx)
}

// GetDraft returns one draft.
func (s *Service) GetDraft(ctx context.Context, messageID string) (domain.Draft, error) {
	return s.store.Get(ctx, messageID)
}

// EditDraft replaces the reply text of a draft.
func (s *Service) EditDraft(ctx context.Context, messageID, newText string) (domain.Draft, error) {
	return s.store.Edit(ctx, messageID, newText)
}

// RegenerateDraft asks the generator for a fresh reply based on the draft's
// stored source snippet. On generator failure the draft is untouched.
func (s *Service) RegenerateDraft(ctx context.Context, messageID string) (domain.Draft, error) {
	return s.store.Regenerate(ctx, messageID, func(ctx context.Context, d domain.Draft) (string, error) {
		return s.generator.GenerateReply(ctx, domain.Message{
			MessageID: d.MessageID,
			Sender:    d.Sender,
			Subject:   d.Subject,
			Body:      d.Snippet,
		})
	})
}

// ApproveAndSend delivers the draft's current reply text and marks the source
// message read. The send policy is consulted inside the draft's critical
// section, right before the gateway call. A non-nil warning means the send
// succeeded but the read flag could not be set.
func (s *Service) ApproveAndSend(ctx context.Context, messageID string) (domain.Draft, error, error) {
	return s.store.Send(ctx, messageID,
		func(ctx context.Context, d domain.Draft) error {
			if err := s.checkSendPolicy(ctx, d); err != nil {
				return err
			}
			return s.gateway.SendReply(ctx, d.MessageID, d.ReplyText)
		},
		func(ctx context.Context, d domain.Draft) error {
			return s.gateway.MarkRead(ctx, d.MessageID)
		},
	)
}

func (s *Service) checkSendPolicy(ctx context.Context, d domain.Draft) error {
	if s.sendPolicy == nil {
		return nil
	}
	decision, err := s.sendPolicy.Evaluate(ctx, map[string]interface{}{
		"message_id":   d.MessageID,
		"reply_text":   d.ReplyText,
		"reply_length": len(d.ReplyText),
		"state":        string(d.State),
	})
	if err != nil {
		return fmt.Errorf("send policy evaluation: %w", err)
	}
	if decision != "allow" {
		return fmt.Errorf("policy decision %q for draft %s: %w", decision, d.MessageID, domain.ErrSendBlocked)
	}
	return nil
}
