// Package store holds the in-memory draft store. It owns every lifecycle
// transition; all state lives in process memory and is gone at exit.
package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/inboxagent/inboxagent/internal/domain"
)

// GenerateFunc produces a fresh reply for the draft's stored source message.
// It runs inside the draft's critical section.
type GenerateFunc func(ctx context.Context, draft domain.Draft) (string, error)

// SendFunc delivers the draft's current reply text. It runs inside the
// draft's critical section; once it returns nil the send is irreversible.
type SendFunc func(ctx context.Context, draft domain.Draft) error

// MarkReadFunc flags the source message as read after a successful send.
type MarkReadFunc func(ctx context.Context, draft domain.Draft) error

// keyLock serializes operations on a single draft. Refcounted so the entry
// can be reclaimed once no operation holds or waits on it.
type keyLock struct {
	mu   sync.Mutex
	refs int
}

// DraftStore is the process-wide map from message id to draft. Operations on
// distinct drafts never contend; operations on the same draft serialize for
// their full duration, upstream calls included.
type DraftStore struct {
	mu     sync.Mutex // guards drafts and locks maps, never held across callbacks
	drafts map[string]domain.Draft
	locks  map[string]*keyLock
}

// New creates an empty draft store.
func New() *DraftStore {
	return &DraftStore{
		drafts: make(map[string]domain.Draft),
		locks:  make(map[string]*keyLock),
	}
}

// lock acquires the per-draft critical section for messageID.
func (s *DraftStore) lock(messageID string) *keyLock {
	s.mu.Lock()
	kl, ok := s.locks[messageID]
	if !ok {
		kl = &keyLock{}
		s.locks[messageID] = kl
	}
	kl.refs++
	s.mu.Unlock()

	kl.mu.Lock()
	return kl
}

// unlock releases the critical section and reclaims the lock entry when no
// other operation is waiting on it.
func (s *DraftStore) unlock(messageID string, kl *keyLock) {
	kl.mu.Unlock()

	s.mu.Lock()
	kl.refs--
	if kl.refs == 0 {
		delete(s.locks, messageID)
	}
	s.mu.Unlock()
}

// snapshot returns the current draft after checking it may still change.
// Callers must hold the draft's key lock.
func (s *DraftStore) snapshot(messageID string) (domain.Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.drafts[messageID]
	if !ok {
		return domain.Draft{}, fmt.Errorf("draft %s: %w", messageID, domain.ErrNotFound)
	}
	if d.Sent() {
		return domain.Draft{}, fmt.Errorf("draft %s is already sent: %w", messageID, domain.ErrInvalidState)
	}
	return d, nil
}

// commit stores the updated draft. Callers must hold the draft's key lock.
func (s *DraftStore) commit(d domain.Draft) {
	s.mu.Lock()
	s.drafts[d.MessageID] = d
	s.mu.Unlock()
}

// Create inserts a new draft in state GENERATED. The reply text must be
// non-empty and at most one draft may exist per message id.
func (s *DraftStore) Create(ctx context.Context, draft domain.Draft) (domain.Draft, error) {
	if draft.MessageID == "" {
		return domain.Draft{}, fmt.Errorf("%w: empty message id", domain.ErrInvalidInput)
	}
	if strings.TrimSpace(draft.ReplyText) == "" {
		return domain.Draft{}, fmt.Errorf("%w: empty reply text", domain.ErrInvalidInput)
	}

	kl := s.lock(draft.MessageID)
	defer s.unlock(draft.MessageID, kl)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.drafts[draft.MessageID]; ok {
		return domain.Draft{}, fmt.Errorf("draft %s: %w", draft.MessageID, domain.ErrAlreadyExists)
	}

	draft.State = domain.DraftStateGenerated
	s.drafts[draft.MessageID] = draft
	return draft, nil
}

// Get returns the draft for messageID.
func (s *DraftStore) Get(ctx context.Context, messageID string) (domain.Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.drafts[messageID]
	if !ok {
		return domain.Draft{}, fmt.Errorf("draft %s: %w", messageID, domain.ErrNotFound)
	}
	return d, nil
}

// Has reports whether a draft exists for messageID.
func (s *DraftStore) Has(ctx context.Context, messageID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.drafts[messageID]
	return ok
}

// List returns all drafts, newest first.
func (s *DraftStore) List(ctx context.Context) []domain.Draft {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Draft, 0, len(s.drafts))
	for _, d := range s.drafts {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].MessageID < out[j].MessageID
	})
	return out
}

// Edit replaces the reply text and moves the draft to EDITED. A SENT draft
// is immutable and empty text is rejected without touching the draft.
func (s *DraftStore) Edit(ctx context.Context, messageID, newText string) (domain.Draft, error) {
	if strings.TrimSpace(newText) == "" {
		return domain.Draft{}, fmt.Errorf("%w: empty reply text", domain.ErrInvalidInput)
	}

	kl := s.lock(messageID)
	defer s.unlock(messageID, kl)

	d, err := s.snapshot(messageID)
	if err != nil {
		return domain.Draft{}, err
	}

	d.ReplyText = newText
	d.State = domain.DraftStateEdited
	s.commit(d)
	return d, nil
}

// Regenerate calls gen with a snapshot of the draft and, on success, swaps in
// the fresh reply and resets the state to GENERATED. On failure the draft is
// left untouched. The critical section spans the generator call, so a racing
// send or edit on the same draft waits.
func (s *DraftStore) Regenerate(ctx context.Context, messageID string, gen GenerateFunc) (domain.Draft, error) {
	kl := s.lock(messageID)
	defer s.unlock(messageID, kl)

	d, err := s.snapshot(messageID)
	if err != nil {
		return domain.Draft{}, err
	}

	text, err := gen(ctx, d)
	if err != nil {
		return domain.Draft{}, fmt.Errorf("regenerate draft %s: %w", messageID, err)
	}
	if strings.TrimSpace(text) == "" {
		return domain.Draft{}, fmt.Errorf("regenerate draft %s: %w: generator returned empty reply", messageID, domain.ErrUpstream)
	}

	d.ReplyText = text
	d.State = domain.DraftStateGenerated
	s.commit(d)
	return d, nil
}

// Send runs the approve-and-send transition: deliver the current reply text,
// then flag the source message read, then move to SENT. A send failure leaves
// the draft unchanged so the caller may edit or retry. A mark-read failure
// after a successful send still transitions to SENT, because the send is the
// irreversible action; the failure comes back as a non-nil warning.
func (s *DraftStore) Send(ctx context.Context, messageID string, send SendFunc, markRead MarkReadFunc) (draft domain.Draft, warn error, err error) {
	kl := s.lock(messageID)
	defer s.unlock(messageID, kl)

	d, err := s.snapshot(messageID)
	if err != nil {
		return domain.Draft{}, nil, err
	}

	if err := send(ctx, d); err != nil {
		return domain.Draft{}, nil, fmt.Errorf("send draft %s: %w", messageID, err)
	}

	d.State = domain.DraftStateSent
	s.commit(d)

	if err := markRead(ctx, d); err != nil {
		warn = fmt.Errorf("sent, but marking message %s read failed: %w", messageID, err)
	}
	return d, warn, nil
}
