package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/inboxagent/inboxagent/internal/domain"
)

func newDraft(id string) domain.Draft {
	return domain.Draft{
		MessageID: id,
		Sender:    "alice@example.com",
		Subject:   "Quarterly report",
		Snippet:   "Could you review the attached report?",
		ReplyText: "Thanks, will review.",
		CreatedAt: time.Now().UTC(),
	}
}

func TestCreateAndGet(t *testing.T) {
	ctx := context.Background()
	s := New()

	created, err := s.Create(ctx, newDraft("m1"))
	assert.NoError(t, err)
	assert.Equal(t, domain.DraftStateGenerated, created.State)

	for i := 0; i < 3; i++ {
		got, err := s.Get(ctx, "m1")
		assert.NoError(t, err)
		assert.Equal(t, "alice@example.com", got.Sender)
		assert.Equal(t, "Quarterly report", got.Subject)
		assert.Equal(t, "Could you review the attached report?", got.Snippet)
	}
}

func TestCreateDuplicate(t *testing.T) {
	ctx := context.Background()
	s := New()

	_, err := s.Create(ctx, newDraft("m1"))
	assert.NoError(t, err)

	_, err = s.Create(ctx, newDraft("m1"))
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)
}

func TestCreateEmptyReply(t *testing.T) {
	ctx := context.Background()
	s := New()

	d := newDraft("m1")
	d.ReplyText = "   "
	_, err := s.Create(ctx, d)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.False(t, s.Has(ctx, "m1"))
}

func TestGetMissing(t *testing.T) {
	_, err := New().Get(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestEdit(t *testing.T) {
	ctx := context.Background()
	s := New()
	s.Create(ctx, newDraft("m1"))

	edited, err := s.Edit(ctx, "m1", "Actually, here is my revised answer.")
	assert.NoError(t, err)
	assert.Equal(t, domain.DraftStateEdited, edited.State)
	assert.Equal(t, "Actually, here is my revised answer.", edited.ReplyText)

	// Identity fields never change.
	assert.Equal(t, "alice@example.com", edited.Sender)
	assert.Equal(t, "Quarterly report", edited.Subject)
}

func TestEditEmptyTextLeavesDraftUnmodified(t *testing.T) {
	ctx := context.Background()
	s := New()
	s.Create(ctx, newDraft("m1"))

	_, err := s.Edit(ctx, "m1", "")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	got, _ := s.Get(ctx, "m1")
	assert.Equal(t, "Thanks, will review.", got.ReplyText)
	assert.Equal(t, domain.DraftStateGenerated, got.State)
}

func TestEditMissing(t *testing.T) {
	_, err := New().Edit(context.Background(), "nope", "hello")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRegenerateResetsState(t *testing.T) {
	ctx := context.Background()
	s := New()
	s.Create(ctx, newDraft("m1"))
	s.Edit(ctx, "m1", "my manual edit")

	updated, err := s.Regenerate(ctx, "m1", func(ctx context.Context, d domain.Draft) (string, error) {
		// The generator sees the stored source, not the edited reply.
		assert.Equal(t, "Could you review the attached report?", d.Snippet)
		return "A freshly generated reply.", nil
	})
	assert.NoError(t, err)
	assert.Equal(t, domain.DraftStateGenerated, updated.State)
	assert.Equal(t, "A freshly generated reply.", updated.ReplyText)
}

func TestRegenerateFailureLeavesDraftUntouched(t *testing.T) {
	ctx := context.Background()
	s := New()
	s.Create(ctx, newDraft("m1"))

	_, err := s.Regenerate(ctx, "m1", func(ctx context.Context, d domain.Draft) (string, error) {
		return "", fmt.Errorf("quota exceeded: %w", domain.ErrUpstream)
	})
	assert.ErrorIs(t, err, domain.ErrUpstream)

	got, _ := s.Get(ctx, "m1")
	assert.Equal(t, "Thanks, will review.", got.ReplyText)
	assert.Equal(t, domain.DraftStateGenerated, got.State)
}

func TestRegenerateEmptyReplyRejected(t *testing.T) {
	ctx := context.Background()
	s := New()
	s.Create(ctx, newDraft("m1"))

	_, err := s.Regenerate(ctx, "m1", func(ctx context.Context, d domain.Draft) (string, error) {
		return "  ", nil
	})
	assert.ErrorIs(t, err, domain.ErrUpstream)

	got, _ := s.Get(ctx, "m1")
	assert.Equal(t, "Thanks, will review.", got.ReplyText)
}

func noopMarkRead(ctx context.Context, d domain.Draft) error { return nil }

func TestSendTransitionsToSent(t *testing.T) {
	ctx := context.Background()
	s := New()
	s.Create(ctx, newDraft("m1"))

	sent, warn, err := s.Send(ctx, "m1", func(ctx context.Context, d domain.Draft) error {
		assert.Equal(t, "Thanks, will review.", d.ReplyText)
		return nil
	}, noopMarkRead)
	assert.NoError(t, err)
	assert.Nil(t, warn)
	assert.Equal(t, domain.DraftStateSent, sent.State)

	// SENT is terminal: every mutating operation fails and no field changes.
	_, err = s.Edit(ctx, "m1", "too late")
	assert.ErrorIs(t, err, domain.ErrInvalidState)
	_, err = s.Regenerate(ctx, "m1", func(ctx context.Context, d domain.Draft) (string, error) {
		return "new", nil
	})
	assert.ErrorIs(t, err, domain.ErrInvalidState)
	_, _, err = s.Send(ctx, "m1", func(ctx context.Context, d domain.Draft) error { return nil }, noopMarkRead)
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	got, _ := s.Get(ctx, "m1")
	assert.Equal(t, sent.ReplyText, got.ReplyText)
	assert.Equal(t, domain.DraftStateSent, got.State)
}

func TestSendFailureLeavesStateUnchanged(t *testing.T) {
	ctx := context.Background()
	s := New()
	s.Create(ctx, newDraft("m1"))

	_, warn, err := s.Send(ctx, "m1", func(ctx context.Context, d domain.Draft) error {
		return fmt.Errorf("quota: %w", domain.ErrSendFailed)
	}, noopMarkRead)
	assert.ErrorIs(t, err, domain.ErrSendFailed)
	assert.Nil(t, warn)

	got, _ := s.Get(ctx, "m1")
	assert.Equal(t, domain.DraftStateGenerated, got.State)
}

func TestSendMarkReadFailureIsWarning(t *testing.T) {
	ctx := context.Background()
	s := New()
	s.Create(ctx, newDraft("m1"))

	sent, warn, err := s.Send(ctx, "m1",
		func(ctx context.Context, d domain.Draft) error { return nil },
		func(ctx context.Context, d domain.Draft) error {
			return errors.New("modify scope revoked")
		})
	assert.NoError(t, err)
	assert.NotNil(t, warn)
	assert.Equal(t, domain.DraftStateSent, sent.State)
}

func TestConcurrentSendExactlyOnce(t *testing.T) {
	ctx := context.Background()
	s := New()
	s.Create(ctx, newDraft("m1"))

	var sends int32
	send := func(ctx context.Context, d domain.Draft) error {
		atomic.AddInt32(&sends, 1)
		time.Sleep(10 * time.Millisecond) // widen the race window
		return nil
	}

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := s.Send(ctx, "m1", send, noopMarkRead)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var okCount, invalidCount int
	for err := range results {
		switch {
		case err == nil:
			okCount++
		case errors.Is(err, domain.ErrInvalidState):
			invalidCount++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	assert.Equal(t, int32(1), atomic.LoadInt32(&sends))
	assert.Equal(t, 1, okCount)
	assert.Equal(t, 1, invalidCount)

	got, _ := s.Get(ctx, "m1")
	assert.Equal(t, domain.DraftStateSent, got.State)
}

func TestListNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := New()

	older := newDraft("m1")
	older.CreatedAt = time.Now().Add(-time.Hour)
	newer := newDraft("m2")

	s.Create(ctx, older)
	s.Create(ctx, newer)

	drafts := s.List(ctx)
	assert.Len(t, drafts, 2)
	assert.Equal(t, "m2", drafts[0].MessageID)
	assert.Equal(t, "m1", drafts[1].MessageID)
}

func TestKeyLockReclaimed(t *testing.T) {
	ctx := context.Background()
	s := New()
	s.Create(ctx, newDraft("m1"))
	s.Edit(ctx, "m1", "edited")

	s.mu.Lock()
	defer s.mu.Unlock()
	assert.Empty(t, s.locks)
}
