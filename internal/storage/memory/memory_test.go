package memory

import (
	"context"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okazakov/bookbot/internal/domain"
	"github.com/okazakov/bookbot/internal/storage"
)

func newTransaction(ref string, status domain.TransactionStatus, createdAt time.Time) *domain.Transaction {
	return &domain.Transaction{
		ID:            "id-" + ref,
		ReferenceCode: ref,
		OwnerID:       "staff",
		Type:          domain.TypeExpense,
		Amount:        decimal.NewFromInt(100),
		Status:        status,
		CreatedAt:     createdAt,
	}
}

func newTemplate(id string, status domain.TemplateStatus, nextRun civil.Date) *domain.RecurringTemplate {
	return &domain.RecurringTemplate{
		ID:        id,
		OwnerID:   "staff",
		Type:      domain.TypeExpense,
		Amount:    decimal.NewFromInt(50),
		Frequency: domain.FreqDaily,
		Interval:  1,
		StartDate: nextRun,
		Status:    status,
		NextRun:   nextRun,
		CreatedAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestTransactionStore_InsertUniqueness(t *testing.T) {
	s := NewTransactionStore()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.Insert(ctx, newTransaction("TXN-1", domain.StatusPending, now)))

	err := s.Insert(ctx, newTransaction("TXN-1", domain.StatusPending, now))
	assert.ErrorIs(t, err, storage.ErrUniqueViolation)
}

func TestTransactionStore_GetByReference(t *testing.T) {
	s := NewTransactionStore()
	ctx := context.Background()

	require.NoError(t, s.Insert(ctx, newTransaction("TXN-1", domain.StatusPending, time.Now())))

	got, err := s.GetByReference(ctx, "TXN-1")
	require.NoError(t, err)
	assert.Equal(t, "TXN-1", got.ReferenceCode)

	// The returned value is a copy; mutating it must not leak back.
	got.Status = domain.StatusApproved
	again, err := s.GetByReference(ctx, "TXN-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, again.Status)

	_, err = s.GetByReference(ctx, "TXN-missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestTransactionStore_SettleIfPending(t *testing.T) {
	s := NewTransactionStore()
	ctx := context.Background()
	at := time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.Insert(ctx, newTransaction("TXN-1", domain.StatusPending, time.Now())))

	settled, err := s.SettleIfPending(ctx, "TXN-1", domain.StatusApproved, "admin", "", at)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusApproved, settled.Status)
	assert.Equal(t, "admin", settled.ApproverID)
	require.NotNil(t, settled.ApprovedAt)
	assert.Equal(t, at, *settled.ApprovedAt)

	// Already settled: the conditional update matches nothing.
	_, err = s.SettleIfPending(ctx, "TXN-1", domain.StatusRejected, "admin", "dup", at)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = s.SettleIfPending(ctx, "TXN-missing", domain.StatusApproved, "admin", "", at)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestTransactionStore_ListByOwner(t *testing.T) {
	s := NewTransactionStore()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	older := newTransaction("TXN-1", domain.StatusApproved, base)
	newer := newTransaction("TXN-2", domain.StatusPending, base.AddDate(0, 0, 5))
	other := newTransaction("TXN-3", domain.StatusPending, base)
	other.OwnerID = "someone-else"

	for _, tx := range []*domain.Transaction{older, newer, other} {
		require.NoError(t, s.Insert(ctx, tx))
	}

	t.Run("newest first", func(t *testing.T) {
		got, err := s.ListByOwner(ctx, "staff", storage.TransactionFilter{})
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "TXN-2", got[0].ReferenceCode)
		assert.Equal(t, "TXN-1", got[1].ReferenceCode)
	})

	t.Run("status filter", func(t *testing.T) {
		got, err := s.ListByOwner(ctx, "staff", storage.TransactionFilter{Status: domain.StatusApproved})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "TXN-1", got[0].ReferenceCode)
	})

	t.Run("date range is half-open", func(t *testing.T) {
		got, err := s.ListByOwner(ctx, "staff", storage.TransactionFilter{
			From: base,
			To:   base.AddDate(0, 0, 5),
		})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "TXN-1", got[0].ReferenceCode)
	})
}

func TestTransactionStore_ListApprovedBetween(t *testing.T) {
	s := NewTransactionStore()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.Insert(ctx, newTransaction("TXN-1", domain.StatusApproved, base)))
	require.NoError(t, s.Insert(ctx, newTransaction("TXN-2", domain.StatusApproved, base.AddDate(0, 1, 0))))
	require.NoError(t, s.Insert(ctx, newTransaction("TXN-3", domain.StatusPending, base)))

	got, err := s.ListApprovedBetween(ctx, base, base.AddDate(0, 1, 0))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "TXN-1", got[0].ReferenceCode)
}

func TestTemplateStore_ListDue(t *testing.T) {
	s := NewTemplateStore()
	ctx := context.Background()

	d := func(day int) civil.Date { return civil.Date{Year: 2026, Month: time.March, Day: day} }

	require.NoError(t, s.Insert(ctx, newTemplate("late", domain.TemplateActive, d(8))))
	require.NoError(t, s.Insert(ctx, newTemplate("early", domain.TemplateActive, d(1))))
	require.NoError(t, s.Insert(ctx, newTemplate("future", domain.TemplateActive, d(20))))
	require.NoError(t, s.Insert(ctx, newTemplate("paused", domain.TemplatePaused, d(1))))

	due, err := s.ListDue(ctx, d(9))
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, "early", due[0].ID)
	assert.Equal(t, "late", due[1].ID)
}

func TestTemplateStore_Claim(t *testing.T) {
	s := NewTemplateStore()
	ctx := context.Background()
	now := time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC)
	nextRun := civil.Date{Year: 2026, Month: time.March, Day: 9}

	require.NoError(t, s.Insert(ctx, newTemplate("t1", domain.TemplateActive, nextRun)))
	require.NoError(t, s.Insert(ctx, newTemplate("t2", domain.TemplatePaused, nextRun)))

	t.Run("first claim wins", func(t *testing.T) {
		require.NoError(t, s.Claim(ctx, "t1", now, time.Minute))
		assert.ErrorIs(t, s.Claim(ctx, "t1", now.Add(10*time.Second), time.Minute), storage.ErrNotClaimed)
	})

	t.Run("expired claim can be retaken", func(t *testing.T) {
		require.NoError(t, s.Claim(ctx, "t1", now.Add(2*time.Minute), time.Minute))
	})

	t.Run("release frees the claim", func(t *testing.T) {
		require.NoError(t, s.Release(ctx, "t1"))
		require.NoError(t, s.Claim(ctx, "t1", now.Add(2*time.Minute), time.Minute))
	})

	t.Run("non-active templates cannot be claimed", func(t *testing.T) {
		assert.ErrorIs(t, s.Claim(ctx, "t2", now, time.Minute), storage.ErrNotClaimed)
	})

	t.Run("unknown id", func(t *testing.T) {
		assert.ErrorIs(t, s.Claim(ctx, "missing", now, time.Minute), storage.ErrNotClaimed)
	})
}

func TestTemplateStore_UpdateIf(t *testing.T) {
	s := NewTemplateStore()
	ctx := context.Background()
	nextRun := civil.Date{Year: 2026, Month: time.March, Day: 9}

	require.NoError(t, s.Insert(ctx, newTemplate("t1", domain.TemplateActive, nextRun)))

	t.Run("guard matches", func(t *testing.T) {
		got, err := s.UpdateIf(ctx, "t1", []domain.TemplateStatus{domain.TemplateActive}, func(t *domain.RecurringTemplate) {
			t.Status = domain.TemplatePaused
		})
		require.NoError(t, err)
		assert.Equal(t, domain.TemplatePaused, got.Status)
	})

	t.Run("guard mismatch leaves the row untouched", func(t *testing.T) {
		_, err := s.UpdateIf(ctx, "t1", []domain.TemplateStatus{domain.TemplateActive}, func(t *domain.RecurringTemplate) {
			t.TotalRuns = 99
		})
		assert.ErrorIs(t, err, storage.ErrNotFound)

		got, err := s.Get(ctx, "t1")
		require.NoError(t, err)
		assert.Equal(t, 0, got.TotalRuns)
	})

	t.Run("update clears the claim", func(t *testing.T) {
		require.NoError(t, s.Insert(ctx, newTemplate("t2", domain.TemplateActive, nextRun)))
		require.NoError(t, s.Claim(ctx, "t2", time.Now(), time.Minute))

		got, err := s.UpdateIf(ctx, "t2", []domain.TemplateStatus{domain.TemplateActive}, func(t *domain.RecurringTemplate) {
			t.TotalRuns++
		})
		require.NoError(t, err)
		assert.Nil(t, got.ClaimedAt)
	})
}

func TestRunHistoryStore(t *testing.T) {
	s := NewRunHistoryStore()
	ctx := context.Background()
	base := time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC)

	for i, outcome := range []domain.RunOutcome{domain.RunSuccess, domain.RunFailed} {
		require.NoError(t, s.Append(ctx, &domain.RunHistory{
			ID:           string(rune('a' + i)),
			TemplateID:   "t1",
			ScheduledFor: civil.Date{Year: 2026, Month: time.March, Day: 9},
			ProcessedAt:  base.Add(time.Duration(i) * time.Hour),
			Outcome:      outcome,
		}))
	}
	require.NoError(t, s.Append(ctx, &domain.RunHistory{
		ID:          "other",
		TemplateID:  "t2",
		ProcessedAt: base,
		Outcome:     domain.RunSuccess,
	}))

	runs, err := s.ListByTemplate(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, runs, 2)
	// Newest attempt first.
	assert.Equal(t, domain.RunFailed, runs[0].Outcome)
	assert.Equal(t, domain.RunSuccess, runs[1].Outcome)
}
