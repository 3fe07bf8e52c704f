package ledger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/okazakov/bookbot/internal/audit"
	"github.com/okazakov/bookbot/internal/authz"
	"github.com/okazakov/bookbot/internal/domain"
	"github.com/okazakov/bookbot/internal/logger"
	"github.com/okazakov/bookbot/internal/storage"
	"github.com/okazakov/bookbot/internal/storage/memory"
)

// fixedClock pins the service clock for deterministic tests.
type fixedClock struct {
	t time.Time
}

func (c fixedClock) Now() time.Time { return c.t }

// collidingStore wraps a TransactionStore and forces the first n inserts
// to report a unique violation.
type collidingStore struct {
	storage.TransactionStore
	mu         sync.Mutex
	collisions int
}

func (s *collidingStore) Insert(ctx context.Context, tx *domain.Transaction) error {
	s.mu.Lock()
	if s.collisions > 0 {
		s.collisions--
		s.mu.Unlock()
		return storage.ErrUniqueViolation
	}
	s.mu.Unlock()
	return s.TransactionStore.Insert(ctx, tx)
}

func newTestService(store storage.TransactionStore) (*Service, *audit.Recorder) {
	recorder := audit.NewRecorder()
	auth := authz.NewStaticAuthorizer(map[string]authz.Role{
		"admin": authz.RoleApprover,
		"root":  authz.RoleSuperAdmin,
		"staff": authz.RoleOwner,
	})
	clock := fixedClock{t: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)}
	svc := NewService(store, auth, recorder, clock, logger.NewWithWriter(io.Discard), Config{
		AutoApprovalThreshold: decimal.NewFromInt(1_000_000),
		RetryDelay:            time.Millisecond,
	})
	return svc, recorder
}

func TestCreate_AutoApprovalThreshold(t *testing.T) {
	tests := []struct {
		name   string
		amount int64
		want   domain.TransactionStatus
	}{
		{"below threshold auto-approves", 999_999, domain.StatusApproved},
		{"at threshold stays pending", 1_000_000, domain.StatusPending},
		{"above threshold stays pending", 2_500_000, domain.StatusPending},
		{"small amount auto-approves", 1, domain.StatusApproved},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newTestService(memory.NewTransactionStore())

			tx, err := svc.Create(context.Background(), CreateInput{
				OwnerID:     "staff",
				Type:        domain.TypeExpense,
				Amount:      decimal.NewFromInt(tt.amount),
				Description: "supplies",
			})
			if err != nil {
				t.Fatalf("Create failed: %v", err)
			}
			if tx.Status != tt.want {
				t.Errorf("Create status = %s, want %s", tx.Status, tt.want)
			}
			if tt.want == domain.StatusApproved && tx.ApprovedAt == nil {
				t.Error("Auto-approved transaction should carry an approval timestamp")
			}
			if tt.want == domain.StatusPending && tx.ApprovedAt != nil {
				t.Error("Pending transaction should not carry an approval timestamp")
			}
		})
	}
}

func TestCreate_Validation(t *testing.T) {
	tests := []struct {
		name  string
		input CreateInput
	}{
		{
			name: "zero amount",
			input: CreateInput{
				OwnerID: "staff", Type: domain.TypeSale,
				Amount: decimal.Zero, Description: "nothing",
			},
		},
		{
			name: "negative amount",
			input: CreateInput{
				OwnerID: "staff", Type: domain.TypeSale,
				Amount: decimal.NewFromInt(-500), Description: "refund",
			},
		},
		{
			name: "unknown type",
			input: CreateInput{
				OwnerID: "staff", Type: domain.TransactionType("loan"),
				Amount: decimal.NewFromInt(100), Description: "loan",
			},
		},
		{
			name: "receivable without counterparty",
			input: CreateInput{
				OwnerID: "staff", Type: domain.TypeReceivable,
				Amount: decimal.NewFromInt(100), Description: "invoice",
			},
		},
		{
			name: "missing owner",
			input: CreateInput{
				Type: domain.TypeSale, Amount: decimal.NewFromInt(100),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newTestService(memory.NewTransactionStore())

			_, err := svc.Create(context.Background(), tt.input)

			var vErr *domain.ValidationError
			if !errors.As(err, &vErr) {
				t.Errorf("Create error = %v, want ValidationError", err)
			}
		})
	}
}

func TestCreate_ReceivableWithCounterparty(t *testing.T) {
	svc, _ := newTestService(memory.NewTransactionStore())

	tx, err := svc.Create(context.Background(), CreateInput{
		OwnerID:      "staff",
		Type:         domain.TypeReceivable,
		Amount:       decimal.NewFromInt(4000),
		Description:  "wholesale invoice",
		Counterparty: "Acme Distributors",
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if tx.Counterparty != "Acme Distributors" {
		t.Errorf("Counterparty = %q, want %q", tx.Counterparty, "Acme Distributors")
	}
}

func TestCreate_ReferenceCodeFormat(t *testing.T) {
	svc, _ := newTestService(memory.NewTransactionStore())

	tx, err := svc.Create(context.Background(), CreateInput{
		OwnerID: "staff", Type: domain.TypeSale,
		Amount: decimal.NewFromInt(900), Description: "till sale",
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	pattern := regexp.MustCompile(`^TXN-20260310-[0-9a-f]{8}$`)
	if !pattern.MatchString(tx.ReferenceCode) {
		t.Errorf("ReferenceCode %q does not match %s", tx.ReferenceCode, pattern)
	}
}

func TestCreate_CollisionRetry(t *testing.T) {
	store := &collidingStore{TransactionStore: memory.NewTransactionStore(), collisions: 2}
	svc, _ := newTestService(store)

	tx, err := svc.Create(context.Background(), CreateInput{
		OwnerID: "staff", Type: domain.TypeSale,
		Amount: decimal.NewFromInt(100), Description: "retried",
	})
	if err != nil {
		t.Fatalf("Create should succeed within the retry budget: %v", err)
	}
	if tx.ReferenceCode == "" {
		t.Error("Expected an allocated reference code")
	}
}

func TestCreate_CollisionExhausted(t *testing.T) {
	store := &collidingStore{TransactionStore: memory.NewTransactionStore(), collisions: 10}
	svc, _ := newTestService(store)

	_, err := svc.Create(context.Background(), CreateInput{
		OwnerID: "staff", Type: domain.TypeSale,
		Amount: decimal.NewFromInt(100), Description: "doomed",
	})

	var aErr *domain.AllocationError
	if !errors.As(err, &aErr) {
		t.Fatalf("Create error = %v, want AllocationError", err)
	}
	if aErr.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", aErr.Attempts)
	}
	if !errors.Is(err, storage.ErrUniqueViolation) {
		t.Error("AllocationError should wrap the unique violation")
	}
}

func TestCreate_ConcurrentDistinctReferences(t *testing.T) {
	const n = 1000

	store := memory.NewTransactionStore()
	svc, _ := newTestService(store)

	var wg sync.WaitGroup
	refs := make(chan string, n)
	errs := make(chan error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tx, err := svc.Create(context.Background(), CreateInput{
				OwnerID: "staff", Type: domain.TypeSale,
				Amount:      decimal.NewFromInt(int64(i + 1)),
				Description: fmt.Sprintf("sale %d", i),
			})
			if err != nil {
				errs <- err
				return
			}
			refs <- tx.ReferenceCode
		}(i)
	}
	wg.Wait()
	close(refs)
	close(errs)

	for err := range errs {
		t.Fatalf("concurrent Create failed: %v", err)
	}

	seen := make(map[string]bool, n)
	for ref := range refs {
		if seen[ref] {
			t.Fatalf("duplicate reference code %q", ref)
		}
		seen[ref] = true
	}
	if len(seen) != n {
		t.Errorf("got %d distinct references, want %d", len(seen), n)
	}
}

func TestApprove(t *testing.T) {
	svc, recorder := newTestService(memory.NewTransactionStore())

	tx, err := svc.Create(context.Background(), CreateInput{
		OwnerID: "staff", Type: domain.TypeExpense,
		Amount: decimal.NewFromInt(5_000_000), Description: "new oven",
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	approved, err := svc.Approve(context.Background(), tx.ReferenceCode, "admin")
	if err != nil {
		t.Fatalf("Approve failed: %v", err)
	}
	if approved.Status != domain.StatusApproved {
		t.Errorf("Status = %s, want approved", approved.Status)
	}
	if approved.ApproverID != "admin" {
		t.Errorf("ApproverID = %q, want admin", approved.ApproverID)
	}
	if approved.ApprovedAt == nil {
		t.Error("ApprovedAt should be set")
	}

	events := recorder.Events()
	if len(events) != 2 || events[1].Action != "approved" {
		t.Errorf("expected created+approved audit events, got %+v", events)
	}
}

func TestApprove_SecondTransitionFails(t *testing.T) {
	tests := []struct {
		name       string
		first      func(svc *Service, ref string) error
		second     func(svc *Service, ref string) error
		wantStatus domain.TransactionStatus
	}{
		{
			name: "approve then reject",
			first: func(svc *Service, ref string) error {
				_, err := svc.Approve(context.Background(), ref, "admin")
				return err
			},
			second: func(svc *Service, ref string) error {
				_, err := svc.Reject(context.Background(), ref, "root", "too expensive")
				return err
			},
			wantStatus: domain.StatusApproved,
		},
		{
			name: "reject then approve",
			first: func(svc *Service, ref string) error {
				_, err := svc.Reject(context.Background(), ref, "admin", "duplicate entry")
				return err
			},
			second: func(svc *Service, ref string) error {
				_, err := svc.Approve(context.Background(), ref, "root")
				return err
			},
			wantStatus: domain.StatusRejected,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := memory.NewTransactionStore()
			svc, _ := newTestService(store)

			tx, err := svc.Create(context.Background(), CreateInput{
				OwnerID: "staff", Type: domain.TypeExpense,
				Amount: decimal.NewFromInt(2_000_000), Description: "fitout",
			})
			if err != nil {
				t.Fatalf("Create failed: %v", err)
			}

			if err := tt.first(svc, tx.ReferenceCode); err != nil {
				t.Fatalf("first transition failed: %v", err)
			}

			err = tt.second(svc, tx.ReferenceCode)
			var sErr *domain.InvalidStateError
			if !errors.As(err, &sErr) {
				t.Errorf("second transition error = %v, want InvalidStateError", err)
			}

			stored, err := svc.ByReference(context.Background(), tx.ReferenceCode)
			if err != nil {
				t.Fatalf("ByReference failed: %v", err)
			}
			if stored.Status != tt.wantStatus {
				t.Errorf("stored status = %s, want %s", stored.Status, tt.wantStatus)
			}
		})
	}
}

func TestApprove_Errors(t *testing.T) {
	svc, _ := newTestService(memory.NewTransactionStore())

	tx, err := svc.Create(context.Background(), CreateInput{
		OwnerID: "staff", Type: domain.TypeExpense,
		Amount: decimal.NewFromInt(3_000_000), Description: "renovation",
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	t.Run("unknown reference", func(t *testing.T) {
		_, err := svc.Approve(context.Background(), "TXN-20260310-ffffffff", "admin")
		var nfErr *domain.NotFoundError
		if !errors.As(err, &nfErr) {
			t.Errorf("error = %v, want NotFoundError", err)
		}
	})

	t.Run("approver without capability", func(t *testing.T) {
		_, err := svc.Approve(context.Background(), tx.ReferenceCode, "staff")
		var fErr *domain.ForbiddenError
		if !errors.As(err, &fErr) {
			t.Errorf("error = %v, want ForbiddenError", err)
		}
	})

	t.Run("unknown actor", func(t *testing.T) {
		_, err := svc.Approve(context.Background(), tx.ReferenceCode, "stranger")
		var fErr *domain.ForbiddenError
		if !errors.As(err, &fErr) {
			t.Errorf("error = %v, want ForbiddenError", err)
		}
	})
}

func TestReject_StoresReason(t *testing.T) {
	svc, recorder := newTestService(memory.NewTransactionStore())

	tx, err := svc.Create(context.Background(), CreateInput{
		OwnerID: "staff", Type: domain.TypeExpense,
		Amount: decimal.NewFromInt(8_000_000), Description: "company car",
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	rejected, err := svc.Reject(context.Background(), tx.ReferenceCode, "root", "not in budget")
	if err != nil {
		t.Fatalf("Reject failed: %v", err)
	}
	if rejected.Status != domain.StatusRejected {
		t.Errorf("Status = %s, want rejected", rejected.Status)
	}
	if rejected.RejectReason != "not in budget" {
		t.Errorf("RejectReason = %q, want %q", rejected.RejectReason, "not in budget")
	}

	events := recorder.Events()
	last := events[len(events)-1]
	if last.Action != "rejected" || last.Details["reason"] != "not in budget" {
		t.Errorf("unexpected audit event: %+v", last)
	}
}

func TestQueries(t *testing.T) {
	svc, _ := newTestService(memory.NewTransactionStore())
	ctx := context.Background()

	small, err := svc.Create(ctx, CreateInput{
		OwnerID: "staff", Type: domain.TypeSale,
		Amount: decimal.NewFromInt(100), Description: "coffee",
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	big, err := svc.Create(ctx, CreateInput{
		OwnerID: "staff", Type: domain.TypeExpense,
		Amount: decimal.NewFromInt(9_000_000), Description: "espresso machine",
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := svc.Create(ctx, CreateInput{
		OwnerID: "other", Type: domain.TypeSale,
		Amount: decimal.NewFromInt(200), Description: "tea",
	}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	t.Run("pending lists only unsettled", func(t *testing.T) {
		pending, err := svc.Pending(ctx)
		if err != nil {
			t.Fatalf("Pending failed: %v", err)
		}
		if len(pending) != 1 || pending[0].ReferenceCode != big.ReferenceCode {
			t.Errorf("Pending = %+v, want only %s", pending, big.ReferenceCode)
		}
	})

	t.Run("by owner with type filter", func(t *testing.T) {
		sales, err := svc.ByOwner(ctx, "staff", storage.TransactionFilter{Type: domain.TypeSale})
		if err != nil {
			t.Fatalf("ByOwner failed: %v", err)
		}
		if len(sales) != 1 || sales[0].ReferenceCode != small.ReferenceCode {
			t.Errorf("ByOwner(sale) = %+v, want only %s", sales, small.ReferenceCode)
		}
	})

	t.Run("by owner with status filter", func(t *testing.T) {
		approved, err := svc.ByOwner(ctx, "staff", storage.TransactionFilter{Status: domain.StatusApproved})
		if err != nil {
			t.Fatalf("ByOwner failed: %v", err)
		}
		if len(approved) != 1 || approved[0].ReferenceCode != small.ReferenceCode {
			t.Errorf("ByOwner(approved) = %+v, want only %s", approved, small.ReferenceCode)
		}
	})
}
