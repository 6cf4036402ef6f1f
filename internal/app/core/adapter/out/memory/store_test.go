package memory_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/JoeShih716/digicash-ledger/internal/app/core/adapter/out/memory"
	"github.com/JoeShih716/digicash-ledger/internal/app/core/domain"
	"github.com/JoeShih716/digicash-ledger/internal/app/core/usecase"
	"github.com/JoeShih716/digicash-ledger/pkg/wal"
)

var (
	quiet    = slog.New(slog.NewTextHandler(io.Discard, nil))
	testTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
)

func openWAL(t *testing.T, path string) *wal.WAL {
	t.Helper()
	w, err := wal.NewWAL(path)
	if err != nil {
		t.Fatalf("NewWAL: %v", err)
	}
	return w
}

func balance(t *testing.T, store usecase.Store, mobile string) int64 {
	t.Helper()
	acc, err := store.Accounts().FindByMobile(context.Background(), mobile)
	if err != nil {
		t.Fatalf("FindByMobile(%s): %v", mobile, err)
	}
	return acc.Balance
}

// populate 透過 usecase 建立帳戶、交易與一筆已核准、一筆 pending 的儲值請求
func populate(t *testing.T, store usecase.Store) (approved, pending *domain.Transaction) {
	t.Helper()
	ctx := context.Background()
	core := usecase.NewCoreUseCase(store, usecase.Settings{HouseAccount: "HOUSE"}, quiet)
	if err := core.Directory.EnsureHouse(ctx, "HOUSE"); err != nil {
		t.Fatalf("EnsureHouse: %v", err)
	}
	for _, a := range []*domain.Account{
		domain.NewAccount("U1", "u1@test", "U1"),
		domain.NewAccount("U2", "u2@test", "U2"),
		domain.NewAccount("A1", "a1@test", "A1"),
	} {
		if err := core.Directory.Register(ctx, a); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}
	if err := core.Directory.Approve(ctx, "U1", domain.RoleUser); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if err := core.Directory.Approve(ctx, "U2", domain.RoleUser); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if err := core.Directory.MakeAgent(ctx, "A1"); err != nil {
		t.Fatalf("MakeAgent: %v", err)
	}
	if _, err := core.Ledger.Execute(ctx, usecase.Intent{
		RefID: "r1", Method: domain.MethodSendMoney, Source: "U1", Recipient: "U2", Amount: 20, TotalAmount: 25,
	}); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	var err error
	approved, err = core.CashIn.Create(ctx, "U2", "A1", 500)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := core.CashIn.Approve(ctx, approved.ID, "A1"); err != nil {
		t.Fatalf("Approve cash-in: %v", err)
	}
	pending, err = core.CashIn.Create(ctx, "U1", "A1", 60)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return approved, pending
}

func TestMutexStoreRecoversFromWAL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wal.log")

	w := openWAL(t, path)
	store, err := memory.NewMutexStore(w)
	if err != nil {
		t.Fatalf("NewMutexStore: %v", err)
	}
	approved, pending := populate(t, store)
	w.Close()

	w = openWAL(t, path)
	defer w.Close()
	recovered, err := memory.NewMutexStore(w)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}

	want := map[string]int64{"U1": 15, "U2": 560, "A1": 9500, "HOUSE": 5}
	for mobile, b := range want {
		if got := balance(t, recovered, mobile); got != b {
			t.Fatalf("%s: want %d, got %d", mobile, b, got)
		}
	}

	ctx := context.Background()
	a, err := recovered.Transactions().FindByID(ctx, approved.ID)
	if err != nil || a.Status != domain.StatusApproved || a.TotalAmount != 500 {
		t.Fatalf("approved request not recovered: %v %+v", err, a)
	}
	p, err := recovered.Transactions().FindByID(ctx, pending.ID)
	if err != nil || p.Status != domain.StatusPending {
		t.Fatalf("pending request not recovered: %v %+v", err, p)
	}
	prev, err := recovered.Transactions().FindByRefID(ctx, "r1")
	if err != nil || prev == nil || prev.Profit != 5 {
		t.Fatalf("ref_id index not recovered: %v %+v", err, prev)
	}
	if acc, _ := recovered.Accounts().FindByMobile(ctx, "A1"); acc.Role != domain.RoleAgent {
		t.Fatalf("role not recovered: %s", acc.Role)
	}
}

func TestAtomicRollsBackAndSkipsWAL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wal.log")
	w := openWAL(t, path)
	store, err := memory.NewMutexStore(w)
	if err != nil {
		t.Fatalf("NewMutexStore: %v", err)
	}
	ctx := context.Background()

	if err := store.Accounts().Create(ctx, &domain.Account{Mobile: "U1", Role: domain.RoleUser, Balance: 100}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	boom := errors.New("boom")
	err = store.Atomic(ctx, func(tx usecase.Repositories) error {
		if err := tx.Accounts().Create(ctx, &domain.Account{Mobile: "U2", Role: domain.RoleUser}); err != nil {
			return err
		}
		if err := tx.Accounts().IncrementBalance(ctx, "U1", -60); err != nil {
			return err
		}
		if err := tx.Accounts().SetRole(ctx, "U1", domain.RoleAgent, nil); err != nil {
			return err
		}
		if err := tx.Transactions().Append(ctx, &domain.Transaction{RefID: "x", Method: domain.MethodCashOut}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("want boom, got %v", err)
	}

	if got := balance(t, store, "U1"); got != 100 {
		t.Fatalf("balance not rolled back: %d", got)
	}
	if acc, _ := store.Accounts().FindByMobile(ctx, "U1"); acc.Role != domain.RoleUser {
		t.Fatalf("role not rolled back: %s", acc.Role)
	}
	if _, err := store.Accounts().FindByMobile(ctx, "U2"); !errors.Is(err, domain.ErrAccountNotFound) {
		t.Fatalf("created account not rolled back: %v", err)
	}
	if prev, _ := store.Transactions().FindByRefID(ctx, "x"); prev != nil {
		t.Fatalf("appended transaction not rolled back")
	}

	lines := 0
	if err := w.ReadAll(func([]byte) error { lines++; return nil }); err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if lines != 1 {
		t.Fatalf("only the committed create should be logged, got %d lines", lines)
	}
	w.Close()
}

func TestRecoveryIgnoresTornTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wal.log")
	w := openWAL(t, path)
	store, err := memory.NewMutexStore(w)
	if err != nil {
		t.Fatalf("NewMutexStore: %v", err)
	}
	if err := store.Accounts().Create(context.Background(), &domain.Account{Mobile: "U1", Balance: 7}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	w.Close()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := f.WriteString(`{"seq":2,"ops":[{"kind":3,"mobile":"U1","del`); err != nil {
		t.Fatalf("write: %v", err)
	}
	f.Close()

	w = openWAL(t, path)
	defer w.Close()
	recovered, err := memory.NewMutexStore(w)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if got := balance(t, recovered, "U1"); got != 7 {
		t.Fatalf("want 7, got %d", got)
	}
}

func TestUpdateStatusIsCompareAndSet(t *testing.T) {
	store, _ := memory.NewMutexStore(nil)
	ctx := context.Background()
	req := domain.NewCashInRequest("R", "A", 100, testTime)
	if err := store.Transactions().Append(ctx, req); err != nil {
		t.Fatalf("Append: %v", err)
	}

	if err := store.Transactions().UpdateStatus(ctx, req.ID, domain.StatusPending, domain.StatusDeclined, 0); err != nil {
		t.Fatalf("first update: %v", err)
	}
	err := store.Transactions().UpdateStatus(ctx, req.ID, domain.StatusPending, domain.StatusApproved, 100)
	if !errors.Is(err, domain.ErrAlreadyProcessed) {
		t.Fatalf("want ErrAlreadyProcessed, got %v", err)
	}
	got, _ := store.Transactions().FindByID(ctx, req.ID)
	if got.Status != domain.StatusDeclined || got.TotalAmount != 0 {
		t.Fatalf("unexpected request: %+v", got)
	}
}

func TestLMAXStoreRecoversAndStops(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wal.log")
	w := openWAL(t, path)
	store, err := memory.NewLMAXStore(w)
	if err != nil {
		t.Fatalf("NewLMAXStore: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	store.Start(ctx)
	populate(t, store)
	cancel()
	<-store.Done()

	err = store.Atomic(context.Background(), func(usecase.Repositories) error { return nil })
	if !errors.Is(err, domain.ErrStorageConflict) {
		t.Fatalf("stopped store: want ErrStorageConflict, got %v", err)
	}
	w.Close()

	w = openWAL(t, path)
	defer w.Close()
	recovered, err := memory.NewMutexStore(w)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if got := balance(t, recovered, "A1"); got != 9500 {
		t.Fatalf("A1 want 9500, got %d", got)
	}
}

func TestAtomicRejectsCanceledContext(t *testing.T) {
	store, _ := memory.NewMutexStore(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	err := store.Atomic(ctx, func(usecase.Repositories) error { called = true; return nil })
	if !errors.Is(err, context.Canceled) || called {
		t.Fatalf("want context.Canceled without running fn, got %v (called=%v)", err, called)
	}
}

func TestLMAXStoreRejectsBeforeStart(t *testing.T) {
	store, err := memory.NewLMAXStore(nil)
	if err != nil {
		t.Fatalf("NewLMAXStore: %v", err)
	}

	errc := make(chan error, 1)
	go func() {
		errc <- store.Atomic(context.Background(), func(usecase.Repositories) error { return nil })
	}()
	select {
	case err := <-errc:
		if !errors.Is(err, domain.ErrStorageConflict) {
			t.Fatalf("want ErrStorageConflict, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Atomic blocked on a store that was never started")
	}
	if _, err := store.Accounts().FindByMobile(context.Background(), "U1"); !errors.Is(err, domain.ErrStorageConflict) {
		t.Fatalf("autocommit read: want ErrStorageConflict, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		<-store.Done()
	}()
	store.Start(ctx)
	populate(t, store)
	if got := balance(t, store, "A1"); got != 9500 {
		t.Fatalf("A1 want 9500, got %d", got)
	}
}
