package usecase_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"

	"github.com/JoeShih716/digicash-ledger/internal/app/core/adapter/out/memory"
	"github.com/JoeShih716/digicash-ledger/internal/app/core/domain"
	"github.com/JoeShih716/digicash-ledger/internal/app/core/usecase"
)

const house = "HOUSE"

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

// backends 每個測試都在兩種記憶體儲存上執行
func backends(t *testing.T) map[string]usecase.Store {
	t.Helper()
	mutex, err := memory.NewMutexStore(nil)
	if err != nil {
		t.Fatalf("NewMutexStore: %v", err)
	}
	lmax, err := memory.NewLMAXStore(nil)
	if err != nil {
		t.Fatalf("NewLMAXStore: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	lmax.Start(ctx)
	t.Cleanup(func() {
		cancel()
		<-lmax.Done()
	})
	return map[string]usecase.Store{"mutex": mutex, "lmax": lmax}
}

func newCore(t *testing.T, store usecase.Store) *usecase.CoreUseCase {
	t.Helper()
	core := usecase.NewCoreUseCase(store, usecase.Settings{HouseAccount: house}, quiet)
	if err := core.Directory.EnsureHouse(context.Background(), house); err != nil {
		t.Fatalf("EnsureHouse: %v", err)
	}
	return core
}

func seed(t *testing.T, store usecase.Store, accounts ...*domain.Account) {
	t.Helper()
	err := store.Atomic(context.Background(), func(tx usecase.Repositories) error {
		for _, a := range accounts {
			if err := tx.Accounts().Create(context.Background(), a); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func user(mobile string, balance int64) *domain.Account {
	return &domain.Account{Mobile: mobile, Email: mobile + "@test", Name: mobile, Role: domain.RoleUser, Balance: balance}
}

func agent(mobile string, balance int64) *domain.Account {
	return &domain.Account{Mobile: mobile, Email: mobile + "@test", Name: mobile, Role: domain.RoleAgent, WantsAgent: true, Balance: balance}
}

func balanceOf(t *testing.T, store usecase.Store, mobile string) int64 {
	t.Helper()
	acc, err := store.Accounts().FindByMobile(context.Background(), mobile)
	if err != nil {
		t.Fatalf("FindByMobile(%s): %v", mobile, err)
	}
	return acc.Balance
}

func totalOf(t *testing.T, store usecase.Store) int64 {
	t.Helper()
	total, err := store.Accounts().TotalBalance(context.Background())
	if err != nil {
		t.Fatalf("TotalBalance: %v", err)
	}
	return total
}

// faultyStore 在原子單位內讓 Append 失敗，用來驗證回滾
type faultyStore struct {
	usecase.Store
}

func (f faultyStore) Atomic(ctx context.Context, fn func(tx usecase.Repositories) error) error {
	return f.Store.Atomic(ctx, func(tx usecase.Repositories) error {
		return fn(faultyTx{tx})
	})
}

type faultyTx struct {
	usecase.Repositories
}

func (f faultyTx) Transactions() usecase.TransactionRepository {
	return faultyTransactions{f.Repositories.Transactions()}
}

type faultyTransactions struct {
	usecase.TransactionRepository
}

func (faultyTransactions) Append(context.Context, *domain.Transaction) error {
	return errors.New("disk full")
}

func (faultyTransactions) UpdateStatus(context.Context, uuid.UUID, domain.Status, domain.Status, int64) error {
	return errors.New("disk full")
}
