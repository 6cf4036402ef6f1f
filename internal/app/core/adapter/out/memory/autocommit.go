package memory

import (
	"context"

	"github.com/google/uuid"

	"github.com/JoeShih716/digicash-ledger/internal/app/core/domain"
	"github.com/JoeShih716/digicash-ledger/internal/app/core/usecase"
)

// atomicRunner MutexStore 與 LMAXStore 共用
type atomicRunner interface {
	Atomic(ctx context.Context, fn func(tx usecase.Repositories) error) error
}

// autocommit 在 Atomic 之外呼叫 repository 時，每個操作各自包成一個單位
type autocommit struct {
	m atomicRunner
}

func (a autocommit) FindByMobile(ctx context.Context, mobile string) (acc *domain.Account, err error) {
	err = a.m.Atomic(ctx, func(tx usecase.Repositories) error {
		var e error
		acc, e = tx.Accounts().FindByMobile(ctx, mobile)
		return e
	})
	return acc, err
}

func (a autocommit) FindByEmail(ctx context.Context, email string) (acc *domain.Account, err error) {
	err = a.m.Atomic(ctx, func(tx usecase.Repositories) error {
		var e error
		acc, e = tx.Accounts().FindByEmail(ctx, email)
		return e
	})
	return acc, err
}

func (a autocommit) FindByRole(ctx context.Context, role domain.Role) (accs []*domain.Account, err error) {
	err = a.m.Atomic(ctx, func(tx usecase.Repositories) error {
		var e error
		accs, e = tx.Accounts().FindByRole(ctx, role)
		return e
	})
	return accs, err
}

func (a autocommit) ListAccounts(ctx context.Context) (accs []*domain.Account, err error) {
	err = a.m.Atomic(ctx, func(tx usecase.Repositories) error {
		var e error
		accs, e = tx.Accounts().ListAccounts(ctx)
		return e
	})
	return accs, err
}

func (a autocommit) Create(ctx context.Context, account *domain.Account) error {
	return a.m.Atomic(ctx, func(tx usecase.Repositories) error {
		return tx.Accounts().Create(ctx, account)
	})
}

func (a autocommit) SetRole(ctx context.Context, mobile string, role domain.Role, balance *int64) error {
	return a.m.Atomic(ctx, func(tx usecase.Repositories) error {
		return tx.Accounts().SetRole(ctx, mobile, role, balance)
	})
}

func (a autocommit) IncrementBalance(ctx context.Context, mobile string, delta int64) error {
	return a.m.Atomic(ctx, func(tx usecase.Repositories) error {
		return tx.Accounts().IncrementBalance(ctx, mobile, delta)
	})
}

func (a autocommit) TotalBalance(ctx context.Context) (total int64, err error) {
	err = a.m.Atomic(ctx, func(tx usecase.Repositories) error {
		var e error
		total, e = tx.Accounts().TotalBalance(ctx)
		return e
	})
	return total, err
}

func (a autocommit) Append(ctx context.Context, tran *domain.Transaction) error {
	return a.m.Atomic(ctx, func(tx usecase.Repositories) error {
		return tx.Transactions().Append(ctx, tran)
	})
}

func (a autocommit) FindByID(ctx context.Context, id uuid.UUID) (t *domain.Transaction, err error) {
	err = a.m.Atomic(ctx, func(tx usecase.Repositories) error {
		var e error
		t, e = tx.Transactions().FindByID(ctx, id)
		return e
	})
	return t, err
}

func (a autocommit) FindByRefID(ctx context.Context, refID string) (t *domain.Transaction, err error) {
	err = a.m.Atomic(ctx, func(tx usecase.Repositories) error {
		var e error
		t, e = tx.Transactions().FindByRefID(ctx, refID)
		return e
	})
	return t, err
}

func (a autocommit) FindByParty(ctx context.Context, mobile string, methods ...domain.Method) (ts []*domain.Transaction, err error) {
	err = a.m.Atomic(ctx, func(tx usecase.Repositories) error {
		var e error
		ts, e = tx.Transactions().FindByParty(ctx, mobile, methods...)
		return e
	})
	return ts, err
}

func (a autocommit) ListTransactions(ctx context.Context) (ts []*domain.Transaction, err error) {
	err = a.m.Atomic(ctx, func(tx usecase.Repositories) error {
		var e error
		ts, e = tx.Transactions().ListTransactions(ctx)
		return e
	})
	return ts, err
}

func (a autocommit) UpdateStatus(ctx context.Context, id uuid.UUID, expected, next domain.Status, totalAmount int64) error {
	return a.m.Atomic(ctx, func(tx usecase.Repositories) error {
		return tx.Transactions().UpdateStatus(ctx, id, expected, next, totalAmount)
	})
}

var (
	_ usecase.AccountRepository     = autocommit{}
	_ usecase.TransactionRepository = autocommit{}
)
