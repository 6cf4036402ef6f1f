package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/JoeShih716/digicash-ledger/internal/app/core/domain"
	"github.com/JoeShih716/digicash-ledger/internal/app/core/usecase"
)

// unit 一個進行中的提交單位，呼叫端必須持有 store.mu
// 每個變更直接套用到 Map，並記錄 undo 與 WAL op
type unit struct {
	store     *MutexStore
	undo      []func()
	ops       []walOp
	replaying bool
}

func (u *unit) Accounts() usecase.AccountRepository         { return (*accountRepo)(u) }
func (u *unit) Transactions() usecase.TransactionRepository { return (*transactionRepo)(u) }

func (u *unit) record(op walOp, undo func()) {
	if u.replaying {
		return
	}
	u.ops = append(u.ops, op)
	u.undo = append(u.undo, undo)
}

// rollback 反向執行 undo
func (u *unit) rollback() {
	for i := len(u.undo) - 1; i >= 0; i-- {
		u.undo[i]()
	}
	u.undo = nil
	u.ops = nil
}

// commit 寫入 WAL (Critical Path)，唯讀單位不寫
func (u *unit) commit() error {
	m := u.store
	if m.wal == nil || len(u.ops) == 0 {
		return nil
	}
	entry := walEntry{Seq: m.seq + 1, Ops: u.ops}
	if err := m.wal.Write(entry); err != nil {
		return fmt.Errorf("%w: wal write failed: %v", domain.ErrStorageConflict, err)
	}
	m.seq = entry.Seq
	return nil
}

// replay 重放單一 WAL op
func (u *unit) replay(op walOp) error {
	ctx := context.Background()
	switch op.Kind {
	case opCreateAccount:
		return u.Accounts().Create(ctx, op.Account)
	case opSetRole:
		return u.Accounts().SetRole(ctx, op.Mobile, op.Role, op.Balance)
	case opIncrement:
		return u.Accounts().IncrementBalance(ctx, op.Mobile, op.Delta)
	case opAppend:
		return u.Transactions().Append(ctx, op.Transaction)
	case opStatus:
		t, ok := u.store.trans[op.ID]
		if !ok {
			return domain.ErrRequestNotFound
		}
		return u.Transactions().UpdateStatus(ctx, op.ID, t.Status, op.Status, op.TotalAmount)
	}
	return fmt.Errorf("unknown wal op %d", op.Kind)
}

type accountRepo unit

func (r *accountRepo) FindByMobile(_ context.Context, mobile string) (*domain.Account, error) {
	acc, ok := r.store.accounts[mobile]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	clone := *acc
	return &clone, nil
}

func (r *accountRepo) FindByEmail(_ context.Context, email string) (*domain.Account, error) {
	if email == "" {
		return nil, domain.ErrAccountNotFound
	}
	for _, acc := range r.store.accounts {
		if acc.Email == email {
			clone := *acc
			return &clone, nil
		}
	}
	return nil, domain.ErrAccountNotFound
}

func (r *accountRepo) FindByRole(_ context.Context, role domain.Role) ([]*domain.Account, error) {
	return r.collect(func(acc *domain.Account) bool { return acc.Role == role }), nil
}

func (r *accountRepo) ListAccounts(_ context.Context) ([]*domain.Account, error) {
	return r.collect(func(*domain.Account) bool { return true }), nil
}

// collect 複製符合條件的帳戶，依手機號碼排序
func (r *accountRepo) collect(match func(*domain.Account) bool) []*domain.Account {
	out := make([]*domain.Account, 0)
	for _, acc := range r.store.accounts {
		if match(acc) {
			clone := *acc
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Mobile < out[j].Mobile })
	return out
}

func (r *accountRepo) Create(ctx context.Context, account *domain.Account) error {
	if _, ok := r.store.accounts[account.Mobile]; ok {
		return domain.ErrAccountAlreadyExists
	}
	if _, err := r.FindByEmail(ctx, account.Email); err == nil {
		return domain.ErrAccountAlreadyExists
	}
	clone := *account
	r.store.accounts[account.Mobile] = &clone
	(*unit)(r).record(walOp{Kind: opCreateAccount, Account: &clone}, func() {
		delete(r.store.accounts, account.Mobile)
	})
	return nil
}

func (r *accountRepo) SetRole(_ context.Context, mobile string, role domain.Role, balance *int64) error {
	acc, ok := r.store.accounts[mobile]
	if !ok {
		return domain.ErrAccountNotFound
	}
	prevRole, prevBalance := acc.Role, acc.Balance
	acc.Role = role
	if balance != nil {
		acc.Balance = *balance
	}
	(*unit)(r).record(walOp{Kind: opSetRole, Mobile: mobile, Role: role, Balance: balance}, func() {
		acc.Role, acc.Balance = prevRole, prevBalance
	})
	return nil
}

func (r *accountRepo) IncrementBalance(_ context.Context, mobile string, delta int64) error {
	acc, ok := r.store.accounts[mobile]
	if !ok {
		return domain.ErrAccountNotFound
	}
	if acc.Balance+delta < 0 {
		return domain.ErrInsufficientFunds
	}
	acc.Balance += delta
	(*unit)(r).record(walOp{Kind: opIncrement, Mobile: mobile, Delta: delta}, func() {
		acc.Balance -= delta
	})
	return nil
}

func (r *accountRepo) TotalBalance(_ context.Context) (int64, error) {
	var total int64
	for _, acc := range r.store.accounts {
		total += acc.Balance
	}
	return total, nil
}

type transactionRepo unit

func (r *transactionRepo) Append(_ context.Context, tran *domain.Transaction) error {
	if tran.ID == uuid.Nil {
		tran.ID = uuid.New()
	}
	if _, ok := r.store.trans[tran.ID]; ok {
		return fmt.Errorf("transaction %s already exists", tran.ID)
	}
	if tran.RefID != "" {
		if _, ok := r.store.refs[tran.RefID]; ok {
			return fmt.Errorf("ref_id %s already exists", tran.RefID)
		}
	}
	clone := *tran
	s := r.store
	s.trans[clone.ID] = &clone
	s.order = append(s.order, clone.ID)
	if clone.RefID != "" {
		s.refs[clone.RefID] = clone.ID
	}
	(*unit)(r).record(walOp{Kind: opAppend, Transaction: &clone}, func() {
		delete(s.trans, clone.ID)
		s.order = s.order[:len(s.order)-1]
		if clone.RefID != "" {
			delete(s.refs, clone.RefID)
		}
	})
	return nil
}

func (r *transactionRepo) FindByID(_ context.Context, id uuid.UUID) (*domain.Transaction, error) {
	t, ok := r.store.trans[id]
	if !ok {
		return nil, domain.ErrRequestNotFound
	}
	clone := *t
	return &clone, nil
}

func (r *transactionRepo) FindByRefID(_ context.Context, refID string) (*domain.Transaction, error) {
	id, ok := r.store.refs[refID]
	if !ok {
		return nil, nil
	}
	clone := *r.store.trans[id]
	return &clone, nil
}

func (r *transactionRepo) FindByParty(_ context.Context, mobile string, methods ...domain.Method) ([]*domain.Transaction, error) {
	out := make([]*domain.Transaction, 0)
	for _, id := range r.store.order {
		t := r.store.trans[id]
		if !t.Involves(mobile) || !matchMethod(t.Method, methods) {
			continue
		}
		clone := *t
		out = append(out, &clone)
	}
	return out, nil
}

func (r *transactionRepo) ListTransactions(_ context.Context) ([]*domain.Transaction, error) {
	out := make([]*domain.Transaction, 0, len(r.store.order))
	for _, id := range r.store.order {
		clone := *r.store.trans[id]
		out = append(out, &clone)
	}
	return out, nil
}

func (r *transactionRepo) UpdateStatus(_ context.Context, id uuid.UUID, expected, next domain.Status, totalAmount int64) error {
	t, ok := r.store.trans[id]
	if !ok {
		return domain.ErrRequestNotFound
	}
	if t.Status != expected || !domain.CanTransition(expected, next) {
		return domain.ErrAlreadyProcessed
	}
	prevStatus, prevTotal := t.Status, t.TotalAmount
	t.Status = next
	if next == domain.StatusApproved {
		t.TotalAmount = totalAmount
	}
	(*unit)(r).record(walOp{Kind: opStatus, ID: id, Status: next, TotalAmount: totalAmount}, func() {
		t.Status, t.TotalAmount = prevStatus, prevTotal
	})
	return nil
}

func matchMethod(m domain.Method, methods []domain.Method) bool {
	if len(methods) == 0 {
		return true
	}
	for _, want := range methods {
		if m == want {
			return true
		}
	}
	return false
}
