package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/JoeShih716/digicash-ledger/internal/app/core/domain"
	"github.com/JoeShih716/digicash-ledger/internal/app/core/usecase"
	"github.com/JoeShih716/digicash-ledger/pkg/wal"
)

// MutexStore 以 Mutex 保護的記憶體儲存
//
// 結構:
//
//	accounts: 帳戶資料 Map (手機號碼 -> 帳戶)
//	trans: 交易紀錄 Map，order 保留寫入順序
//	refs: RefID -> 交易 ID
//	wal: Write-Ahead Log，每個提交單位寫一行 (可為 nil)
type MutexStore struct {
	mu       sync.Mutex
	accounts map[string]*domain.Account
	trans    map[uuid.UUID]*domain.Transaction
	order    []uuid.UUID
	refs     map[string]uuid.UUID
	seq      uint64
	wal      *wal.WAL
}

// walEntry 一個提交單位
type walEntry struct {
	Seq uint64  `json:"seq"`
	Ops []walOp `json:"ops"`
}

// walOp 單一變更
type walOp struct {
	Kind        opKind              `json:"kind"`
	Account     *domain.Account     `json:"account,omitempty"`
	Transaction *domain.Transaction `json:"transaction,omitempty"`
	Mobile      string              `json:"mobile,omitempty"`
	Delta       int64               `json:"delta,omitempty"`
	Role        domain.Role         `json:"role,omitempty"`
	Balance     *int64              `json:"balance,omitempty"`
	ID          uuid.UUID           `json:"id"`
	Status      domain.Status       `json:"status,omitempty"`
	TotalAmount int64               `json:"total_amount,omitempty"`
}

type opKind uint8

const (
	opCreateAccount opKind = iota + 1
	opSetRole
	opIncrement
	opAppend
	opStatus
)

// NewMutexStore 建立記憶體儲存，若有 WAL 先重放恢復狀態
//
// 參數:
//
//	w: Write-Ahead Log 實例，nil 代表純記憶體 (測試用)
//
// 回傳:
//
//	*MutexStore: 儲存實例
//	error: WAL 恢復失敗
func NewMutexStore(w *wal.WAL) (*MutexStore, error) {
	m := &MutexStore{
		accounts: make(map[string]*domain.Account),
		trans:    make(map[uuid.UUID]*domain.Transaction),
		refs:     make(map[string]uuid.UUID),
		wal:      w,
	}
	if w == nil {
		return m, nil
	}
	if err := m.recoverFromWAL(); err != nil {
		return nil, err
	}
	return m, nil
}

// recoverFromWAL 重放所有已提交單位 (只在建構時呼叫，無需 Lock)
func (m *MutexStore) recoverFromWAL() error {
	return m.wal.ReadAll(func(jsonRaw []byte) error {
		var entry walEntry
		if err := json.Unmarshal(jsonRaw, &entry); err != nil {
			return err
		}
		u := &unit{store: m, replaying: true}
		for _, op := range entry.Ops {
			if err := u.replay(op); err != nil {
				return fmt.Errorf("replay wal entry %d: %w", entry.Seq, err)
			}
		}
		m.seq = entry.Seq
		return nil
	})
}

// Atomic 在 Lock 內執行 fn，失敗時依 undo journal 反向回滾
// 提交時整個單位寫成一行 WAL，寫入失敗同樣回滾
func (m *MutexStore) Atomic(ctx context.Context, fn func(tx usecase.Repositories) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.run(ctx, fn)
}

// run 執行一個提交單位，呼叫端必須保證獨占 (持有 mu 或為唯一的寫入者)
func (m *MutexStore) run(ctx context.Context, fn func(tx usecase.Repositories) error) error {
	u := &unit{store: m}
	if err := fn(u); err != nil {
		u.rollback()
		return err
	}
	if err := ctx.Err(); err != nil {
		u.rollback()
		return err
	}
	if err := u.commit(); err != nil {
		u.rollback()
		return err
	}
	return nil
}

// Accounts 單一操作各自為一個提交單位
func (m *MutexStore) Accounts() usecase.AccountRepository {
	return autocommit{m}
}

// Transactions 單一操作各自為一個提交單位
func (m *MutexStore) Transactions() usecase.TransactionRepository {
	return autocommit{m}
}

var _ usecase.Store = (*MutexStore)(nil)
