package usecase

import (
	"context"

	"github.com/google/uuid"

	"github.com/JoeShih716/digicash-ledger/internal/app/core/domain"
)

// AccountRepository 帳戶儲存 (依手機號碼索引)
type AccountRepository interface {
	// FindByMobile 找不到時回傳 domain.ErrAccountNotFound
	FindByMobile(ctx context.Context, mobile string) (*domain.Account, error)
	// FindByEmail 找不到時回傳 domain.ErrAccountNotFound
	FindByEmail(ctx context.Context, email string) (*domain.Account, error)
	FindByRole(ctx context.Context, role domain.Role) ([]*domain.Account, error)
	// ListAccounts 所有帳戶，依手機號碼排序
	ListAccounts(ctx context.Context) ([]*domain.Account, error)
	// Create 手機號碼或 Email 重複時回傳 domain.ErrAccountAlreadyExists
	Create(ctx context.Context, account *domain.Account) error
	// SetRole 角色轉換並重設餘額 (balance 為 nil 時保留原餘額)
	SetRole(ctx context.Context, mobile string, role domain.Role, balance *int64) error
	// IncrementBalance 原子地加減餘額，結果為負時不變更並回傳 domain.ErrInsufficientFunds
	IncrementBalance(ctx context.Context, mobile string, delta int64) error
	// TotalBalance 所有帳戶餘額總和
	TotalBalance(ctx context.Context) (int64, error)
}

// TransactionRepository append-only 交易紀錄
type TransactionRepository interface {
	Append(ctx context.Context, tran *domain.Transaction) error
	// FindByID 找不到時回傳 domain.ErrRequestNotFound
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error)
	// FindByRefID 找不到時回傳 (nil, nil)
	FindByRefID(ctx context.Context, refID string) (*domain.Transaction, error)
	// FindByParty 付款方或收款方為 mobile 的紀錄，methods 為空時不過濾
	FindByParty(ctx context.Context, mobile string, methods ...domain.Method) ([]*domain.Transaction, error)
	// ListTransactions 所有交易紀錄，依寫入順序
	ListTransactions(ctx context.Context) ([]*domain.Transaction, error)
	// UpdateStatus compare-and-set：只有目前狀態等於 expected 才更新
	// 否則回傳 domain.ErrAlreadyProcessed
	UpdateStatus(ctx context.Context, id uuid.UUID, expected, next domain.Status, totalAmount int64) error
}

// Repositories 一組綁定在同一個儲存交易上的 repository
type Repositories interface {
	Accounts() AccountRepository
	Transactions() TransactionRepository
}

// Store 儲存服務，由建構子注入 (不使用全域連線)
type Store interface {
	Repositories
	// Atomic 在單一儲存交易中執行 fn
	// fn 回傳 nil 才提交，否則所有變更回滾
	Atomic(ctx context.Context, fn func(tx Repositories) error) error
}
