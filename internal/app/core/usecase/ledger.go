package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/JoeShih716/digicash-ledger/internal/app/core/domain"
)

// Intent 已通過驗證 (身分、PIN) 的交易意圖
type Intent struct {
	// RefID 呼叫端提供的請求編號，可為空；重複時回傳原本的結果
	RefID       string
	Method      domain.Method
	Source      string
	Recipient   string
	Amount      int64
	TotalAmount int64
}

// Receipt 交易結果
type Receipt struct {
	TransactionID uuid.UUID
	Status        domain.Status
	// Replayed 代表 RefID 已處理過，這次沒有任何變更
	Replayed bool
}

// LedgerEngine 執行扣款、入帳與寫入紀錄，三者在同一個原子單位內完成
type LedgerEngine struct {
	store  Store
	house  string
	now    func() time.Time
	logger *slog.Logger
}

// EngineOption 設定 LedgerEngine 的選項
type EngineOption func(*LedgerEngine)

// WithClock 替換時間來源 (測試用)
func WithClock(now func() time.Time) EngineOption {
	return func(e *LedgerEngine) {
		e.now = now
	}
}

// WithLogger 設定 logger
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *LedgerEngine) {
		e.logger = logger
	}
}

// NewLedgerEngine 建立帳務引擎
//
// 參數:
//
//	store: 儲存服務
//	houseAccount: 平台收益帳戶，send-money 的 profit 入帳至此
func NewLedgerEngine(store Store, houseAccount string, opts ...EngineOption) *LedgerEngine {
	e := &LedgerEngine{
		store:  store,
		house:  houseAccount,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute 執行 send-money / cashout / cashin
// 失敗時儲存狀態與呼叫前完全相同
func (e *LedgerEngine) Execute(ctx context.Context, in Intent) (*Receipt, error) {
	posting, err := domain.NewPosting(in.Method, in.Source, in.Recipient, in.Amount, in.TotalAmount)
	if err != nil {
		return nil, err
	}

	var receipt *Receipt
	err = e.store.Atomic(ctx, func(tx Repositories) error {
		if in.RefID != "" {
			prev, err := tx.Transactions().FindByRefID(ctx, in.RefID)
			if err != nil {
				return err
			}
			if prev != nil {
				receipt = &Receipt{TransactionID: prev.ID, Status: prev.Status, Replayed: true}
				return nil
			}
		}
		if err := e.apply(ctx, tx, posting, domain.ErrInsufficientFunds); err != nil {
			return err
		}
		record := posting.Record(in.RefID, e.now())
		if err := tx.Transactions().Append(ctx, record); err != nil {
			return err
		}
		receipt = &Receipt{TransactionID: record.ID, Status: record.Status}
		return nil
	})
	if err != nil {
		err = classify(err)
		e.logger.WarnContext(ctx, "transaction rejected",
			slog.String("method", in.Method.String()),
			slog.String("source", in.Source),
			slog.String("recipient", in.Recipient),
			slog.Int64("total_amount", in.TotalAmount),
			slog.String("kind", domain.KindOf(err).String()),
			slog.Any("error", err),
		)
		return nil, err
	}

	e.logger.InfoContext(ctx, "transaction posted",
		slog.String("id", receipt.TransactionID.String()),
		slog.String("method", in.Method.String()),
		slog.Bool("replayed", receipt.Replayed),
	)
	return receipt, nil
}

// apply 共用的餘額變動原語，必須在 Atomic 內呼叫
// shortfall 為付款方餘額不足時回傳的錯誤
func (e *LedgerEngine) apply(ctx context.Context, tx Repositories, p domain.Posting, shortfall error) error {
	debit, err := tx.Accounts().FindByMobile(ctx, p.Debit)
	if err != nil {
		return err
	}
	credit, err := tx.Accounts().FindByMobile(ctx, p.Credit)
	if err != nil {
		return err
	}
	if err := p.CheckRoles(debit, credit); err != nil {
		return err
	}
	if debit.Balance < p.DebitAmount {
		return shortfall
	}

	// 條件式增減：即使讀取後被其他交易扣款，也不會變成負數
	for _, leg := range p.Legs(e.house) {
		if err := tx.Accounts().IncrementBalance(ctx, leg.Mobile, leg.Delta); err != nil {
			if errors.Is(err, domain.ErrInsufficientFunds) {
				return shortfall
			}
			return err
		}
	}
	return nil
}
