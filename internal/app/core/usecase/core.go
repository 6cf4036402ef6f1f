package usecase

import "log/slog"

// Settings 核心業務參數
type Settings struct {
	// HouseAccount 平台收益帳戶的手機號碼
	HouseAccount string
	// MinCashIn 儲值請求最低金額，0 代表使用 MinCashInAmount
	MinCashIn int64
}

// CoreUseCase 是核心業務邏輯層，組合帳務引擎、儲值流程與帳戶目錄
type CoreUseCase struct {
	Ledger    *LedgerEngine
	CashIn    *CashInWorkflow
	Directory *Directory
}

// NewCoreUseCase 以同一個儲存服務建立所有用例
func NewCoreUseCase(store Store, settings Settings, logger *slog.Logger, opts ...EngineOption) *CoreUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	opts = append([]EngineOption{WithLogger(logger)}, opts...)
	engine := NewLedgerEngine(store, settings.HouseAccount, opts...)
	return &CoreUseCase{
		Ledger:    engine,
		CashIn:    NewCashInWorkflow(store, engine, settings.MinCashIn),
		Directory: NewDirectory(store, logger),
	}
}
