package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/JoeShih716/digicash-ledger/internal/app/core/domain"
)

// MinCashInAmount 儲值請求最低金額
const MinCashInAmount int64 = 50

// CashInWorkflow 代理商儲值請求：pending -> approved | declined
type CashInWorkflow struct {
	store     Store
	engine    *LedgerEngine
	minAmount int64
	now       func() time.Time
	logger    *slog.Logger
}

// NewCashInWorkflow 建立儲值流程
// store 必須與 engine 使用同一個儲存服務，核准時兩者共用同一個原子單位
func NewCashInWorkflow(store Store, engine *LedgerEngine, minAmount int64) *CashInWorkflow {
	if minAmount <= 0 {
		minAmount = MinCashInAmount
	}
	return &CashInWorkflow{
		store:     store,
		engine:    engine,
		minAmount: minAmount,
		now:       engine.now,
		logger:    engine.logger,
	}
}

// Create 建立 pending 儲值請求
func (w *CashInWorkflow) Create(ctx context.Context, requester, agent string, amount int64) (*domain.Transaction, error) {
	if amount < w.minAmount {
		return nil, fmt.Errorf("%w: cash-in amount must be at least %d", domain.ErrInvalidAmount, w.minAmount)
	}
	if requester == "" || agent == "" || requester == agent {
		return nil, domain.ErrInvalidParty
	}

	req := domain.NewCashInRequest(requester, agent, amount, w.now())
	err := w.store.Atomic(ctx, func(tx Repositories) error {
		r, err := tx.Accounts().FindByMobile(ctx, requester)
		if err != nil {
			return err
		}
		if !r.Approved() {
			return fmt.Errorf("%w: %s is not approved", domain.ErrRoleNotAllowed, requester)
		}
		a, err := tx.Accounts().FindByMobile(ctx, agent)
		if err != nil {
			return err
		}
		if a.Role != domain.RoleAgent {
			return fmt.Errorf("%w: %s is not an agent", domain.ErrRoleNotAllowed, agent)
		}
		return tx.Transactions().Append(ctx, req)
	})
	if err != nil {
		return nil, classify(err)
	}

	w.logger.InfoContext(ctx, "cash-in request created",
		slog.String("id", req.ID.String()),
		slog.String("requester", requester),
		slog.String("agent", agent),
		slog.Int64("amount", amount),
	)
	return req, nil
}

// Approve 核准請求：代理商扣款、請求者入帳、狀態改為 approved，三者一起提交
// 狀態以 compare-and-set 更新，同時兩次核准只有一次會成功
func (w *CashInWorkflow) Approve(ctx context.Context, requestID uuid.UUID, agentMobile string) (*Receipt, error) {
	err := w.store.Atomic(ctx, func(tx Repositories) error {
		req, err := w.pending(ctx, tx, requestID)
		if err != nil {
			return err
		}
		if req.Recipient != agentMobile {
			return domain.ErrAgentMismatch
		}
		posting, err := domain.NewPosting(domain.MethodCashIn, agentMobile, req.Mobile, req.Amount, req.Amount)
		if err != nil {
			return err
		}
		if err := w.engine.apply(ctx, tx, posting, domain.ErrInsufficientAgentBalance); err != nil {
			return err
		}
		return tx.Transactions().UpdateStatus(ctx, requestID, domain.StatusPending, domain.StatusApproved, req.Amount)
	})
	if err != nil {
		err = classify(err)
		w.logger.WarnContext(ctx, "cash-in approval rejected",
			slog.String("id", requestID.String()),
			slog.String("agent", agentMobile),
			slog.String("kind", domain.KindOf(err).String()),
			slog.Any("error", err),
		)
		return nil, err
	}

	w.logger.InfoContext(ctx, "cash-in request approved", slog.String("id", requestID.String()))
	return &Receipt{TransactionID: requestID, Status: domain.StatusApproved}, nil
}

// Decline 拒絕請求，不變更餘額
func (w *CashInWorkflow) Decline(ctx context.Context, requestID uuid.UUID) (*Receipt, error) {
	err := w.store.Atomic(ctx, func(tx Repositories) error {
		if _, err := w.pending(ctx, tx, requestID); err != nil {
			return err
		}
		return tx.Transactions().UpdateStatus(ctx, requestID, domain.StatusPending, domain.StatusDeclined, 0)
	})
	if err != nil {
		return nil, classify(err)
	}

	w.logger.InfoContext(ctx, "cash-in request declined", slog.String("id", requestID.String()))
	return &Receipt{TransactionID: requestID, Status: domain.StatusDeclined}, nil
}

// Pending 列出指定給代理商、尚未處理的請求
func (w *CashInWorkflow) Pending(ctx context.Context, agentMobile string) ([]*domain.Transaction, error) {
	trans, err := w.store.Transactions().FindByParty(ctx, agentMobile, domain.MethodCashIn)
	if err != nil {
		return nil, classify(err)
	}
	out := make([]*domain.Transaction, 0, len(trans))
	for _, t := range trans {
		if t.Recipient == agentMobile && t.Status == domain.StatusPending {
			out = append(out, t)
		}
	}
	return out, nil
}

// pending 讀取請求並確認仍為 pending
func (w *CashInWorkflow) pending(ctx context.Context, tx Repositories, requestID uuid.UUID) (*domain.Transaction, error) {
	req, err := tx.Transactions().FindByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !req.IsCashInRequest() {
		return nil, domain.ErrRequestNotFound
	}
	if req.Status.Terminal() {
		return nil, fmt.Errorf("%w: request is %s", domain.ErrAlreadyProcessed, req.Status)
	}
	return req, nil
}
