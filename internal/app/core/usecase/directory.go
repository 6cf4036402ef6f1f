package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/JoeShih716/digicash-ledger/internal/app/core/domain"
)

const (
	// SignupBonus 一般使用者核准後的起始餘額
	SignupBonus int64 = 40
	// AgentFloat 代理商核准後的起始餘額
	AgentFloat int64 = 10000
)

// Directory 帳戶目錄：註冊、角色核准、查詢與總額統計
type Directory struct {
	store  Store
	logger *slog.Logger
}

func NewDirectory(store Store, logger *slog.Logger) *Directory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Directory{store: store, logger: logger}
}

// Register 建立未核准帳戶，手機號碼與 Email 皆不可重複
func (d *Directory) Register(ctx context.Context, account *domain.Account) error {
	if account.Mobile == "" || account.Email == "" || account.Name == "" {
		return fmt.Errorf("%w: name, mobile and email are required", domain.ErrInvalidParty)
	}
	account.Role = domain.RoleUnapproved
	account.Balance = 0

	err := d.store.Atomic(ctx, func(tx Repositories) error {
		if err := absent(tx.Accounts().FindByMobile(ctx, account.Mobile)); err != nil {
			return fmt.Errorf("%w: mobile %s is already in use", err, account.Mobile)
		}
		if err := absent(tx.Accounts().FindByEmail(ctx, account.Email)); err != nil {
			return fmt.Errorf("%w: email %s is already in use", err, account.Email)
		}
		return tx.Accounts().Create(ctx, account)
	})
	if err != nil {
		return classify(err)
	}
	d.logger.InfoContext(ctx, "account registered", slog.String("mobile", account.Mobile))
	return nil
}

// Approve 核准未核准帳戶的角色
//
//	user:  起始餘額 SignupBonus
//	agent: 帳戶需申請過代理商 (WantsAgent)，起始餘額 AgentFloat
//	admin: 只變更角色
//
// 已核准的帳戶不能再次核准，回傳 ErrRoleNotAllowed
func (d *Directory) Approve(ctx context.Context, mobile string, role domain.Role) error {
	return d.promote(ctx, mobile, role, true)
}

// MakeAgent 管理員直接指定代理商，不檢查 WantsAgent
// 未核准帳戶給予 AgentFloat，已核准帳戶保留原有餘額
func (d *Directory) MakeAgent(ctx context.Context, mobile string) error {
	return d.promote(ctx, mobile, domain.RoleAgent, false)
}

// promote 變更角色，起始餘額只發給未核准帳戶，已核准帳戶的餘額不會被覆寫
func (d *Directory) promote(ctx context.Context, mobile string, role domain.Role, approval bool) error {
	var opening int64
	switch role {
	case domain.RoleUser:
		opening = SignupBonus
	case domain.RoleAgent:
		opening = AgentFloat
	case domain.RoleAdmin:
	default:
		return fmt.Errorf("%w: cannot approve as %s", domain.ErrRoleNotAllowed, role)
	}

	var previous domain.Role
	err := d.store.Atomic(ctx, func(tx Repositories) error {
		account, err := tx.Accounts().FindByMobile(ctx, mobile)
		if err != nil {
			return err
		}
		previous = account.Role
		if approval && account.Approved() {
			return fmt.Errorf("%w: %s is already approved as %s", domain.ErrRoleNotAllowed, mobile, account.Role)
		}
		if role == domain.RoleAgent && approval && !account.WantsAgent {
			return fmt.Errorf("%w: %s did not apply as an agent", domain.ErrRoleNotAllowed, mobile)
		}
		var balance *int64
		if !account.Approved() && role != domain.RoleAdmin {
			balance = &opening
		}
		return tx.Accounts().SetRole(ctx, mobile, role, balance)
	})
	if err != nil {
		return classify(err)
	}
	if previous != domain.RoleUnapproved {
		d.logger.WarnContext(ctx, "role changed on approved account, balance kept",
			slog.String("mobile", mobile),
			slog.String("from", previous.String()),
			slog.String("role", role.String()),
		)
		return nil
	}
	d.logger.InfoContext(ctx, "account approved", slog.String("mobile", mobile), slog.String("role", role.String()))
	return nil
}

// EnsureHouse 平台收益帳戶不存在時建立 (admin、餘額 0)，啟動時呼叫
func (d *Directory) EnsureHouse(ctx context.Context, mobile string) error {
	if mobile == "" {
		return fmt.Errorf("%w: house account is required", domain.ErrInvalidParty)
	}
	created := false
	err := d.store.Atomic(ctx, func(tx Repositories) error {
		if err := absent(tx.Accounts().FindByMobile(ctx, mobile)); err != nil {
			if errors.Is(err, domain.ErrAccountAlreadyExists) {
				return nil
			}
			return err
		}
		created = true
		return tx.Accounts().Create(ctx, &domain.Account{
			Mobile: mobile,
			Name:   "DigiCash",
			Role:   domain.RoleAdmin,
		})
	})
	if err != nil {
		return classify(err)
	}
	if created {
		d.logger.InfoContext(ctx, "house account created", slog.String("mobile", mobile))
	}
	return nil
}

// Lookup 以手機號碼或 Email 查詢帳戶
func (d *Directory) Lookup(ctx context.Context, identifier string) (*domain.Account, error) {
	account, err := d.store.Accounts().FindByMobile(ctx, identifier)
	if errors.Is(err, domain.ErrAccountNotFound) {
		account, err = d.store.Accounts().FindByEmail(ctx, identifier)
	}
	if err != nil {
		return nil, classify(err)
	}
	return account, nil
}

// Agents 列出所有代理商
func (d *Directory) Agents(ctx context.Context) ([]*domain.Account, error) {
	agents, err := d.store.Accounts().FindByRole(ctx, domain.RoleAgent)
	return agents, classify(err)
}

// Accounts 列出所有帳戶 (含平台收益帳戶)
func (d *Directory) Accounts(ctx context.Context) ([]*domain.Account, error) {
	accounts, err := d.store.Accounts().ListAccounts(ctx)
	return accounts, classify(err)
}

// Transactions 列出所有交易紀錄，依寫入順序
func (d *Directory) Transactions(ctx context.Context) ([]*domain.Transaction, error) {
	trans, err := d.store.Transactions().ListTransactions(ctx)
	return trans, classify(err)
}

// History 帳戶相關的交易紀錄，methods 為空時回傳全部
func (d *Directory) History(ctx context.Context, mobile string, methods ...domain.Method) ([]*domain.Transaction, error) {
	trans, err := d.store.Transactions().FindByParty(ctx, mobile, methods...)
	return trans, classify(err)
}

// TotalBalance 所有帳戶餘額總和
func (d *Directory) TotalBalance(ctx context.Context) (int64, error) {
	total, err := d.store.Accounts().TotalBalance(ctx)
	return total, classify(err)
}

// absent 查詢結果必須是 not found
func absent(_ *domain.Account, err error) error {
	switch {
	case err == nil:
		return domain.ErrAccountAlreadyExists
	case errors.Is(err, domain.ErrAccountNotFound):
		return nil
	default:
		return err
	}
}
