package sqlstore

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/JoeShih716/digicash-ledger/internal/app/core/domain"
	"github.com/JoeShih716/digicash-ledger/internal/app/core/usecase"
	"github.com/JoeShih716/digicash-ledger/pkg/database"
)

// Store 以 GORM 實作的儲存服務 (MySQL / Postgres / SQLite)
type Store struct {
	client *database.Client
	// lockRows 支援 SELECT ... FOR UPDATE 的資料庫才鎖定請求列
	lockRows bool
}

func NewStore(client *database.Client) *Store {
	return &Store{
		client:   client,
		lockRows: client.DB().Dialector.Name() != database.DriverSQLite,
	}
}

// Migrate 建立 users 與 transactions 表
func (s *Store) Migrate() error {
	return s.client.Migrate(&sqlUser{}, &sqlTransaction{})
}

// Atomic 在單一資料庫交易中執行 fn
func (s *Store) Atomic(ctx context.Context, fn func(tx usecase.Repositories) error) error {
	err := s.client.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&repos{db: tx, lock: s.lockRows})
	})
	return translate(err)
}

func (s *Store) Accounts() usecase.AccountRepository {
	return &repos{db: s.client.DB()}
}

func (s *Store) Transactions() usecase.TransactionRepository {
	return &repos{db: s.client.DB()}
}

// repos 同時實作 AccountRepository 與 TransactionRepository
type repos struct {
	db   *gorm.DB
	lock bool
}

func (r *repos) Accounts() usecase.AccountRepository         { return r }
func (r *repos) Transactions() usecase.TransactionRepository { return r }

func (r *repos) FindByMobile(ctx context.Context, mobile string) (*domain.Account, error) {
	return r.findUser(ctx, "mobile = ?", mobile)
}

func (r *repos) FindByEmail(ctx context.Context, email string) (*domain.Account, error) {
	if email == "" {
		return nil, domain.ErrAccountNotFound
	}
	return r.findUser(ctx, "email = ?", email)
}

func (r *repos) findUser(ctx context.Context, query string, arg string) (*domain.Account, error) {
	var user sqlUser
	err := r.db.WithContext(ctx).Where(query, arg).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrAccountNotFound
	}
	if err != nil {
		return nil, translate(err)
	}
	return user.toDomain()
}

func (r *repos) FindByRole(ctx context.Context, role domain.Role) ([]*domain.Account, error) {
	return r.findUsers(r.db.WithContext(ctx).Where("role = ?", role.String()))
}

func (r *repos) ListAccounts(ctx context.Context) ([]*domain.Account, error) {
	return r.findUsers(r.db.WithContext(ctx))
}

func (r *repos) findUsers(q *gorm.DB) ([]*domain.Account, error) {
	var users []sqlUser
	if err := q.Order("mobile").Find(&users).Error; err != nil {
		return nil, translate(err)
	}
	out := make([]*domain.Account, 0, len(users))
	for i := range users {
		a, err := users[i].toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func (r *repos) Create(ctx context.Context, account *domain.Account) error {
	err := r.db.WithContext(ctx).Create(newSQLUser(account)).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return domain.ErrAccountAlreadyExists
	}
	return translate(err)
}

func (r *repos) SetRole(ctx context.Context, mobile string, role domain.Role, balance *int64) error {
	if _, err := r.FindByMobile(ctx, mobile); err != nil {
		return err
	}
	updates := map[string]any{"role": role.String()}
	if balance != nil {
		updates["balance"] = *balance
	}
	err := r.db.WithContext(ctx).Model(&sqlUser{}).Where("mobile = ?", mobile).Updates(updates).Error
	return translate(err)
}

// IncrementBalance 條件式更新：balance + delta >= 0 才更新
func (r *repos) IncrementBalance(ctx context.Context, mobile string, delta int64) error {
	if delta == 0 {
		_, err := r.FindByMobile(ctx, mobile)
		return err
	}
	res := r.db.WithContext(ctx).Model(&sqlUser{}).
		Where("mobile = ? AND balance + ? >= 0", mobile, delta).
		Update("balance", gorm.Expr("balance + ?", delta))
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		// 區分帳戶不存在與餘額不足
		if _, err := r.FindByMobile(ctx, mobile); err != nil {
			return err
		}
		return domain.ErrInsufficientFunds
	}
	return nil
}

func (r *repos) TotalBalance(ctx context.Context) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&sqlUser{}).Select("COALESCE(SUM(balance), 0)").Scan(&total).Error
	return total, translate(err)
}

func (r *repos) Append(ctx context.Context, tran *domain.Transaction) error {
	if tran.ID == uuid.Nil {
		tran.ID = uuid.New()
	}
	return translate(r.db.WithContext(ctx).Create(newSQLTransaction(tran)).Error)
}

// FindByID 在交易內以 FOR UPDATE 鎖定該列，直到提交
func (r *repos) FindByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	q := r.db.WithContext(ctx)
	if r.lock {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var row sqlTransaction
	err := q.Where("id = ?", id.String()).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrRequestNotFound
	}
	if err != nil {
		return nil, translate(err)
	}
	return row.toDomain()
}

func (r *repos) FindByRefID(ctx context.Context, refID string) (*domain.Transaction, error) {
	var rows []sqlTransaction
	if err := r.db.WithContext(ctx).Where("ref_id = ?", refID).Limit(1).Find(&rows).Error; err != nil {
		return nil, translate(err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0].toDomain()
}

func (r *repos) FindByParty(ctx context.Context, mobile string, methods ...domain.Method) ([]*domain.Transaction, error) {
	q := r.db.WithContext(ctx).Where("(mobile = ? OR recipient = ?)", mobile, mobile)
	if len(methods) > 0 {
		names := make([]string, 0, len(methods))
		for _, m := range methods {
			names = append(names, m.String())
		}
		q = q.Where("method IN ?", names)
	}
	return r.findTransactions(q)
}

func (r *repos) ListTransactions(ctx context.Context) ([]*domain.Transaction, error) {
	return r.findTransactions(r.db.WithContext(ctx))
}

func (r *repos) findTransactions(q *gorm.DB) ([]*domain.Transaction, error) {
	var rows []sqlTransaction
	if err := q.Order("created_at, id").Find(&rows).Error; err != nil {
		return nil, translate(err)
	}
	out := make([]*domain.Transaction, 0, len(rows))
	for i := range rows {
		t, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// UpdateStatus compare-and-set：WHERE status = expected，沒有列被更新即代表已處理
func (r *repos) UpdateStatus(ctx context.Context, id uuid.UUID, expected, next domain.Status, totalAmount int64) error {
	if !domain.CanTransition(expected, next) {
		return domain.ErrAlreadyProcessed
	}
	updates := map[string]any{"status": next.String()}
	if next == domain.StatusApproved {
		updates["total_amount"] = totalAmount
	}
	res := r.db.WithContext(ctx).Model(&sqlTransaction{}).
		Where("id = ? AND status = ?", id.String(), expected.String()).
		Updates(updates)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := r.db.WithContext(ctx).Model(&sqlTransaction{}).Where("id = ?", id.String()).Count(&count).Error; err != nil {
			return translate(err)
		}
		if count == 0 {
			return domain.ErrRequestNotFound
		}
		return domain.ErrAlreadyProcessed
	}
	return nil
}

var (
	_ usecase.Store        = (*Store)(nil)
	_ usecase.Repositories = (*repos)(nil)
)
