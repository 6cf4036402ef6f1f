package sqlstore

import (
	"time"

	"github.com/google/uuid"

	"github.com/JoeShih716/digicash-ledger/internal/app/core/domain"
)

// sqlUser 對應資料庫的 users 表
type sqlUser struct {
	Mobile     string  `gorm:"primaryKey;size:32"`
	Email      *string `gorm:"uniqueIndex;size:255"`
	Name       string  `gorm:"size:255"`
	ImageURL   string  `gorm:"size:1024"`
	WantsAgent bool
	Role       string `gorm:"size:16;index"`
	Balance    int64  `gorm:"not null;default:0"`
	UpdatedAt  int64  `gorm:"autoUpdateTime:milli"` // 自動更新時間
}

func (*sqlUser) TableName() string {
	return "users"
}

// sqlTransaction 對應資料庫的 transactions 表
type sqlTransaction struct {
	ID          string  `gorm:"primaryKey;size:36"`
	RefID       *string `gorm:"column:ref_id;size:64;uniqueIndex"` // 呼叫端請求編號
	Mobile      string  `gorm:"size:32;index"`
	Recipient   string  `gorm:"size:32;index"`
	Amount      int64
	TotalAmount int64
	Profit      int64
	Method      string `gorm:"size:16;index"`
	Status      string `gorm:"size:16;index"`
	CreatedAt   time.Time
}

func (*sqlTransaction) TableName() string {
	return "transactions"
}

func newSQLUser(a *domain.Account) *sqlUser {
	return &sqlUser{
		Mobile:     a.Mobile,
		Email:      nullable(a.Email),
		Name:       a.Name,
		ImageURL:   a.ImageURL,
		WantsAgent: a.WantsAgent,
		Role:       a.Role.String(),
		Balance:    a.Balance,
	}
}

func (u *sqlUser) toDomain() (*domain.Account, error) {
	role, err := domain.ParseRole(u.Role)
	if err != nil {
		return nil, err
	}
	a := &domain.Account{
		Mobile:     u.Mobile,
		Name:       u.Name,
		ImageURL:   u.ImageURL,
		WantsAgent: u.WantsAgent,
		Role:       role,
		Balance:    u.Balance,
	}
	if u.Email != nil {
		a.Email = *u.Email
	}
	return a, nil
}

func newSQLTransaction(t *domain.Transaction) *sqlTransaction {
	return &sqlTransaction{
		ID:          t.ID.String(),
		RefID:       nullable(t.RefID),
		Mobile:      t.Mobile,
		Recipient:   t.Recipient,
		Amount:      t.Amount,
		TotalAmount: t.TotalAmount,
		Profit:      t.Profit,
		Method:      t.Method.String(),
		Status:      t.Status.String(),
		CreatedAt:   t.CreatedAt,
	}
}

func (s *sqlTransaction) toDomain() (*domain.Transaction, error) {
	id, err := uuid.Parse(s.ID)
	if err != nil {
		return nil, err
	}
	method, err := domain.ParseMethod(s.Method)
	if err != nil {
		return nil, err
	}
	status, err := domain.ParseStatus(s.Status)
	if err != nil {
		return nil, err
	}
	t := &domain.Transaction{
		ID:          id,
		Mobile:      s.Mobile,
		Recipient:   s.Recipient,
		Amount:      s.Amount,
		TotalAmount: s.TotalAmount,
		Profit:      s.Profit,
		Method:      method,
		Status:      status,
		CreatedAt:   s.CreatedAt,
	}
	if s.RefID != nil {
		t.RefID = *s.RefID
	}
	return t, nil
}

// nullable 空字串存成 NULL，讓唯一索引允許多筆空值
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
