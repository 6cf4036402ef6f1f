package domain

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Posting 單筆交易對帳戶的影響
// 三種交易方式共用同一個扣款/入帳原語，差異只在金額與 Profit
type Posting struct {
	Method       Method
	Debit        string
	Credit       string
	Amount       int64
	DebitAmount  int64
	CreditAmount int64
	// Profit 轉入平台收益帳戶，使借貸總和為 0
	Profit int64
}

// Leg 單一帳戶的餘額變動
type Leg struct {
	Mobile string
	Delta  int64
}

// NewPosting 依交易方式建立 Posting
//
// 參數:
//
//	method: 交易方式
//	source, recipient: 付款方與收款方手機號碼 (cashin 時付款方為代理商)
//	amount: 收款方應收金額
//	totalAmount: 付款方實際扣除金額
func NewPosting(method Method, source, recipient string, amount, totalAmount int64) (Posting, error) {
	if source == "" || recipient == "" || source == recipient {
		return Posting{}, ErrInvalidParty
	}
	if amount < 0 || totalAmount < 0 {
		return Posting{}, fmt.Errorf("%w: amounts must not be negative", ErrInvalidAmount)
	}
	p := Posting{
		Method:      method,
		Debit:       source,
		Credit:      recipient,
		Amount:      amount,
		DebitAmount: totalAmount,
	}
	switch method {
	case MethodSendMoney:
		if totalAmount < amount {
			return Posting{}, fmt.Errorf("%w: totalAmount %d below amount %d", ErrInvalidAmount, totalAmount, amount)
		}
		p.CreditAmount = amount
		p.Profit = totalAmount - amount
	case MethodCashOut, MethodCashIn:
		p.CreditAmount = totalAmount
	default:
		return Posting{}, ErrUnsupportedMethod
	}
	return p, nil
}

// Legs 回傳所有餘額變動，依手機號碼排序以固定加鎖順序 (避免死鎖)
// profit 有值時 house 帳戶也會列入
func (p Posting) Legs(house string) []Leg {
	legs := make([]Leg, 0, 3)
	legs = append(legs, Leg{Mobile: p.Debit, Delta: -p.DebitAmount})
	legs = append(legs, Leg{Mobile: p.Credit, Delta: p.CreditAmount})
	if p.Profit > 0 {
		legs = append(legs, Leg{Mobile: house, Delta: p.Profit})
	}
	sort.Slice(legs, func(i, j int) bool { return legs[i].Mobile < legs[j].Mobile })
	return legs
}

// Record 產生對應的交易紀錄
func (p Posting) Record(refID string, now time.Time) *Transaction {
	return &Transaction{
		ID:          uuid.New(),
		RefID:       refID,
		Mobile:      p.Debit,
		Recipient:   p.Credit,
		Amount:      p.Amount,
		TotalAmount: p.DebitAmount,
		Profit:      p.Profit,
		Method:      p.Method,
		Status:      StatusCompleted,
		CreatedAt:   now,
	}
}

// CheckRoles 角色限制：未核准帳戶不可交易，cashout 收款方與 cashin 付款方必須為代理商
func (p Posting) CheckRoles(debit, credit *Account) error {
	if !debit.Approved() || !credit.Approved() {
		return fmt.Errorf("%w: account not approved", ErrRoleNotAllowed)
	}
	switch p.Method {
	case MethodCashOut:
		if credit.Role != RoleAgent {
			return fmt.Errorf("%w: cashout recipient must be an agent", ErrRoleNotAllowed)
		}
	case MethodCashIn:
		if debit.Role != RoleAgent {
			return fmt.Errorf("%w: cashin source must be an agent", ErrRoleNotAllowed)
		}
	}
	return nil
}
