package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Method 交易方式
type Method uint8

const (
	MethodUnknown Method = iota
	// MethodSendMoney 轉帳 (可帶手續費差額)
	MethodSendMoney
	// MethodCashOut 提領，收款方為代理商
	MethodCashOut
	// MethodCashIn 儲值，付款方為代理商
	MethodCashIn
)

func (m Method) String() string {
	switch m {
	case MethodSendMoney:
		return "send-money"
	case MethodCashOut:
		return "cashout"
	case MethodCashIn:
		return "cashin"
	default:
		return "unknown"
	}
}

// ParseMethod 將字串轉為 Method
func ParseMethod(s string) (Method, error) {
	switch s {
	case "send-money":
		return MethodSendMoney, nil
	case "cashout":
		return MethodCashOut, nil
	case "cashin":
		return MethodCashIn, nil
	}
	return MethodUnknown, fmt.Errorf("%w: %q", ErrUnsupportedMethod, s)
}

// Status 交易狀態
type Status uint8

const (
	// StatusCompleted 直接交易，寫入即完成
	StatusCompleted Status = iota
	StatusPending
	StatusApproved
	StatusDeclined
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusApproved:
		return "approved"
	case StatusDeclined:
		return "declined"
	default:
		return "completed"
	}
}

// ParseStatus 將字串轉為 Status，空字串視為 completed
func ParseStatus(s string) (Status, error) {
	switch s {
	case "", "completed":
		return StatusCompleted, nil
	case "pending":
		return StatusPending, nil
	case "approved":
		return StatusApproved, nil
	case "declined":
		return StatusDeclined, nil
	}
	return StatusCompleted, fmt.Errorf("unknown status %q", s)
}

// transitions 儲值請求狀態機，approved 與 declined 為終態
var transitions = map[Status][]Status{
	StatusPending: {StatusApproved, StatusDeclined},
}

// CanTransition 回傳 from -> to 是否為合法轉換
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal 終態不可再處理
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

// Transaction 交易紀錄，寫入後只允許一次狀態轉換
type Transaction struct {
	ID uuid.UUID
	// RefID: 呼叫端提供的請求編號，用於去重 (可為空)
	RefID     string
	Mobile    string
	Recipient string
	Amount    int64
	// TotalAmount: 實際自付款方扣除的金額，pending 請求為 0
	TotalAmount int64
	// Profit: send-money 的 totalAmount - amount
	Profit    int64
	Method    Method
	Status    Status
	CreatedAt time.Time
}

// NewCashInRequest 建立 pending 狀態的儲值請求
func NewCashInRequest(requester, agent string, amount int64, now time.Time) *Transaction {
	return &Transaction{
		ID:        uuid.New(),
		Mobile:    requester,
		Recipient: agent,
		Amount:    amount,
		Method:    MethodCashIn,
		Status:    StatusPending,
		CreatedAt: now,
	}
}

// IsCashInRequest 是否為代理商儲值請求 (而非直接儲值)
func (t *Transaction) IsCashInRequest() bool {
	return t.Method == MethodCashIn && t.Status != StatusCompleted
}

// Involves 帳戶是否為此交易的一方
func (t *Transaction) Involves(mobile string) bool {
	return t.Mobile == mobile || t.Recipient == mobile
}
