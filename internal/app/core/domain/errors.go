package domain

import "errors"

// Kind 錯誤分類，決定呼叫端如何處理 (是否可重試、對應哪種回應)
type Kind uint8

const (
	KindUnknown Kind = iota
	// KindValidation 輸入不合法，尚未碰觸儲存層
	KindValidation
	// KindNotFound 帳戶或請求不存在
	KindNotFound
	// KindInsufficientFunds 餘額不足 (業務規則，不自動重試)
	KindInsufficientFunds
	// KindAlreadyProcessed 請求已不在 pending 狀態
	KindAlreadyProcessed
	// KindStorageConflict 原子提交失敗，唯一可整筆重試的錯誤
	KindStorageConflict
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindInsufficientFunds:
		return "insufficient_funds"
	case KindAlreadyProcessed:
		return "already_processed"
	case KindStorageConflict:
		return "storage_conflict"
	default:
		return "unknown"
	}
}

// Error 帶有分類的業務錯誤
// 以指標比較 (errors.Is)，各 sentinel 彼此不同
type Error struct {
	kind Kind
	msg  string
}

func newError(kind Kind, msg string) *Error {
	return &Error{kind: kind, msg: msg}
}

func (e *Error) Error() string { return e.msg }

// Kind 回傳錯誤分類
func (e *Error) Kind() Kind { return e.kind }

var (
	// ErrInvalidAmount 金額不合法 (負數、低於門檻或 totalAmount < amount)
	ErrInvalidAmount = newError(KindValidation, "invalid amount")

	// ErrUnsupportedMethod 不支援的交易方式
	ErrUnsupportedMethod = newError(KindValidation, "unsupported method")

	// ErrInvalidParty 缺少付款方或收款方，或兩者相同
	ErrInvalidParty = newError(KindValidation, "invalid party")

	// ErrRoleNotAllowed 帳戶角色不可參與此交易
	ErrRoleNotAllowed = newError(KindValidation, "role not allowed")

	// ErrAgentMismatch 請求並非指定給此代理商
	ErrAgentMismatch = newError(KindValidation, "request is addressed to another agent")

	// ErrAccountNotFound 找不到帳戶
	ErrAccountNotFound = newError(KindNotFound, "account not found")

	// ErrRequestNotFound 找不到儲值請求
	ErrRequestNotFound = newError(KindNotFound, "cash-in request not found")

	// ErrInsufficientFunds 付款方餘額不足
	ErrInsufficientFunds = newError(KindInsufficientFunds, "insufficient funds")

	// ErrInsufficientAgentBalance 代理商餘額不足以核准請求
	ErrInsufficientAgentBalance = newError(KindInsufficientFunds, "agent does not have enough balance")

	// ErrAlreadyProcessed 請求已核准或已拒絕
	ErrAlreadyProcessed = newError(KindAlreadyProcessed, "request already processed")

	// ErrAccountAlreadyExists 手機號碼或 Email 已被使用
	ErrAccountAlreadyExists = newError(KindValidation, "account already exists")

	// ErrStorageConflict 儲存層提交失敗 (競爭、逾時)，可整筆重試
	ErrStorageConflict = newError(KindStorageConflict, "storage conflict")
)

// KindOf 取得 err 鏈中第一個 domain 錯誤的分類
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.kind
	}
	return KindUnknown
}

// IsRetryable 只有 StorageConflict 可以整筆重試
func IsRetryable(err error) bool {
	return KindOf(err) == KindStorageConflict
}
