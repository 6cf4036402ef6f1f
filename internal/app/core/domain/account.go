package domain

import "fmt"

// Role 帳戶角色，決定可參與哪些交易
type Role uint8

const (
	RoleUnapproved Role = iota
	RoleUser
	RoleAgent
	RoleAdmin
)

func (r Role) String() string {
	switch r {
	case RoleUser:
		return "user"
	case RoleAgent:
		return "agent"
	case RoleAdmin:
		return "admin"
	default:
		return "unapproved"
	}
}

// ParseRole 將字串轉為 Role
func ParseRole(s string) (Role, error) {
	switch s {
	case "", "unapproved":
		return RoleUnapproved, nil
	case "user":
		return RoleUser, nil
	case "agent":
		return RoleAgent, nil
	case "admin":
		return RoleAdmin, nil
	}
	return RoleUnapproved, fmt.Errorf("%w: unknown role %q", ErrRoleNotAllowed, s)
}

// Account 使用者帳戶，以手機號碼識別
type Account struct {
	Mobile     string
	Email      string
	Name       string
	ImageURL   string
	WantsAgent bool
	Role       Role
	// Balance 以整數貨幣單位計，永不為負
	Balance int64
}

// NewAccount 註冊時建立的帳戶：餘額 0，尚未核准
func NewAccount(mobile, email, name string) *Account {
	return &Account{
		Mobile: mobile,
		Email:  email,
		Name:   name,
		Role:   RoleUnapproved,
	}
}

// Approved 未核准的帳戶不可參與任何交易
func (a *Account) Approved() bool {
	return a.Role != RoleUnapproved
}
