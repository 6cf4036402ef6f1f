// Package money 金額轉換與顯示 (整數貨幣單位，BDT)
package money

import (
	"errors"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// Symbol 孟加拉塔卡符號
const Symbol = "৳"

var (
	// ErrFractional 金額必須是整數單位
	ErrFractional = errors.New("amount must be a whole number")
	// ErrNotFinite NaN 或 ±Inf
	ErrNotFinite = errors.New("amount must be a finite number")
	// ErrOutOfRange 超出 int64 範圍
	ErrOutOfRange = errors.New("amount is out of range")
)

var (
	maxAmount = decimal.NewFromInt(math.MaxInt64)
	minAmount = decimal.NewFromInt(math.MinInt64)
)

// FromFloat 將傳輸層的數字 (JSON / structpb number) 轉為整數金額
// 帶小數的金額直接拒絕，不做四捨五入
func FromFloat(v float64) (int64, error) {
	// decimal.NewFromFloat 遇到 NaN / Inf 會 panic
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, ErrNotFinite
	}
	d := decimal.NewFromFloat(v)
	if !d.IsInteger() {
		return 0, ErrFractional
	}
	if d.GreaterThan(maxAmount) || d.LessThan(minAmount) {
		return 0, ErrOutOfRange
	}
	return d.IntPart(), nil
}

// FormatBDT 以 en-BD 慣例顯示金額：৳12,34,567.00
// 末三位一組，其餘每兩位一組
func FormatBDT(amount int64) string {
	fixed := decimal.New(amount, 0).StringFixed(2)

	sign := ""
	if strings.HasPrefix(fixed, "-") {
		sign, fixed = "-", fixed[1:]
	}
	intPart, frac, _ := strings.Cut(fixed, ".")

	var groups []string
	if len(intPart) > 3 {
		head, tail := intPart[:len(intPart)-3], intPart[len(intPart)-3:]
		for len(head) > 2 {
			groups = append([]string{head[len(head)-2:]}, groups...)
			head = head[:len(head)-2]
		}
		groups = append([]string{head}, groups...)
		groups = append(groups, tail)
	} else {
		groups = []string{intPart}
	}
	return sign + Symbol + strings.Join(groups, ",") + "." + frac
}
