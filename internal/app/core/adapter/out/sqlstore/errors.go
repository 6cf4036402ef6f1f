package sqlstore

import (
	"context"
	"errors"
	"fmt"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"gorm.io/gorm"

	"github.com/JoeShih716/digicash-ledger/internal/app/core/domain"
)

// translate 將驅動錯誤轉為 domain 錯誤
// domain 錯誤原樣回傳，其餘皆視為可重試的 StorageConflict
func translate(err error) error {
	if err == nil || domain.KindOf(err) != domain.KindUnknown {
		return err
	}
	return fmt.Errorf("%w: %s: %v", domain.ErrStorageConflict, conflictReason(err), err)
}

func conflictReason(err error) string {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return "timeout"
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return "duplicate key"
	}

	var myErr *mysqldriver.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case 1213:
			return "deadlock"
		case 1205:
			return "lock wait timeout"
		}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001":
			return "serialization failure"
		case "40P01":
			return "deadlock"
		case "55P03":
			return "lock not available"
		}
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code {
		case sqlite3.ErrBusy:
			return "database busy"
		case sqlite3.ErrLocked:
			return "table locked"
		}
	}
	return "commit failed"
}
