package usecase

import (
	"fmt"

	"github.com/JoeShih716/digicash-ledger/internal/app/core/domain"
)

// classify 非業務錯誤 (驅動錯誤、逾時、context 取消) 一律視為 StorageConflict
func classify(err error) error {
	if err == nil || domain.KindOf(err) != domain.KindUnknown {
		return err
	}
	return fmt.Errorf("%w: %v", domain.ErrStorageConflict, err)
}
