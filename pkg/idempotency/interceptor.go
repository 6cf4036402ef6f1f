package idempotency

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// KeyFunc 從請求取出請求編號，回傳空字串代表不需上鎖
type KeyFunc func(req any) string

// UnaryServerInterceptor 同一個請求編號同時只允許一個請求處理
// 已完成的重複請求由帳本依 RefID 回放，這裡只擋「處理中」的重複
func UnaryServerInterceptor(locker Locker, keyOf KeyFunc, ttl time.Duration) grpc.UnaryServerInterceptor {
	if ttl <= 0 {
		ttl = DefaultLockTimeout
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		key := keyOf(req)
		if key == "" {
			return handler(ctx, req)
		}

		acquired, err := locker.Acquire(ctx, key, ttl)
		if err != nil {
			slog.ErrorContext(ctx, "idempotency lock failed", slog.String("key", key), slog.Any("error", err))
			return nil, status.Error(codes.Unavailable, "idempotency lock unavailable")
		}
		if !acquired {
			slog.WarnContext(ctx, "concurrent duplicate request", slog.String("key", key), slog.String("method", info.FullMethod))
			return nil, status.Error(codes.Aborted, "a request with this ref_id is currently being processed")
		}
		defer func() {
			// 原請求的 ctx 可能已取消，釋放鎖使用獨立 context
			releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			if err := locker.Release(releaseCtx, key); err != nil {
				slog.Error("idempotency unlock failed", slog.String("key", key), slog.Any("error", err))
			}
		}()
		return handler(ctx, req)
	}
}
