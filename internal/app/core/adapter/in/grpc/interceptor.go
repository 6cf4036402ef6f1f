package grpc

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// LoggingInterceptor 記錄每個請求的方法、狀態碼與耗時
func LoggingInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		code := status.Code(err)
		level := slog.LevelInfo
		switch code {
		case codes.OK:
		case codes.Internal, codes.Unknown, codes.Unavailable:
			level = slog.LevelError
		default:
			level = slog.LevelWarn
		}
		logger.LogAttrs(ctx, level, "grpc request",
			slog.String("method", info.FullMethod),
			slog.String("code", code.String()),
			slog.Duration("elapsed", time.Since(start)),
		)
		return resp, err
	}
}

// RefIDKey 取出 Execute 請求的 ref_id，供 idempotency 鎖使用
func RefIDKey(req any) string {
	s, ok := req.(*structpb.Struct)
	if !ok {
		return ""
	}
	return stringField(s, "ref_id")
}
