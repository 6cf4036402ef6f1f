package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	grpc_adapter "github.com/JoeShih716/digicash-ledger/internal/app/core/adapter/in/grpc"
	grpcpool "github.com/JoeShih716/digicash-ledger/pkg/grpc"
)

const maxAttempts = 3

func main() {
	target := flag.String("target", "localhost:50051", "ledger server address")
	total := flag.Int("n", 10000, "number of send-money requests")
	concurrency := flag.Int("c", 100, "concurrent workers")
	timeout := flag.Duration("timeout", 120*time.Second, "overall timeout")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	pool := grpcpool.NewPool()
	defer pool.Close()
	conn, err := pool.Get(*target)
	if err != nil {
		logger.Error("failed to connect", slog.Any("error", err))
		os.Exit(1)
	}
	client := grpc_adapter.NewClient(conn)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	// 每次執行使用新的帳戶，寄款方餘額只有 signup bonus，餘額不足是預期結果
	suffix := uuid.NewString()[:8]
	sender, receiver := "017"+suffix, "018"+suffix
	for _, mobile := range []string{sender, receiver} {
		if err := client.RegisterAccount(ctx, mobile, mobile+"@loadtest.local", "loadtest "+mobile, "user"); err != nil {
			logger.Error("failed to seed account", slog.String("mobile", mobile), slog.Any("error", err))
			os.Exit(1)
		}
	}

	var ok, rejected, failed, retries atomic.Int64
	var wg sync.WaitGroup
	sem := make(chan struct{}, *concurrency)
	startTime := time.Now()

	for i := 0; i < *total; i++ {
		sem <- struct{}{}
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			defer func() { <-sem }()

			req := grpc_adapter.TransferRequest{
				RefID:       uuid.NewString(),
				Method:      "send-money",
				Mobile:      sender,
				Recipient:   receiver,
				Amount:      1,
				TotalAmount: 1,
			}
			var err error
			for attempt := 1; attempt <= maxAttempts; attempt++ {
				// 同一個 ref_id 重送，伺服器端保證最多入帳一次
				_, err = client.Execute(ctx, req)
				if !grpc_adapter.IsRetryable(err) {
					break
				}
				retries.Add(1)
			}
			switch {
			case err == nil:
				ok.Add(1)
			case status.Code(err) == codes.FailedPrecondition:
				rejected.Add(1)
			default:
				failed.Add(1)
				if idx%1000 == 0 {
					logger.Warn("transfer failed", slog.Int("idx", idx), slog.Any("error", err))
				}
			}
		}(i)
	}
	wg.Wait()

	elapsed := time.Since(startTime)
	fmt.Printf("Completed %d requests in %v\n", *total, elapsed)
	fmt.Printf("ok=%d insufficient=%d failed=%d retries=%d\n", ok.Load(), rejected.Load(), failed.Load(), retries.Load())
	fmt.Printf("TPS: %.2f\n", float64(*total)/elapsed.Seconds())
}
