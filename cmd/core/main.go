package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	grpc_adapter "github.com/JoeShih716/digicash-ledger/internal/app/core/adapter/in/grpc"
	memory_adapter "github.com/JoeShih716/digicash-ledger/internal/app/core/adapter/out/memory"
	"github.com/JoeShih716/digicash-ledger/internal/app/core/adapter/out/sqlstore"
	"github.com/JoeShih716/digicash-ledger/internal/app/core/usecase"
	"github.com/JoeShih716/digicash-ledger/internal/config"
	"github.com/JoeShih716/digicash-ledger/pkg/database"
	"github.com/JoeShih716/digicash-ledger/pkg/idempotency"
	"github.com/JoeShih716/digicash-ledger/pkg/wal"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited with error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	// 1. 載入設定
	cfg, err := config.Load("config/config.yaml")
	if err != nil {
		return err
	}
	logger := cfg.Log.NewLogger(os.Stdout)
	slog.SetDefault(logger)

	// 2. 初始化儲存服務
	storeCtx, stopStore := context.WithCancel(context.Background())
	store, closeStore, err := openStore(storeCtx, cfg)
	if err != nil {
		stopStore()
		return err
	}
	defer func() {
		stopStore()
		closeStore()
	}()

	// 3. 初始化 UseCase，並確保平台收益帳戶存在
	coreUseCase := usecase.NewCoreUseCase(store, usecase.Settings{
		HouseAccount: cfg.Ledger.HouseAccount,
		MinCashIn:    cfg.Ledger.MinCashIn,
	}, logger)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	err = coreUseCase.Directory.EnsureHouse(ctx, cfg.Ledger.HouseAccount)
	cancel()
	if err != nil {
		return fmt.Errorf("failed to ensure house account: %w", err)
	}

	// 4. Interceptor：logging 在最外層，Redis ref_id 鎖為選用
	interceptors := []grpc.UnaryServerInterceptor{grpc_adapter.LoggingInterceptor(logger)}
	if cfg.Redis.Addr != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		rdb, err := idempotency.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		cancel()
		if err != nil {
			return err
		}
		defer rdb.Close()
		interceptors = append(interceptors, idempotency.UnaryServerInterceptor(
			idempotency.NewRedisLocker(rdb), grpc_adapter.RefIDKey, cfg.Redis.LockTTL))
		logger.Info("ref_id lock enabled", slog.String("redis", cfg.Redis.Addr))
	}

	// 5. 啟動 gRPC Server
	lis, err := net.Listen("tcp", cfg.GRPC.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	s := grpc.NewServer(grpc.ChainUnaryInterceptor(interceptors...))
	grpc_adapter.RegisterLedgerServiceServer(s, grpc_adapter.NewGrpcServer(coreUseCase))
	if cfg.GRPC.Reflection {
		reflection.Register(s)
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting gRPC server", slog.String("addr", cfg.GRPC.Addr))
		serveErr <- s.Serve(lis)
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serveErr:
		return fmt.Errorf("failed to serve: %w", err)
	case <-quit:
	}
	logger.Info("shutting down server")
	s.GracefulStop()
	logger.Info("server exited")
	return nil
}

// openStore 依設定建立儲存服務，回傳的 close 函式在結束時呼叫
// lmax 的核心迴圈在 ctx 結束時停止
func openStore(ctx context.Context, cfg config.Config) (usecase.Store, func(), error) {
	switch cfg.Store.Backend {
	case config.BackendSQL:
		client, err := database.NewClient(cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		store := sqlstore.NewStore(client)
		if err := store.Migrate(); err != nil {
			client.Close()
			return nil, nil, err
		}
		slog.Info("connected to database", slog.String("driver", cfg.Database.Driver))
		return store, func() { client.Close() }, nil

	case config.BackendMemory:
		walFile, err := wal.NewWAL(cfg.Store.WALPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to init WAL: %w", err)
		}
		store, err := memory_adapter.NewMutexStore(walFile)
		if err != nil {
			walFile.Close()
			return nil, nil, fmt.Errorf("failed to recover from WAL: %w", err)
		}
		slog.Info("memory store ready", slog.String("wal", cfg.Store.WALPath))
		return store, func() { walFile.Close() }, nil

	case config.BackendLMAX:
		walFile, err := wal.NewWAL(cfg.Store.WALPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to init WAL: %w", err)
		}
		store, err := memory_adapter.NewLMAXStore(walFile)
		if err != nil {
			walFile.Close()
			return nil, nil, fmt.Errorf("failed to recover from WAL: %w", err)
		}
		store.Start(ctx)
		slog.Info("lmax store ready", slog.String("wal", cfg.Store.WALPath))
		// 等核心迴圈處理完佇列後才關閉 WAL
		return store, func() {
			<-store.Done()
			walFile.Close()
		}, nil
	}
	return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
}
