package memory

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/JoeShih716/digicash-ledger/internal/app/core/domain"
	"github.com/JoeShih716/digicash-ledger/internal/app/core/usecase"
	"github.com/JoeShih716/digicash-ledger/pkg/wal"
)

// unitRequest 提交單位請求，讓 Atomic 可以等待結果
type unitRequest struct {
	ctx    context.Context
	fn     func(tx usecase.Repositories) error
	Result chan error
}

// LMAXStore 單一寫入者的記憶體儲存
// 所有提交單位經由 channel 排隊，由同一個 goroutine 依序執行，狀態不需要 Lock
//
// Atomic(等待) -> Channel -> Run Loop -> unit -> WAL -> Result Channel -> Atomic(收到結果)
type LMAXStore struct {
	state *MutexStore
	// 輸送帶 負責接收提交單位
	requests chan *unitRequest
	// Pool 減少 GC 壓力
	requestPool sync.Pool
	done        chan struct{}
	startOnce   sync.Once
	started     atomic.Bool
}

// NewLMAXStore 建立 LMAXStore，WAL 重放在建構時完成
//
// 參數:
//
//	w: Write-Ahead Log 實例，nil 代表純記憶體
//
// 回傳:
//
//	*LMAXStore: 尚未啟動的實例，需呼叫 Start
//	error: WAL 恢復失敗
func NewLMAXStore(w *wal.WAL) (*LMAXStore, error) {
	state, err := NewMutexStore(w)
	if err != nil {
		return nil, err
	}
	return &LMAXStore{
		state:    state,
		requests: make(chan *unitRequest, 1000), // Buffer 1000
		requestPool: sync.Pool{
			New: func() any {
				return &unitRequest{Result: make(chan error, 1)}
			},
		},
		done: make(chan struct{}),
	}, nil
}

// Start 啟動核心迴圈 (非同步)，ctx 結束時處理完佇列中的請求後停止
func (l *LMAXStore) Start(ctx context.Context) {
	l.startOnce.Do(func() {
		l.started.Store(true)
		go l.run(ctx)
	})
}

// Done 核心迴圈結束後關閉
func (l *LMAXStore) Done() <-chan struct{} {
	return l.done
}

func (l *LMAXStore) run(ctx context.Context) {
	defer close(l.done)
	for {
		select {
		case <-ctx.Done():
			// 收到關閉信號，把剩下的請求處理完
			l.drain()
			return
		case req := <-l.requests:
			l.process(req)
		}
	}
}

func (l *LMAXStore) drain() {
	for {
		select {
		case req := <-l.requests:
			l.process(req)
		default:
			return
		}
	}
}

func (l *LMAXStore) process(req *unitRequest) {
	if err := req.ctx.Err(); err != nil {
		req.Result <- err
		return
	}
	req.Result <- l.state.run(req.ctx, req.fn)
}

// Atomic 將 fn 送入輸送帶並等待執行結果
// 尚未 Start 時直接回傳錯誤，不會卡在沒有消費者的佇列上
func (l *LMAXStore) Atomic(ctx context.Context, fn func(tx usecase.Repositories) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !l.started.Load() {
		return fmt.Errorf("%w: ledger not started", domain.ErrStorageConflict)
	}
	req := l.requestPool.Get().(*unitRequest)
	req.ctx, req.fn = ctx, fn

	select {
	case l.requests <- req:
	case <-l.done:
		return fmt.Errorf("%w: ledger stopped", domain.ErrStorageConflict)
	}

	select {
	case err := <-req.Result:
		req.ctx, req.fn = nil, nil
		l.requestPool.Put(req)
		return err
	case <-l.done:
		// 迴圈已結束，留在佇列的請求不會再被執行
		select {
		case err := <-req.Result:
			return err
		default:
			return fmt.Errorf("%w: ledger stopped", domain.ErrStorageConflict)
		}
	}
}

func (l *LMAXStore) Accounts() usecase.AccountRepository {
	return autocommit{l}
}

func (l *LMAXStore) Transactions() usecase.TransactionRepository {
	return autocommit{l}
}

var _ usecase.Store = (*LMAXStore)(nil)
