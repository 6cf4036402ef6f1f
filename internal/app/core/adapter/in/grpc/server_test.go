package grpc_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"net"
	"slices"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	grpc_adapter "github.com/JoeShih716/digicash-ledger/internal/app/core/adapter/in/grpc"
	"github.com/JoeShih716/digicash-ledger/internal/app/core/adapter/out/memory"
	"github.com/JoeShih716/digicash-ledger/internal/app/core/usecase"
	grpcpool "github.com/JoeShih716/digicash-ledger/pkg/grpc"
)

func newTestClient(t *testing.T) *grpc_adapter.Client {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store, err := memory.NewMutexStore(nil)
	if err != nil {
		t.Fatalf("NewMutexStore: %v", err)
	}
	core := usecase.NewCoreUseCase(store, usecase.Settings{HouseAccount: "HOUSE"}, logger)
	if err := core.Directory.EnsureHouse(context.Background(), "HOUSE"); err != nil {
		t.Fatalf("EnsureHouse: %v", err)
	}

	lis := bufconn.Listen(1024 * 1024)
	s := grpc.NewServer(grpc.ChainUnaryInterceptor(grpc_adapter.LoggingInterceptor(logger)))
	grpc_adapter.RegisterLedgerServiceServer(s, grpc_adapter.NewGrpcServer(core))
	go s.Serve(lis)
	t.Cleanup(s.Stop)

	pool := grpcpool.NewPool(grpcpool.WithDialOptions(grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	})))
	t.Cleanup(func() { pool.Close() })
	conn, err := pool.Get("passthrough:///bufnet")
	if err != nil {
		t.Fatalf("pool.Get: %v", err)
	}
	return grpc_adapter.NewClient(conn)
}

func wantCode(t *testing.T, err error, code codes.Code) {
	t.Helper()
	if status.Code(err) != code {
		t.Fatalf("want %s, got %v", code, err)
	}
}

func balance(t *testing.T, c *grpc_adapter.Client, mobile string) float64 {
	t.Helper()
	resp, err := c.Call(context.Background(), "GetAccount", map[string]any{"identifier": mobile})
	if err != nil {
		t.Fatalf("GetAccount(%s): %v", mobile, err)
	}
	return resp.GetFields()["balance"].GetNumberValue()
}

func TestLedgerServiceEndToEnd(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	for _, mobile := range []string{"U1", "U2"} {
		if err := c.RegisterAccount(ctx, mobile, mobile+"@test", mobile, "user"); err != nil {
			t.Fatalf("RegisterAccount(%s): %v", mobile, err)
		}
	}
	if err := c.RegisterAccount(ctx, "A1", "a1@test", "Agent", "agent"); err != nil {
		t.Fatalf("RegisterAccount(A1): %v", err)
	}
	err := c.RegisterAccount(ctx, "U1", "dup@test", "Dup", "")
	wantCode(t, err, codes.InvalidArgument)

	// send-money：U1 40 -> 30，U2 40 -> 48，平台收 2
	resp, err := c.Execute(ctx, grpc_adapter.TransferRequest{
		RefID: "r-1", Method: "send-money", Mobile: "U1", Recipient: "U2", Amount: 8, TotalAmount: 10,
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if resp.GetFields()["status"].GetStringValue() != "completed" {
		t.Fatalf("unexpected response: %v", resp)
	}
	if balance(t, c, "U1") != 30 || balance(t, c, "U2") != 48 || balance(t, c, "HOUSE") != 2 {
		t.Fatalf("unexpected balances after send-money")
	}

	replay, err := c.Execute(ctx, grpc_adapter.TransferRequest{
		RefID: "r-1", Method: "send-money", Mobile: "U1", Recipient: "U2", Amount: 8, TotalAmount: 10,
	})
	if err != nil || !replay.GetFields()["replayed"].GetBoolValue() {
		t.Fatalf("want replay, got %v %v", replay, err)
	}

	_, err = c.Execute(ctx, grpc_adapter.TransferRequest{Method: "send-money", Mobile: "U1", Recipient: "U2", Amount: 100, TotalAmount: 100})
	wantCode(t, err, codes.FailedPrecondition)
	_, err = c.Execute(ctx, grpc_adapter.TransferRequest{Method: "wire", Mobile: "U1", Recipient: "U2", Amount: 1, TotalAmount: 1})
	wantCode(t, err, codes.InvalidArgument)
	_, err = c.Execute(ctx, grpc_adapter.TransferRequest{Method: "cashout", Mobile: "U1", Recipient: "NOPE", Amount: 1, TotalAmount: 1})
	wantCode(t, err, codes.NotFound)
	_, err = c.Call(ctx, "Execute", map[string]any{"method": "send-money", "mobile": "U1", "recipient": "U2", "amount": 1.5, "totalAmount": 2})
	wantCode(t, err, codes.InvalidArgument)
	for _, bad := range []float64{math.NaN(), math.Inf(1), 4e19, -4e19} {
		_, err = c.Call(ctx, "Execute", map[string]any{"method": "send-money", "mobile": "U1", "recipient": "U2", "amount": bad, "totalAmount": 10})
		wantCode(t, err, codes.InvalidArgument)
		_, err = c.Call(ctx, "Execute", map[string]any{"method": "send-money", "mobile": "U1", "recipient": "U2", "amount": 8, "totalAmount": bad})
		wantCode(t, err, codes.InvalidArgument)
	}

	// cash-in 請求流程
	created, err := c.Call(ctx, "CreateCashIn", map[string]any{"mobile": "U1", "recipient": "A1", "amount": 100})
	if err != nil {
		t.Fatalf("CreateCashIn: %v", err)
	}
	id := created.GetFields()["transaction"].GetStructValue().GetFields()["id"].GetStringValue()
	_, err = c.Call(ctx, "CreateCashIn", map[string]any{"mobile": "U1", "recipient": "A1", "amount": 40})
	wantCode(t, err, codes.InvalidArgument)

	pending, err := c.Call(ctx, "PendingCashIn", map[string]any{"agentMobile": "A1"})
	if err != nil || len(pending.GetFields()["transactions"].GetListValue().GetValues()) != 1 {
		t.Fatalf("PendingCashIn: %v %v", pending, err)
	}

	_, err = c.Call(ctx, "ApproveCashIn", map[string]any{"requestId": "not-a-uuid", "agentMobile": "A1"})
	wantCode(t, err, codes.NotFound)
	_, err = c.Call(ctx, "ApproveCashIn", map[string]any{"requestId": id, "agentMobile": "U2"})
	wantCode(t, err, codes.InvalidArgument)

	if _, err := c.Call(ctx, "ApproveCashIn", map[string]any{"requestId": id, "agentMobile": "A1"}); err != nil {
		t.Fatalf("ApproveCashIn: %v", err)
	}
	_, err = c.Call(ctx, "ApproveCashIn", map[string]any{"requestId": id, "agentMobile": "A1"})
	wantCode(t, err, codes.AlreadyExists)
	_, err = c.Call(ctx, "DeclineCashIn", map[string]any{"requestId": id})
	wantCode(t, err, codes.AlreadyExists)

	if balance(t, c, "U1") != 130 || balance(t, c, "A1") != 9900 {
		t.Fatalf("unexpected balances after approval")
	}

	history, err := c.Call(ctx, "History", map[string]any{"mobile": "U1", "agent": true})
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	entries := history.GetFields()["transactions"].GetListValue().GetValues()
	if len(entries) != 1 || entries[0].GetStructValue().GetFields()["method"].GetStringValue() != "cashin" {
		t.Fatalf("agent history must contain only the cash-in: %v", entries)
	}

	agents, err := c.Call(ctx, "ListAgents", nil)
	if err != nil || len(agents.GetFields()["agents"].GetListValue().GetValues()) != 1 {
		t.Fatalf("ListAgents: %v %v", agents, err)
	}

	accounts, err := c.Call(ctx, "ListAccounts", nil)
	if err != nil {
		t.Fatalf("ListAccounts: %v", err)
	}
	var mobiles []string
	for _, v := range accounts.GetFields()["accounts"].GetListValue().GetValues() {
		mobiles = append(mobiles, v.GetStructValue().GetFields()["mobile"].GetStringValue())
	}
	if want := []string{"A1", "HOUSE", "U1", "U2"}; !slices.Equal(mobiles, want) {
		t.Fatalf("ListAccounts: want %v, got %v", want, mobiles)
	}
	all, err := c.Call(ctx, "ListTransactions", nil)
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	// 失敗的請求不留紀錄：send-money 與核准後的 cash-in
	if n := len(all.GetFields()["transactions"].GetListValue().GetValues()); n != 2 {
		t.Fatalf("ListTransactions: want 2, got %d", n)
	}

	total, err := c.Call(ctx, "TotalBalance", nil)
	if err != nil {
		t.Fatalf("TotalBalance: %v", err)
	}
	// 40 + 40 + 10000 (核准時給予) + 0
	if got := total.GetFields()["totalBalance"].GetStringValue(); got != "৳10,080.00" {
		t.Fatalf("unexpected total %q", got)
	}

	byEmail, err := c.Call(ctx, "GetAccount", map[string]any{"identifier": "a1@test"})
	if err != nil || byEmail.GetFields()["role"].GetStringValue() != "agent" {
		t.Fatalf("GetAccount by email: %v %v", byEmail, err)
	}
}

func TestApproveAccountForceAgent(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	if err := c.RegisterAccount(ctx, "U1", "u1@test", "U1", ""); err != nil {
		t.Fatalf("Register: %v", err)
	}

	_, err := c.Call(ctx, "ApproveAccount", map[string]any{"mobile": "U1", "role": "agent"})
	wantCode(t, err, codes.InvalidArgument)
	if _, err := c.Call(ctx, "ApproveAccount", map[string]any{"mobile": "U1", "role": "agent", "force": true}); err != nil {
		t.Fatalf("force agent: %v", err)
	}
	if got := balance(t, c, "U1"); got != 10000 {
		t.Fatalf("want agent float, got %v", got)
	}
	// 已核准帳戶不能再核准，餘額維持不變
	_, err = c.Call(ctx, "ApproveAccount", map[string]any{"mobile": "U1", "role": "user"})
	wantCode(t, err, codes.InvalidArgument)
	if got := balance(t, c, "U1"); got != 10000 {
		t.Fatalf("re-approval must keep balance, got %v", got)
	}
	_, err = c.Call(ctx, "ApproveAccount", map[string]any{"mobile": "U1", "role": "root"})
	wantCode(t, err, codes.InvalidArgument)
}

func TestIsRetryable(t *testing.T) {
	if !grpc_adapter.IsRetryable(status.Error(codes.Aborted, "conflict")) {
		t.Fatalf("Aborted must be retryable")
	}
	for _, err := range []error{nil, status.Error(codes.FailedPrecondition, "x"), errors.New("plain")} {
		if grpc_adapter.IsRetryable(err) {
			t.Fatalf("%v must not be retryable", err)
		}
	}
}

func TestRefIDKey(t *testing.T) {
	req, err := structpb.NewStruct(map[string]any{"ref_id": "abc", "method": "send-money"})
	if err != nil {
		t.Fatalf("NewStruct: %v", err)
	}
	if got := grpc_adapter.RefIDKey(req); got != "abc" {
		t.Fatalf("want abc, got %q", got)
	}
	if got := grpc_adapter.RefIDKey("not a struct"); got != "" {
		t.Fatalf("want empty key, got %q", got)
	}
	if got := grpc_adapter.FullMethod("Execute"); got != "/digicash.ledger.v1.LedgerService/Execute" {
		t.Fatalf("unexpected full method %q", got)
	}
}
