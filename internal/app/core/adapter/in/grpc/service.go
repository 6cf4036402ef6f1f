package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName gRPC 服務名稱，訊息以 google.protobuf.Struct 傳遞
const ServiceName = "digicash.ledger.v1.LedgerService"

// LedgerServiceServer 伺服器端介面
type LedgerServiceServer interface {
	Execute(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CreateCashIn(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ApproveCashIn(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DeclineCashIn(context.Context, *structpb.Struct) (*structpb.Struct, error)
	PendingCashIn(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Register(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ApproveAccount(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetAccount(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListAgents(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListAccounts(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListTransactions(context.Context, *structpb.Struct) (*structpb.Struct, error)
	History(context.Context, *structpb.Struct) (*structpb.Struct, error)
	TotalBalance(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// FullMethod 回傳完整方法名稱 (/service/method)
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// ServiceDesc 服務描述，供 grpc.Server.RegisterService 使用
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*LedgerServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Execute", LedgerServiceServer.Execute),
		unary("CreateCashIn", LedgerServiceServer.CreateCashIn),
		unary("ApproveCashIn", LedgerServiceServer.ApproveCashIn),
		unary("DeclineCashIn", LedgerServiceServer.DeclineCashIn),
		unary("PendingCashIn", LedgerServiceServer.PendingCashIn),
		unary("Register", LedgerServiceServer.Register),
		unary("ApproveAccount", LedgerServiceServer.ApproveAccount),
		unary("GetAccount", LedgerServiceServer.GetAccount),
		unary("ListAgents", LedgerServiceServer.ListAgents),
		unary("ListAccounts", LedgerServiceServer.ListAccounts),
		unary("ListTransactions", LedgerServiceServer.ListTransactions),
		unary("History", LedgerServiceServer.History),
		unary("TotalBalance", LedgerServiceServer.TotalBalance),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "digicash/ledger/v1/ledger.proto",
}

// RegisterLedgerServiceServer 註冊服務
func RegisterLedgerServiceServer(s grpc.ServiceRegistrar, srv LedgerServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

type unaryFunc func(LedgerServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

// unary 建立 MethodDesc：解碼 Struct、套用 interceptor 後呼叫實作
func unary(name string, call unaryFunc) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			server := srv.(LedgerServiceServer)
			if interceptor == nil {
				return call(server, ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: FullMethod(name),
			}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(server, ctx, req.(*structpb.Struct))
			})
		},
	}
}

// Client 用戶端
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Call 以 map 組成請求呼叫指定方法
func (c *Client) Call(ctx context.Context, method string, fields map[string]any, opts ...grpc.CallOption) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, FullMethod(method), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// TransferRequest send-money / cashout / cashin 請求
type TransferRequest struct {
	RefID       string
	Method      string
	Mobile      string
	Recipient   string
	Amount      int64
	TotalAmount int64
}

// Execute 執行直接交易
func (c *Client) Execute(ctx context.Context, req TransferRequest, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.Call(ctx, "Execute", map[string]any{
		"ref_id":      req.RefID,
		"method":      req.Method,
		"mobile":      req.Mobile,
		"recipient":   req.Recipient,
		"amount":      req.Amount,
		"totalAmount": req.TotalAmount,
	}, opts...)
}

// RegisterAccount 註冊帳戶並核准為指定角色 (role 為空則只註冊)
func (c *Client) RegisterAccount(ctx context.Context, mobile, email, name, role string, opts ...grpc.CallOption) error {
	_, err := c.Call(ctx, "Register", map[string]any{
		"mobile":  mobile,
		"email":   email,
		"name":    name,
		"isAgent": role == "agent",
	}, opts...)
	if err != nil || role == "" {
		return err
	}
	_, err = c.Call(ctx, "ApproveAccount", map[string]any{
		"mobile": mobile,
		"role":   role,
	}, opts...)
	return err
}
