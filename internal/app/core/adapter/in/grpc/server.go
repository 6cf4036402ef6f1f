package grpc

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/JoeShih716/digicash-ledger/internal/app/core/domain"
	"github.com/JoeShih716/digicash-ledger/internal/app/core/usecase"
	"github.com/JoeShih716/digicash-ledger/pkg/money"
)

type GrpcServer struct {
	core *usecase.CoreUseCase
}

func NewGrpcServer(core *usecase.CoreUseCase) *GrpcServer {
	return &GrpcServer{
		core: core,
	}
}

func (s *GrpcServer) Execute(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	method, err := domain.ParseMethod(stringField(req, "method"))
	if err != nil {
		return nil, toStatus(err)
	}
	amount, err := amountField(req, "amount")
	if err != nil {
		return nil, toStatus(err)
	}
	total, err := amountField(req, "totalAmount")
	if err != nil {
		return nil, toStatus(err)
	}

	receipt, err := s.core.Ledger.Execute(ctx, usecase.Intent{
		RefID:       stringField(req, "ref_id"),
		Method:      method,
		Source:      stringField(req, "mobile"),
		Recipient:   stringField(req, "recipient"),
		Amount:      amount,
		TotalAmount: total,
	})
	if err != nil {
		return nil, toStatus(err)
	}
	return receiptStruct(receipt, "Your transaction is successful.")
}

func (s *GrpcServer) CreateCashIn(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	amount, err := amountField(req, "amount")
	if err != nil {
		return nil, toStatus(err)
	}
	tran, err := s.core.CashIn.Create(ctx, stringField(req, "mobile"), stringField(req, "recipient"), amount)
	if err != nil {
		return nil, toStatus(err)
	}
	return structpb.NewStruct(map[string]any{
		"message":     "Cash-in request created successfully.",
		"transaction": transactionMap(tran),
	})
}

func (s *GrpcServer) ApproveCashIn(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := requestID(req)
	if err != nil {
		return nil, toStatus(err)
	}
	receipt, err := s.core.CashIn.Approve(ctx, id, stringField(req, "agentMobile"))
	if err != nil {
		return nil, toStatus(err)
	}
	return receiptStruct(receipt, "Cash-in request approved successfully.")
}

func (s *GrpcServer) DeclineCashIn(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := requestID(req)
	if err != nil {
		return nil, toStatus(err)
	}
	receipt, err := s.core.CashIn.Decline(ctx, id)
	if err != nil {
		return nil, toStatus(err)
	}
	return receiptStruct(receipt, "Cash-in request declined successfully.")
}

func (s *GrpcServer) PendingCashIn(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	trans, err := s.core.CashIn.Pending(ctx, stringField(req, "agentMobile"))
	if err != nil {
		return nil, toStatus(err)
	}
	return transactionsStruct(trans)
}

func (s *GrpcServer) Register(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	account := domain.NewAccount(stringField(req, "mobile"), stringField(req, "email"), stringField(req, "name"))
	account.ImageURL = stringField(req, "image_url")
	account.WantsAgent = req.GetFields()["isAgent"].GetBoolValue()
	if err := s.core.Directory.Register(ctx, account); err != nil {
		return nil, toStatus(err)
	}
	return structpb.NewStruct(map[string]any{
		"message": "User registered successfully.",
		"account": accountMap(account),
	})
}

// ApproveAccount force=true 時等同 make-agent，不檢查是否申請過代理商
func (s *GrpcServer) ApproveAccount(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	mobile := stringField(req, "mobile")
	role, err := domain.ParseRole(stringField(req, "role"))
	if err != nil {
		return nil, toStatus(err)
	}
	if req.GetFields()["force"].GetBoolValue() && role == domain.RoleAgent {
		err = s.core.Directory.MakeAgent(ctx, mobile)
	} else {
		err = s.core.Directory.Approve(ctx, mobile, role)
	}
	if err != nil {
		return nil, toStatus(err)
	}
	return structpb.NewStruct(map[string]any{
		"message": "User approved successfully.",
		"role":    role.String(),
	})
}

func (s *GrpcServer) GetAccount(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	account, err := s.core.Directory.Lookup(ctx, stringField(req, "identifier"))
	if err != nil {
		return nil, toStatus(err)
	}
	return structpb.NewStruct(accountMap(account))
}

func (s *GrpcServer) ListAgents(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	agents, err := s.core.Directory.Agents(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return accountsStruct("agents", agents)
}

// ListAccounts 管理員檢視所有帳戶
func (s *GrpcServer) ListAccounts(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	accounts, err := s.core.Directory.Accounts(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return accountsStruct("accounts", accounts)
}

// ListTransactions 管理員檢視所有交易紀錄
func (s *GrpcServer) ListTransactions(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	trans, err := s.core.Directory.Transactions(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return transactionsStruct(trans)
}

// History agent=true 時只回傳 cashin / cashout (代理商帳務)
func (s *GrpcServer) History(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var methods []domain.Method
	if req.GetFields()["agent"].GetBoolValue() {
		methods = []domain.Method{domain.MethodCashIn, domain.MethodCashOut}
	}
	trans, err := s.core.Directory.History(ctx, stringField(req, "mobile"), methods...)
	if err != nil {
		return nil, toStatus(err)
	}
	return transactionsStruct(trans)
}

func (s *GrpcServer) TotalBalance(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	total, err := s.core.Directory.TotalBalance(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return structpb.NewStruct(map[string]any{
		"totalBalance": money.FormatBDT(total),
		"amount":       total,
	})
}

// toStatus 將 domain 錯誤分類對應到 gRPC status code
func toStatus(err error) error {
	var code codes.Code
	switch domain.KindOf(err) {
	case domain.KindValidation:
		code = codes.InvalidArgument
	case domain.KindNotFound:
		code = codes.NotFound
	case domain.KindInsufficientFunds:
		code = codes.FailedPrecondition
	case domain.KindAlreadyProcessed:
		code = codes.AlreadyExists
	case domain.KindStorageConflict:
		// 唯一可整筆重試的錯誤
		code = codes.Aborted
	default:
		code = codes.Internal
	}
	return status.Error(code, err.Error())
}

func stringField(req *structpb.Struct, key string) string {
	return req.GetFields()[key].GetStringValue()
}

func amountField(req *structpb.Struct, key string) (int64, error) {
	v, ok := req.GetFields()[key]
	if !ok {
		return 0, fmt.Errorf("%w: %s is required", domain.ErrInvalidAmount, key)
	}
	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, fmt.Errorf("%w: %s must be a number", domain.ErrInvalidAmount, key)
	}
	amount, err := money.FromFloat(n.NumberValue)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", domain.ErrInvalidAmount, key, err)
	}
	return amount, nil
}

func requestID(req *structpb.Struct) (uuid.UUID, error) {
	id, err := uuid.Parse(stringField(req, "requestId"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid requestId", domain.ErrRequestNotFound)
	}
	return id, nil
}

func receiptStruct(r *usecase.Receipt, message string) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"message":       message,
		"transactionId": r.TransactionID.String(),
		"status":        r.Status.String(),
		"replayed":      r.Replayed,
	})
}

func accountMap(a *domain.Account) map[string]any {
	return map[string]any{
		"mobile":    a.Mobile,
		"email":     a.Email,
		"name":      a.Name,
		"image_url": a.ImageURL,
		"isAgent":   a.WantsAgent,
		"role":      a.Role.String(),
		"balance":   a.Balance,
	}
}

func accountsStruct(key string, accounts []*domain.Account) (*structpb.Struct, error) {
	list := make([]any, 0, len(accounts))
	for _, a := range accounts {
		list = append(list, accountMap(a))
	}
	return structpb.NewStruct(map[string]any{key: list})
}

func transactionsStruct(trans []*domain.Transaction) (*structpb.Struct, error) {
	list := make([]any, 0, len(trans))
	for _, t := range trans {
		list = append(list, transactionMap(t))
	}
	return structpb.NewStruct(map[string]any{"transactions": list})
}

func transactionMap(t *domain.Transaction) map[string]any {
	m := map[string]any{
		"id":          t.ID.String(),
		"mobile":      t.Mobile,
		"recipient":   t.Recipient,
		"amount":      t.Amount,
		"totalAmount": t.TotalAmount,
		"method":      t.Method.String(),
		"status":      t.Status.String(),
		"timestamp":   t.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if t.RefID != "" {
		m["ref_id"] = t.RefID
	}
	if t.Method == domain.MethodSendMoney {
		m["digicashProfit"] = t.Profit
	}
	return m
}

// IsRetryable 用戶端判斷是否可整筆重試
func IsRetryable(err error) bool {
	return status.Code(err) == codes.Aborted
}

var _ LedgerServiceServer = (*GrpcServer)(nil)
