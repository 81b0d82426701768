package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"mobipay/internal/config"
	"mobipay/internal/infrastructure/idempotency"
	"mobipay/internal/model"
	"mobipay/internal/store"
	"mobipay/pkg/idgen"
)

var (
	ErrBadAmount         = errors.New("金额必须大于0")
	ErrInsufficientFunds = errors.New("余额不足")
	ErrSelfTransfer      = errors.New("不能给自己转账")
	ErrSenderNotFound    = errors.New("转出用户不存在")
	ErrRecipientNotFound = errors.New("收款账号不存在")
)

// LedgerService 账本引擎：所有余额变更（入账、出账、转账）的唯一入口。
// 余额非负、流水只追加等不变量由这里统一保证。
type LedgerService struct {
	store *store.Store
	cfg   *config.Config
	idem  idempotency.Cache
}

func NewLedgerService(st *store.Store, cfg *config.Config, idem idempotency.Cache) *LedgerService {
	return &LedgerService{store: st, cfg: cfg, idem: idem}
}

// applyCredit 在账户工作拷贝上入账：余额与流水一起改，最新的流水在最前
func applyCredit(a *model.Account, amount int64, description string) *model.Transaction {
	txn := &model.Transaction{
		ID:          idgen.GenerateTransactionID(),
		Type:        model.TransactionTypeCredit,
		Description: description,
		Amount:      amount,
		Timestamp:   time.Now(),
	}
	a.Balance += amount
	a.Transactions = append([]*model.Transaction{txn}, a.Transactions...)
	return txn
}

// applyDebit 在账户工作拷贝上出账；余额不足时不做任何修改
func applyDebit(a *model.Account, amount int64, description string) (*model.Transaction, error) {
	if amount > a.Balance {
		return nil, ErrInsufficientFunds
	}
	txn := &model.Transaction{
		ID:          idgen.GenerateTransactionID(),
		Type:        model.TransactionTypeDebit,
		Description: description,
		Amount:      amount,
		Timestamp:   time.Now(),
	}
	a.Balance -= amount
	a.Transactions = append([]*model.Transaction{txn}, a.Transactions...)
	return txn, nil
}

// Credit 给用户入账
func (s *LedgerService) Credit(ctx context.Context, username string, amount int64, description string) (int64, error) {
	return s.adjust(ctx, username, amount, description, false)
}

// Debit 给用户出账；余额不足返回 ErrInsufficientFunds
func (s *LedgerService) Debit(ctx context.Context, username string, amount int64, description string) (int64, error) {
	return s.adjust(ctx, username, amount, description, true)
}

func (s *LedgerService) adjust(ctx context.Context, username string, amount int64, description string, debit bool) (int64, error) {
	if amount <= 0 {
		return 0, ErrBadAmount
	}
	acct, err := s.store.GetByUsername(username)
	if err != nil {
		return 0, err
	}

	var newBalance int64
	err = s.store.WithAccounts(ctx, []string{acct.AccountNumber}, func(t *store.Txn) error {
		a := t.Account(acct.AccountNumber)
		if a == nil {
			return store.ErrNotFound
		}
		if debit {
			if _, err := applyDebit(a, amount, description); err != nil {
				return err
			}
		} else {
			applyCredit(a, amount, description)
		}
		newBalance = a.Balance
		return nil
	})
	if err != nil {
		return 0, err
	}
	return newBalance, nil
}

// ============================================================
// 转账
// ============================================================

type TransferRequest struct {
	RequestID       string // 可选幂等ID，客户端生成；为空则不做去重
	FromUsername    string
	ToAccountNumber string
	Amount          int64
}

type TransferResult struct {
	NewBalance int64 // 转出方的最新余额
}

// Transfer 转账
//
// 【关键点】转账是整个系统最核心的操作，需要保证：
// 1. 幂等性：相同的 requestId 只会执行一次
// 2. 原子性：双方余额变更与双方流水追加同时生效或同时不生效
// 3. 并发安全：双方账户锁按账号序获取，交叉转账不会死锁
//
// 校验顺序固定：转出方存在 → 收款方存在 → 非自转 → 金额为正 → 余额充足
func (s *LedgerService) Transfer(ctx context.Context, req *TransferRequest) (*TransferResult, error) {
	// 幂等占位
	if req.RequestID != "" {
		claimed, existing, err := s.idem.Claim(ctx, req.RequestID)
		if err != nil {
			return nil, fmt.Errorf("幂等检查失败: %w", err)
		}
		if existing != nil {
			return &TransferResult{NewBalance: existing.NewBalance}, nil
		}
		if !claimed {
			return nil, idempotency.ErrInFlight
		}
	}

	res, err := s.doTransfer(ctx, req)

	// 成功则记录结果供重放；失败释放占位，客户端可原样重试
	if req.RequestID != "" {
		if err == nil {
			if cerr := s.idem.Complete(ctx, req.RequestID, idempotency.Result{NewBalance: res.NewBalance}); cerr != nil {
				log.Printf("[Ledger] 记录幂等结果失败: requestId=%s, err=%v", req.RequestID, cerr)
			}
		} else {
			if rerr := s.idem.Release(ctx, req.RequestID); rerr != nil {
				log.Printf("[Ledger] 释放幂等占位失败: requestId=%s, err=%v", req.RequestID, rerr)
			}
		}
	}
	return res, err
}

func (s *LedgerService) doTransfer(ctx context.Context, req *TransferRequest) (*TransferResult, error) {
	sender, err := s.store.GetByUsername(req.FromUsername)
	if err != nil {
		return nil, ErrSenderNotFound
	}
	if _, err := s.store.GetByAccountNumber(req.ToAccountNumber); err != nil {
		return nil, ErrRecipientNotFound
	}
	if sender.AccountNumber == req.ToAccountNumber {
		return nil, ErrSelfTransfer
	}
	if req.Amount <= 0 {
		return nil, ErrBadAmount
	}

	var newBalance int64
	err = s.store.WithAccounts(ctx, []string{sender.AccountNumber, req.ToAccountNumber}, func(t *store.Txn) error {
		from := t.Account(sender.AccountNumber)
		to := t.Account(req.ToAccountNumber)
		// 账户不会被删除，锁内拿不到只可能是程序性错误
		if from == nil {
			return ErrSenderNotFound
		}
		if to == nil {
			return ErrRecipientNotFound
		}

		// 余额检查必须在锁内做：锁外的预读可能已经过期
		debitTxn, err := applyDebit(from, req.Amount, fmt.Sprintf("转账给 %s", to.Username))
		if err != nil {
			return err
		}
		applyCredit(to, req.Amount, fmt.Sprintf("来自 %s 的转账", from.Username))
		newBalance = from.Balance

		if s.cfg.Kafka.Enabled {
			t.AppendEvent(newEvent(model.LedgerEventTransfer, map[string]interface{}{
				"transactionId": debitTxn.ID,
				"from":          from.AccountNumber,
				"to":            to.AccountNumber,
				"amount":        req.Amount,
				"at":            debitTxn.Timestamp.Format(time.RFC3339),
			}))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &TransferResult{NewBalance: newBalance}, nil
}
