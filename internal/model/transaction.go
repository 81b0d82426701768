package model

import (
	"time"
)

// ============================================================================
// 交易类型常量
// ============================================================================

const (
	TransactionTypeCredit = "credit" // 入账
	TransactionTypeDebit  = "debit"  // 出账
)

// ============================================================================
// 交易流水实体
// ============================================================================

// Transaction 账户流水
// 记录账户的每一笔资金变动，是对账的核心依据
//
// 【重要】流水设计原则：
// 1. 只追加，不修改，不删除 —— 保证审计可追溯
// 2. ID 全局唯一且单调递增 —— 便于排序与对账
// 3. Amount 恒为正数，方向由 Type 表达
type Transaction struct {
	ID          int64     `json:"id"`
	Type        string    `json:"type"`
	Description string    `json:"description"`
	Amount      int64     `json:"amount"`
	Timestamp   time.Time `json:"timestamp"`
}
