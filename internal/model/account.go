package model

import (
	"time"
)

// Account 用户账户
// 是整个系统的核心数据：身份（用户名/账号）+ 余额 + 交易流水
//
// 不变量：
// 1. Balance >= 0 恒成立
// 2. Username 与 AccountNumber 创建后不可变更
// 3. Transactions 只追加，按时间倒序（最新的在最前）
type Account struct {
	Username      string         `json:"username"`
	PasswordHash  string         `json:"passwordHash"`
	AccountNumber string         `json:"accountNumber"` // 10 位数字，全局唯一
	Balance       int64          `json:"balance"`       // 可用余额（最小货币单位）
	ReferralCode  string         `json:"referralCode"`  // 推荐码，全局唯一
	Referrals     int            `json:"referrals"`     // 成功推荐人数
	VIP           bool           `json:"vip"`           // 运营手工设置，影响推荐奖励额度
	Transactions  []*Transaction `json:"transactions"`
	CreatedAt     time.Time      `json:"createdAt"`
}

// Clone 返回账户的深拷贝（含流水切片）。
// 跨账户操作在拷贝上修改、成功后整体换入，保证失败时不留下部分变更。
func (a *Account) Clone() *Account {
	cp := *a
	cp.Transactions = make([]*Transaction, len(a.Transactions))
	for i, t := range a.Transactions {
		tc := *t
		cp.Transactions[i] = &tc
	}
	return &cp
}

// UserView 对外展示的账户视图，绝不携带密码散列
type UserView struct {
	Username      string         `json:"username"`
	AccountNumber string         `json:"accountNumber"`
	Balance       int64          `json:"balance"`
	ReferralCode  string         `json:"referralCode"`
	Referrals     int            `json:"referrals"`
	Transactions  []*Transaction `json:"transactions"`
	CreatedAt     time.Time      `json:"createdAt"`
}

// View 生成脱敏视图
func (a *Account) View() *UserView {
	txns := a.Transactions
	if txns == nil {
		txns = []*Transaction{}
	}
	return &UserView{
		Username:      a.Username,
		AccountNumber: a.AccountNumber,
		Balance:       a.Balance,
		ReferralCode:  a.ReferralCode,
		Referrals:     a.Referrals,
		Transactions:  txns,
		CreatedAt:     a.CreatedAt,
	}
}
