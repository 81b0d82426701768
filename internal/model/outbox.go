package model

import (
	"time"
)

const (
	OutboxStatusPending = "PENDING"
	OutboxStatusSent    = "SENT"
	OutboxStatusFailed  = "FAILED"
)

// 账本事件类型
const (
	LedgerEventSignup   = "SIGNUP"
	LedgerEventReferral = "REFERRAL_BONUS"
	LedgerEventTransfer = "TRANSFER"
)

// OutboxEvent 账本事件的发件箱记录
// 与账户变更在同一次提交中落盘，由后台任务异步投递到 Kafka，
// 保证「先提交、后发送」，事件不会先于状态出现
type OutboxEvent struct {
	EventID    string    `json:"eventId"` // uuid，兼作 Kafka 消息 key
	Type       string    `json:"type"`
	Payload    string    `json:"payload"` // JSON 编码的事件体
	Status     string    `json:"status"`
	RetryCount int       `json:"retryCount"`
	CreatedAt  time.Time `json:"createdAt"`
}
