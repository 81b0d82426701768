package service

import (
	"encoding/json"
	"time"

	"mobipay/internal/model"

	"github.com/google/uuid"
)

// newEvent 构造账本事件。payload 序列化失败只可能是程序性错误，
// 这里选择吞掉并发空载荷，不让事件问题影响主流程。
func newEvent(evType string, payload interface{}) *model.OutboxEvent {
	body, err := json.Marshal(payload)
	if err != nil {
		body = []byte("{}")
	}
	return &model.OutboxEvent{
		EventID:   uuid.NewString(),
		Type:      evType,
		Payload:   string(body),
		Status:    model.OutboxStatusPending,
		CreatedAt: time.Now(),
	}
}
