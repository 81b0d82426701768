package job

import (
	"context"
	"log"
	"time"

	"mobipay/internal/config"
	"mobipay/internal/infrastructure/mq"
	"mobipay/internal/model"
	"mobipay/internal/store"
)

// OutboxSender 账本事件投递任务
//
// 事件随账户变更一起落在快照的发件箱里，这里异步批量投递到 Kafka：
// 状态先提交、事件后发送，下游看到的事件一定对应已生效的变更。
// 投递失败重试，超过最大重试次数标记失败等人工处置。
type OutboxSender struct {
	store     *store.Store
	cfg       *config.Config
	stopCh    chan struct{}
	interval  time.Duration
	batchSize int
}

func NewOutboxSender(st *store.Store, cfg *config.Config) *OutboxSender {
	return &OutboxSender{
		store:     st,
		cfg:       cfg,
		stopCh:    make(chan struct{}),
		interval:  200 * time.Millisecond,
		batchSize: 100,
	}
}

func (s *OutboxSender) Start(ctx context.Context) {
	log.Println("[OutboxSender] 账本事件投递任务启动")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[OutboxSender] 收到停止信号，任务退出")
			return
		case <-s.stopCh:
			log.Println("[OutboxSender] 任务停止")
			return
		case <-ticker.C:
			s.processPendingEvents()
		}
	}
}

func (s *OutboxSender) Stop() {
	close(s.stopCh)
}

func (s *OutboxSender) processPendingEvents() {
	events := s.store.PendingEvents(s.batchSize)
	for _, ev := range events {
		s.sendEvent(ev)
	}
}

func (s *OutboxSender) sendEvent(ev *model.OutboxEvent) {
	err := mq.SendLedgerEvent(s.cfg.Kafka.Topic.LedgerEvent, ev.EventID, ev.Payload)

	if err == nil {
		if markErr := s.store.MarkEventSent(ev.EventID); markErr != nil {
			log.Printf("[OutboxSender] 更新事件状态失败: id=%s, err=%v", ev.EventID, markErr)
		} else {
			log.Printf("[OutboxSender] 事件投递成功: id=%s, type=%s", ev.EventID, ev.Type)
		}
		return
	}

	log.Printf("[OutboxSender] 事件投递失败: id=%s, err=%v", ev.EventID, err)

	retries, incErr := s.store.IncrementEventRetry(ev.EventID)
	if incErr != nil {
		log.Printf("[OutboxSender] 增加重试次数失败: id=%s, err=%v", ev.EventID, incErr)
		return
	}
	if retries >= s.cfg.Business.MaxRetryCount {
		if failErr := s.store.MarkEventFailed(ev.EventID); failErr != nil {
			log.Printf("[OutboxSender] 标记事件失败状态失败: id=%s, err=%v", ev.EventID, failErr)
		} else {
			log.Printf("[OutboxSender] 事件超过最大重试次数，标记为失败: id=%s", ev.EventID)
		}
	}
}
