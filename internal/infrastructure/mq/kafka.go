package mq

import (
	"log"

	"mobipay/internal/config"

	"github.com/IBM/sarama"
)

// 账本事件生产者
//
// Kafka 是可选依赖：kafka.enabled=false 时系统单机运行，
// 账本事件不产生也不投递，核心转账语义不受影响。

var producer sarama.SyncProducer

// InitKafka 初始化 Kafka 同步生产者
func InitKafka(cfg *config.KafkaConfig) sarama.SyncProducer {
	kafkaConfig := sarama.NewConfig()
	kafkaConfig.Producer.RequiredAcks = sarama.WaitForAll // 等待所有副本确认
	kafkaConfig.Producer.Retry.Max = 3
	kafkaConfig.Producer.Return.Successes = true

	p, err := sarama.NewSyncProducer(cfg.Brokers, kafkaConfig)
	if err != nil {
		log.Fatalf("创建 Kafka 生产者失败: %v", err)
	}

	producer = p
	log.Println("Kafka 生产者创建成功")
	return p
}

// Enabled 生产者是否已初始化
func Enabled() bool {
	return producer != nil
}

// SendLedgerEvent 发送账本事件；key 用事件 ID，同一事件重发落在同一分区
func SendLedgerEvent(topic, eventID, payload string) error {
	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(eventID),
		Value: sarama.StringEncoder(payload),
	}

	_, _, err := producer.SendMessage(msg)
	return err
}

// CloseKafka 关闭生产者
func CloseKafka() {
	if producer != nil {
		producer.Close()
		producer = nil
	}
}
