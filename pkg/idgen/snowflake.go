package idgen

import (
	"crypto/rand"
	"log"
	"math/big"
	"sync"
	"time"
)

// ============================================================================
// 雪花算法 ID 生成器
// ============================================================================
//
// 【为什么交易 ID 用雪花算法？】
//
// 流水 ID 要求：
//   1. 全局唯一 - 不能重复
//   2. 单调递增 - 流水的先后关系可以直接比较 ID
//   3. 高性能 - 支持并发生成
//
// 【雪花算法结构】64位
//
//   0 - 41位时间戳 - 10位机器ID - 12位序列号
//   |   |            |            |
//   |   |            |            +-- 同一毫秒内的序列号（0-4095）
//   |   |            +-- 机器ID（0-1023）
//   |   +-- 毫秒级时间戳（可用约69年）
//   +-- 符号位，始终为0
//
// ============================================================================

const (
	epoch          = int64(1704067200000) // 起始时间戳（2024-01-01 00:00:00 UTC）
	workerIDBits   = 10                   // 机器ID位数
	sequenceBits   = 12                   // 序列号位数
	maxWorkerID    = -1 ^ (-1 << workerIDBits)
	maxSequence    = -1 ^ (-1 << sequenceBits)
	workerIDShift  = sequenceBits
	timestampShift = sequenceBits + workerIDBits
)

// Snowflake 雪花算法ID生成器
type Snowflake struct {
	mu        sync.Mutex
	timestamp int64
	workerID  int64
	sequence  int64
}

var (
	defaultGenerator *Snowflake
	once             sync.Once
)

// Init 初始化默认ID生成器
func Init(workerID int64) {
	once.Do(func() {
		if workerID < 0 || workerID > maxWorkerID {
			log.Fatalf("workerID 必须在 0-%d 之间", maxWorkerID)
		}
		defaultGenerator = &Snowflake{
			workerID:  workerID,
			timestamp: 0,
			sequence:  0,
		}
	})
}

// NextID 生成下一个ID
func NextID() int64 {
	if defaultGenerator == nil {
		Init(1) // 默认使用 workerID = 1
	}
	return defaultGenerator.Generate()
}

// Generate 生成ID
func (s *Snowflake) Generate() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UnixMilli()

	if now == s.timestamp {
		// 同一毫秒内，序列号递增
		s.sequence = (s.sequence + 1) & maxSequence
		if s.sequence == 0 {
			// 序列号用完，等待下一毫秒
			for now <= s.timestamp {
				now = time.Now().UnixMilli()
			}
		}
	} else {
		// 不同毫秒，序列号重置
		s.sequence = 0
	}

	s.timestamp = now

	// 组装ID
	id := ((now - epoch) << timestampShift) |
		(s.workerID << workerIDShift) |
		s.sequence

	return id
}

// GenerateTransactionID 生成交易流水 ID（全局唯一、单调递增）
func GenerateTransactionID() int64 {
	return NextID()
}

// GenerateAccountNumber 生成 10 位数字账号
//
// 账号是对外暴露的标识，不能泄露注册量或时间信息，
// 因此用加密随机数而非雪花 ID；首位不为 0，保证恒为 10 位。
// 唯一性由调用方（Store 建号时查重、冲突重生成）保证。
func GenerateAccountNumber() string {
	const digits = "0123456789"
	buf := make([]byte, 10)
	for i := range buf {
		max := int64(10)
		if i == 0 {
			max = 9 // 首位取 1-9
		}
		n, err := rand.Int(rand.Reader, big.NewInt(max))
		if err != nil {
			log.Fatalf("生成随机账号失败: %v", err)
		}
		if i == 0 {
			buf[i] = digits[n.Int64()+1]
		} else {
			buf[i] = digits[n.Int64()]
		}
	}
	return string(buf)
}

// GenerateReferralCode 生成推荐码
// 格式：MP + 8 位大写字母数字，例如 MP7K2Q9FA3
func GenerateReferralCode() string {
	const alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	buf := make([]byte, 8)
	for i := range buf {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(alphabet))))
		if err != nil {
			log.Fatalf("生成推荐码失败: %v", err)
		}
		buf[i] = alphabet[n.Int64()]
	}
	return "MP" + string(buf)
}
