package store

import (
	"encoding/json"
	"os"
	"time"

	"mobipay/internal/model"
)

// JSON 快照持久化
//
// 快照文件是内存状态的持久化副本，不是系统的记录源（system of record）：
// 内存中的账户表才是，文件只负责跨重启的持久性。
//
// 【原子写入】先写 path+".tmp"，再 os.Rename() 覆盖正式文件。
// rename 在同一文件系统内是原子的，写入中途崩溃（断电/进程被杀）
// 最多丢掉这一次快照，已提交的旧文件不会损坏。

// Meta 快照元信息，便于日后格式升级
type Meta struct {
	Storage   string    `json:"storage"`
	Version   int       `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}

// Snapshot 全量状态快照：账户 + 未投递完的账本事件
type Snapshot struct {
	Meta     Meta                 `json:"_meta"`
	Accounts []*model.Account     `json:"accounts"`
	Outbox   []*model.OutboxEvent `json:"outbox,omitempty"`
}

// LoadSnapshot 读取并解析快照文件，通常只在启动时调用
func LoadSnapshot(path string) (Snapshot, error) {
	var snap Snapshot
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()
	err = json.NewDecoder(f).Decode(&snap)
	return snap, err
}

// SaveSnapshot 原子写入快照文件
func SaveSnapshot(path string, snap Snapshot) error {
	snap.Meta.Storage = "json_snapshot"
	snap.Meta.Version = 1
	snap.Meta.Timestamp = time.Now()

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	// 原子替换
	return os.Rename(tmp, path)
}
