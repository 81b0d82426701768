package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"mobipay/internal/model"
)

// ============================================================================
// 账户存储
// ============================================================================
//
// 【为什么需要账户锁？】
//
// 场景：两笔转账同时触达同一个账户
//
// 如果没有锁：
//   goroutine1: 读余额=100 -> 扣款100 -> 写回余额=0    OK
//   goroutine2: 读余额=100 -> 扣款100 -> 写回余额=0    丢失更新，超扣了！
//
// 加锁之后：
//   goroutine1: 获取锁 -> 读余额=100 -> 扣款100 -> 提交 -> 释放锁
//   goroutine2: 等锁... -> 获取锁 -> 读余额=0 -> 余额不足，拒绝
//
// 【锁的粒度】按账户加锁，而不是全局一把锁：
// 互不相干的两笔转账（四个不同账户）可以并发执行，
// 只有触及同一账户的操作才会互相排队。
//
// 【死锁预防】转账要同时锁两个账户。若 A→B 与 B→A 同时发生、
// 各自先锁到一边，就会互相等待。因此所有多账户操作都按
// 账号字典序统一排序后依次加锁，环路等待不可能出现。
//
// 【锁超时】加锁用容量为 1 的 channel 实现，可以带超时尝试：
// 等不到锁就返回 ErrLockTimeout 让请求方重试，不会挂死请求。
//
// ============================================================================

// Store 账户存储：内存为记录源，JSON 快照负责持久化
type Store struct {
	path        string
	lockTimeout time.Duration

	// mu 保护账户表、索引与 outbox 的结构一致性
	mu         sync.RWMutex
	accounts   map[string]*model.Account // accountNumber -> account
	byUsername map[string]string         // username -> accountNumber
	byReferral map[string]string         // referralCode -> accountNumber
	outbox     []*model.OutboxEvent

	// lockMu 只保护 locks 表本身；账户互斥由各 channel 承担
	lockMu sync.Mutex
	locks  map[string]chan struct{}

	// commitMu 序列化快照落盘，保证文件内容总是某次完整提交
	commitMu sync.Mutex
}

// NewStore 创建存储并从快照恢复状态；快照不存在时从空库启动
func NewStore(path string, lockTimeout time.Duration) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("创建快照目录失败: %w", err)
		}
	}

	s := &Store{
		path:        path,
		lockTimeout: lockTimeout,
		accounts:    make(map[string]*model.Account),
		byUsername:  make(map[string]string),
		byReferral:  make(map[string]string),
		locks:       make(map[string]chan struct{}),
	}

	snap, err := LoadSnapshot(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("读取快照失败: %w", err)
	}

	for _, a := range snap.Accounts {
		s.accounts[a.AccountNumber] = a
		s.byUsername[a.Username] = a.AccountNumber
		s.byReferral[a.ReferralCode] = a.AccountNumber
	}
	s.outbox = snap.Outbox
	return s, nil
}

// ---------------------------------------------------------------------------
// 只读查询：一律返回深拷贝，调用方改不到内部状态
// ---------------------------------------------------------------------------

// GetByUsername 按用户名查账户
func (s *Store) GetByUsername(username string) (*model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	no, ok := s.byUsername[username]
	if !ok {
		return nil, ErrNotFound
	}
	return s.accounts[no].Clone(), nil
}

// GetByAccountNumber 按账号查账户
func (s *Store) GetByAccountNumber(accountNumber string) (*model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[accountNumber]
	if !ok {
		return nil, ErrNotFound
	}
	return a.Clone(), nil
}

// GetByReferralCode 按推荐码查账户
func (s *Store) GetByReferralCode(code string) (*model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	no, ok := s.byReferral[code]
	if !ok {
		return nil, ErrNotFound
	}
	return s.accounts[no].Clone(), nil
}

// ---------------------------------------------------------------------------
// 事务提交
// ---------------------------------------------------------------------------

// Txn 一次原子提交的工作区。
// fn 在账户深拷贝上做任意修改，全部成功后整体换入；
// fn 返回错误或落盘失败时，内存与文件都保持原状。
type Txn struct {
	st      *Store
	accs    map[string]*model.Account
	created []*model.Account
	events  []*model.OutboxEvent
}

// Account 取锁定范围内的账户工作拷贝；不存在返回 nil
func (t *Txn) Account(accountNumber string) *model.Account {
	return t.accs[accountNumber]
}

// Create 在本次提交中新建账户。
// 这里做快速冲突预检；最终裁决在 commit 持写锁时再做一次，
// 避免两个并发注册在预检间隙同时通过。
func (t *Txn) Create(acct *model.Account) error {
	t.st.mu.RLock()
	defer t.st.mu.RUnlock()
	if _, ok := t.st.byUsername[acct.Username]; ok {
		return ErrUsernameTaken
	}
	if _, ok := t.st.accounts[acct.AccountNumber]; ok {
		return ErrAccountNumberConflict
	}
	if _, ok := t.st.byReferral[acct.ReferralCode]; ok {
		return ErrReferralCodeConflict
	}
	t.created = append(t.created, acct)
	return nil
}

// AppendEvent 追加账本事件，与账户变更同一次提交落盘
func (t *Txn) AppendEvent(ev *model.OutboxEvent) {
	t.events = append(t.events, ev)
}

// WithAccounts 对指定账号集合执行原子读-改-写。
//
// 流程：按字典序加锁 -> 在深拷贝上执行 fn -> 提交（先落盘后换入内存）。
// 任一环节失败都不会留下部分变更。
func (s *Store) WithAccounts(ctx context.Context, accountNumbers []string, fn func(t *Txn) error) error {
	keys := sortedUnique(accountNumbers)

	acquired, err := s.acquireLocks(ctx, keys)
	if err != nil {
		return err
	}
	defer s.releaseLocks(acquired)

	txn := &Txn{st: s, accs: make(map[string]*model.Account, len(keys))}
	s.mu.RLock()
	for _, k := range keys {
		if a, ok := s.accounts[k]; ok {
			txn.accs[k] = a.Clone()
		}
	}
	s.mu.RUnlock()

	if err := fn(txn); err != nil {
		return err
	}
	return s.commit(txn)
}

// commit 裁决冲突、落盘、换入内存。
// 顺序刻意是「先写文件、后改内存」：写盘失败时内存仍是旧状态，
// 对外表现为这次操作完全没有发生。
func (s *Store) commit(t *Txn) error {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()

	// 新建账户的最终唯一性裁决
	for _, a := range t.created {
		if _, ok := s.byUsername[a.Username]; ok {
			return ErrUsernameTaken
		}
		if _, ok := s.accounts[a.AccountNumber]; ok {
			return ErrAccountNumberConflict
		}
		if _, ok := s.byReferral[a.ReferralCode]; ok {
			return ErrReferralCodeConflict
		}
	}

	// 组装提交后的全量视图（不动当前内存）
	snap := Snapshot{Outbox: append(append([]*model.OutboxEvent{}, s.outbox...), t.events...)}
	for no, a := range s.accounts {
		if replaced, ok := t.accs[no]; ok {
			snap.Accounts = append(snap.Accounts, replaced)
		} else {
			snap.Accounts = append(snap.Accounts, a)
		}
	}
	snap.Accounts = append(snap.Accounts, t.created...)
	sort.Slice(snap.Accounts, func(i, j int) bool {
		return snap.Accounts[i].AccountNumber < snap.Accounts[j].AccountNumber
	})

	if err := SaveSnapshot(s.path, snap); err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}

	// 落盘成功，换入内存
	for no, a := range t.accs {
		s.accounts[no] = a
	}
	for _, a := range t.created {
		s.accounts[a.AccountNumber] = a
		s.byUsername[a.Username] = a.AccountNumber
		s.byReferral[a.ReferralCode] = a.AccountNumber
	}
	s.outbox = append(s.outbox, t.events...)
	return nil
}

// Flush 将当前内存状态写入快照（用于优雅退出前的兜底）
func (s *Store) Flush() error {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.persistLocked()
}

// persistLocked 按当前内存状态落盘；调用方需至少持有 mu 读锁与 commitMu
func (s *Store) persistLocked() error {
	snap := Snapshot{Outbox: append([]*model.OutboxEvent{}, s.outbox...)}
	for _, a := range s.accounts {
		snap.Accounts = append(snap.Accounts, a)
	}
	sort.Slice(snap.Accounts, func(i, j int) bool {
		return snap.Accounts[i].AccountNumber < snap.Accounts[j].AccountNumber
	})
	if err := SaveSnapshot(s.path, snap); err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// 账户锁
// ---------------------------------------------------------------------------

// lockFor 取（或创建）账号对应的通道锁
func (s *Store) lockFor(accountNumber string) chan struct{} {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	ch, ok := s.locks[accountNumber]
	if !ok {
		ch = make(chan struct{}, 1)
		s.locks[accountNumber] = ch
	}
	return ch
}

// acquireLocks 按序获取全部账户锁，整体共用一个超时。
// 任何一把拿不到就释放已获取的并返回 ErrLockTimeout。
func (s *Store) acquireLocks(ctx context.Context, keys []string) ([]chan struct{}, error) {
	deadline := time.NewTimer(s.lockTimeout)
	defer deadline.Stop()

	acquired := make([]chan struct{}, 0, len(keys))
	for _, k := range keys {
		ch := s.lockFor(k)
		select {
		case ch <- struct{}{}:
			acquired = append(acquired, ch)
		case <-deadline.C:
			s.releaseLocks(acquired)
			return nil, ErrLockTimeout
		case <-ctx.Done():
			s.releaseLocks(acquired)
			return nil, ctx.Err()
		}
	}
	return acquired, nil
}

func (s *Store) releaseLocks(acquired []chan struct{}) {
	// 逆序释放（顺序其实无关紧要，但与获取对称便于读）
	for i := len(acquired) - 1; i >= 0; i-- {
		<-acquired[i]
	}
}

func sortedUnique(keys []string) []string {
	out := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; !ok {
			seen[k] = struct{}{}
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// ---------------------------------------------------------------------------
// 账本事件发件箱
// ---------------------------------------------------------------------------

// PendingEvents 取待投递事件（拷贝），供后台发送任务轮询
func (s *Store) PendingEvents(limit int) []*model.OutboxEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.OutboxEvent, 0, limit)
	for _, ev := range s.outbox {
		if ev.Status != model.OutboxStatusPending {
			continue
		}
		cp := *ev
		out = append(out, &cp)
		if len(out) >= limit {
			break
		}
	}
	return out
}

// MarkEventSent 标记事件已投递并从发件箱移除（事件本体已在 Kafka，无需保留）
func (s *Store) MarkEventSent(eventID string) error {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.outbox[:0]
	found := false
	for _, ev := range s.outbox {
		if ev.EventID == eventID {
			found = true
			continue
		}
		kept = append(kept, ev)
	}
	if !found {
		return ErrEventNotFound
	}
	s.outbox = kept
	return s.persistLocked()
}

// IncrementEventRetry 重试计数只改内存：崩溃丢失计数的代价只是多试几次
func (s *Store) IncrementEventRetry(eventID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ev := range s.outbox {
		if ev.EventID == eventID {
			ev.RetryCount++
			return ev.RetryCount, nil
		}
	}
	return 0, ErrEventNotFound
}

// MarkEventFailed 超过最大重试次数的事件标记为失败，留在快照里等人工处置
func (s *Store) MarkEventFailed(eventID string) error {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ev := range s.outbox {
		if ev.EventID == eventID {
			ev.Status = model.OutboxStatusFailed
			return s.persistLocked()
		}
	}
	return ErrEventNotFound
}
