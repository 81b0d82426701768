package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"mobipay/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestStore 建一个落在临时目录的存储，测试互不污染
func newTestStore(t *testing.T, lockTimeout time.Duration) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "accounts.json")
	st, err := NewStore(path, lockTimeout)
	require.NoError(t, err)
	return st
}

// mustCreate 直接造一个账户（绕过认证层，只测存储语义）
func mustCreate(t *testing.T, st *Store, username, accountNumber string, balance int64) {
	t.Helper()
	err := st.WithAccounts(context.Background(), nil, func(tx *Txn) error {
		return tx.Create(&model.Account{
			Username:      username,
			AccountNumber: accountNumber,
			Balance:       balance,
			ReferralCode:  "MP" + accountNumber[:8],
			CreatedAt:     time.Now(),
		})
	})
	require.NoError(t, err)
}

// TestCreateAndGet 建号与三种索引（用户名/账号/推荐码）的查询
func TestCreateAndGet(t *testing.T) {
	st := newTestStore(t, time.Second)
	mustCreate(t, st, "alice", "1234567890", 5000)

	a, err := st.GetByUsername("alice")
	require.NoError(t, err)
	assert.Equal(t, "1234567890", a.AccountNumber)
	assert.EqualValues(t, 5000, a.Balance)

	byNo, err := st.GetByAccountNumber("1234567890")
	require.NoError(t, err)
	assert.Equal(t, "alice", byNo.Username)

	byRef, err := st.GetByReferralCode(a.ReferralCode)
	require.NoError(t, err)
	assert.Equal(t, "alice", byRef.Username)

	_, err = st.GetByUsername("nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}

// TestCreateConflicts 用户名与账号的唯一性裁决
func TestCreateConflicts(t *testing.T) {
	st := newTestStore(t, time.Second)
	mustCreate(t, st, "alice", "1234567890", 0)

	err := st.WithAccounts(context.Background(), nil, func(tx *Txn) error {
		return tx.Create(&model.Account{Username: "alice", AccountNumber: "1111111111", ReferralCode: "MPAAAAAAAA"})
	})
	assert.ErrorIs(t, err, ErrUsernameTaken)

	err = st.WithAccounts(context.Background(), nil, func(tx *Txn) error {
		return tx.Create(&model.Account{Username: "bob", AccountNumber: "1234567890", ReferralCode: "MPBBBBBBBB"})
	})
	assert.ErrorIs(t, err, ErrAccountNumberConflict)
}

// TestGetReturnsCopy 查询返回的是拷贝，改它不会影响存储内部状态
func TestGetReturnsCopy(t *testing.T) {
	st := newTestStore(t, time.Second)
	mustCreate(t, st, "alice", "1234567890", 100)

	a, err := st.GetByUsername("alice")
	require.NoError(t, err)
	a.Balance = 999999

	again, err := st.GetByUsername("alice")
	require.NoError(t, err)
	assert.EqualValues(t, 100, again.Balance)
}

// TestWithAccountsRollback fn 返回错误时，内存与文件都保持原状
func TestWithAccountsRollback(t *testing.T) {
	st := newTestStore(t, time.Second)
	mustCreate(t, st, "alice", "1234567890", 100)

	boom := assert.AnError
	err := st.WithAccounts(context.Background(), []string{"1234567890"}, func(tx *Txn) error {
		a := tx.Account("1234567890")
		require.NotNil(t, a)
		a.Balance = 0 // 改了拷贝，但下面返回错误
		return boom
	})
	assert.ErrorIs(t, err, boom)

	a, err := st.GetByUsername("alice")
	require.NoError(t, err)
	assert.EqualValues(t, 100, a.Balance, "失败的事务不能留下任何变更")
}

// TestSnapshotDurability 重启（新建 Store 读同一文件）后状态完整
func TestSnapshotDurability(t *testing.T) {
	path := filepath.Join(t.TempDir(), "accounts.json")
	st, err := NewStore(path, time.Second)
	require.NoError(t, err)

	mustCreate(t, st, "alice", "1234567890", 700)
	err = st.WithAccounts(context.Background(), []string{"1234567890"}, func(tx *Txn) error {
		a := tx.Account("1234567890")
		a.Balance = 800
		a.Transactions = []*model.Transaction{{ID: 1, Type: model.TransactionTypeCredit, Amount: 100, Timestamp: time.Now()}}
		return nil
	})
	require.NoError(t, err)

	reopened, err := NewStore(path, time.Second)
	require.NoError(t, err)
	a, err := reopened.GetByUsername("alice")
	require.NoError(t, err)
	assert.EqualValues(t, 800, a.Balance)
	require.Len(t, a.Transactions, 1)
	assert.EqualValues(t, 100, a.Transactions[0].Amount)
}

// TestLockTimeout 锁被占住时，等待方在超时后得到可重试错误而不是挂死
func TestLockTimeout(t *testing.T) {
	st := newTestStore(t, 50*time.Millisecond)
	mustCreate(t, st, "alice", "1234567890", 100)

	holding := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = st.WithAccounts(context.Background(), []string{"1234567890"}, func(tx *Txn) error {
			close(holding)
			<-release
			return nil
		})
	}()

	<-holding
	err := st.WithAccounts(context.Background(), []string{"1234567890"}, func(tx *Txn) error {
		return nil
	})
	assert.ErrorIs(t, err, ErrLockTimeout)
	close(release)
}

// TestLockOrdering 交叉加锁（A,B 与 B,A）不会死锁
func TestLockOrdering(t *testing.T) {
	st := newTestStore(t, 2*time.Second)
	mustCreate(t, st, "alice", "1111111111", 100)
	mustCreate(t, st, "bob", "2222222222", 100)

	done := make(chan error, 2)
	for i := 0; i < 2; i++ {
		keys := []string{"1111111111", "2222222222"}
		if i == 1 {
			keys = []string{"2222222222", "1111111111"}
		}
		go func(keys []string) {
			done <- st.WithAccounts(context.Background(), keys, func(tx *Txn) error {
				time.Sleep(10 * time.Millisecond)
				return nil
			})
		}(keys)
	}

	for i := 0; i < 2; i++ {
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("交叉加锁疑似死锁")
		}
	}
}

// TestOutboxLifecycle 事件随提交落盘，投递后移除，失败标记保留
func TestOutboxLifecycle(t *testing.T) {
	st := newTestStore(t, time.Second)
	mustCreate(t, st, "alice", "1234567890", 100)

	err := st.WithAccounts(context.Background(), []string{"1234567890"}, func(tx *Txn) error {
		tx.AppendEvent(&model.OutboxEvent{EventID: "ev-1", Type: model.LedgerEventTransfer, Payload: "{}", Status: model.OutboxStatusPending})
		tx.AppendEvent(&model.OutboxEvent{EventID: "ev-2", Type: model.LedgerEventTransfer, Payload: "{}", Status: model.OutboxStatusPending})
		return nil
	})
	require.NoError(t, err)

	pending := st.PendingEvents(10)
	require.Len(t, pending, 2)

	require.NoError(t, st.MarkEventSent("ev-1"))
	assert.Len(t, st.PendingEvents(10), 1)

	n, err := st.IncrementEventRetry("ev-2")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, st.MarkEventFailed("ev-2"))
	assert.Empty(t, st.PendingEvents(10), "失败事件不再参与投递")

	assert.ErrorIs(t, st.MarkEventSent("ev-404"), ErrEventNotFound)
}
