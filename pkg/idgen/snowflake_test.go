package idgen

import (
	"regexp"
	"sync"
	"testing"
)

// TestTransactionIDMonotonic 交易 ID 单调递增且唯一
func TestTransactionIDMonotonic(t *testing.T) {
	prev := GenerateTransactionID()
	for i := 0; i < 1000; i++ {
		id := GenerateTransactionID()
		if id <= prev {
			t.Fatalf("ID 必须单调递增: prev=%d, next=%d", prev, id)
		}
		prev = id
	}
}

// TestTransactionIDConcurrentUnique 并发生成不重复
func TestTransactionIDConcurrentUnique(t *testing.T) {
	const n = 2000
	ids := make(chan int64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids <- GenerateTransactionID()
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[int64]struct{}, n)
	for id := range ids {
		if _, dup := seen[id]; dup {
			t.Fatalf("生成了重复 ID: %d", id)
		}
		seen[id] = struct{}{}
	}
}

// TestAccountNumberFormat 账号恒为 10 位且首位非零
func TestAccountNumberFormat(t *testing.T) {
	pattern := regexp.MustCompile(`^[1-9][0-9]{9}$`)
	for i := 0; i < 100; i++ {
		no := GenerateAccountNumber()
		if !pattern.MatchString(no) {
			t.Fatalf("账号格式错误: %q", no)
		}
	}
}

// TestReferralCodeFormat 推荐码格式：MP + 8 位不含易混淆字符
func TestReferralCodeFormat(t *testing.T) {
	pattern := regexp.MustCompile(`^MP[A-HJ-NP-Z2-9]{8}$`)
	for i := 0; i < 100; i++ {
		code := GenerateReferralCode()
		if !pattern.MatchString(code) {
			t.Fatalf("推荐码格式错误: %q", code)
		}
	}
}
