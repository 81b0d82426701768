package store

import "errors"

var (
	ErrNotFound              = errors.New("账户不存在")
	ErrUsernameTaken         = errors.New("用户名已存在")
	ErrAccountNumberConflict = errors.New("账号已存在")
	ErrReferralCodeConflict  = errors.New("推荐码已存在")
	ErrLockTimeout           = errors.New("获取账户锁超时，请稍后重试")
	ErrEventNotFound         = errors.New("事件不存在")

	// ErrStorage 持久化失败的哨兵错误，具体原因用 %w 包装在其后。
	// 上层日志记录完整原因，对外只返回通用失败。
	ErrStorage = errors.New("保存快照失败")
)
