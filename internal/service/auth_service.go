package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"mobipay/internal/config"
	"mobipay/internal/model"
	"mobipay/internal/store"
	"mobipay/pkg/idgen"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrEmptyCredentials   = errors.New("用户名和密码不能为空")
	ErrInvalidCredentials = errors.New("用户名或密码错误")
)

// 账号/推荐码随机生成撞到已有值时的重试上限。
// 10 位账号空间下连撞 5 次的概率可以忽略，撞满说明系统状态异常。
const maxGenerateRetries = 5

// AuthService 认证网关：注册与登录。
// 不发 token，登录成功直接回传脱敏后的账户信息。
type AuthService struct {
	store *store.Store
	cfg   *config.Config
}

func NewAuthService(st *store.Store, cfg *config.Config) *AuthService {
	return &AuthService{store: st, cfg: cfg}
}

// Signup 注册
//
// 初始入账规则：
//   - 默认赠送 business.signup_bonus
//   - 携带有效推荐码时，新账户与推荐人【各】入账 business.referral_bonus
//     （推荐人为 VIP 时为 business.vip_referral_bonus）
//   - 推荐码无效时按无推荐码处理，只给默认赠送
//
// 新账户创建与推荐人入账在同一次提交中生效，不存在只记了一边的中间态。
func (s *AuthService) Signup(ctx context.Context, username, password, referralCode string) (*model.Account, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, ErrEmptyCredentials
	}

	// 快速查重；最终裁决在提交时由 Store 持锁再做一次
	if _, err := s.store.GetByUsername(username); err == nil {
		return nil, store.ErrUsernameTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	// 推荐人解析：无效推荐码不报错，降级为默认赠送
	var referrerNo string
	if referralCode != "" {
		if referrer, err := s.store.GetByReferralCode(referralCode); err == nil {
			referrerNo = referrer.AccountNumber
		}
	}

	for attempt := 0; attempt < maxGenerateRetries; attempt++ {
		acct := &model.Account{
			Username:      username,
			PasswordHash:  string(hash),
			AccountNumber: idgen.GenerateAccountNumber(),
			ReferralCode:  idgen.GenerateReferralCode(),
			CreatedAt:     time.Now(),
		}

		var keys []string
		if referrerNo != "" {
			keys = []string{referrerNo}
		}

		err := s.store.WithAccounts(ctx, keys, func(t *store.Txn) error {
			bonus := s.cfg.Business.SignupBonus
			desc := "注册奖励"

			if referrerNo != "" {
				referrer := t.Account(referrerNo)
				if referrer == nil {
					return store.ErrNotFound
				}
				// VIP 状态以锁内读到的为准
				bonus = s.cfg.Business.ReferralBonus
				if referrer.VIP {
					bonus = s.cfg.Business.VIPReferralBonus
				}
				desc = "推荐注册奖励"

				applyCredit(referrer, bonus, "推荐奖励: "+username)
				referrer.Referrals++
				if s.cfg.Kafka.Enabled {
					t.AppendEvent(newEvent(model.LedgerEventReferral, map[string]interface{}{
						"referrer": referrer.AccountNumber,
						"referee":  acct.AccountNumber,
						"amount":   bonus,
					}))
				}
			}

			applyCredit(acct, bonus, desc)
			if err := t.Create(acct); err != nil {
				return err
			}
			if s.cfg.Kafka.Enabled {
				t.AppendEvent(newEvent(model.LedgerEventSignup, map[string]interface{}{
					"account": acct.AccountNumber,
					"amount":  bonus,
				}))
			}
			return nil
		})

		if err == nil {
			return acct, nil
		}
		// 随机标识撞车：换个号重来
		if errors.Is(err, store.ErrAccountNumberConflict) || errors.Is(err, store.ErrReferralCodeConflict) {
			continue
		}
		return nil, err
	}
	return nil, store.ErrAccountNumberConflict
}

// Login 登录
// bcrypt 的比较本身是恒定时间的，不会通过耗时泄露密码前缀信息
func (s *AuthService) Login(ctx context.Context, username, password string) (*model.Account, error) {
	if username == "" || password == "" {
		return nil, ErrEmptyCredentials
	}

	acct, err := s.store.GetByUsername(username)
	if err != nil {
		// 用户不存在也报「用户名或密码错误」，不暴露哪一半错了
		return nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return acct, nil
}
