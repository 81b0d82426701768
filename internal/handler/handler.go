package handler

import (
	"errors"
	"log"
	"net/http"

	"mobipay/internal/config"
	"mobipay/internal/infrastructure/idempotency"
	"mobipay/internal/service"
	"mobipay/internal/store"
	"mobipay/pkg/response"

	"github.com/gin-gonic/gin"
)

// Handler 统一处理器。
// API 层只做请求解析与结果翻译，不含任何业务逻辑，也不直接碰存储写入。
type Handler struct {
	authService   *service.AuthService
	ledgerService *service.LedgerService
	store         *store.Store
}

// NewHandler 创建处理器实例
func NewHandler(st *store.Store, cfg *config.Config, idem idempotency.Cache) *Handler {
	return &Handler{
		authService:   service.NewAuthService(st, cfg),
		ledgerService: service.NewLedgerService(st, cfg, idem),
		store:         st,
	}
}

// ============================================================
// 认证相关接口
// ============================================================

// SignupRequest 注册请求
type SignupRequest struct {
	Username     string `json:"username" binding:"required"`
	Password     string `json:"password" binding:"required"`
	ReferralCode string `json:"referralCode"`
}

// Signup 注册
// POST /api/signup
func (h *Handler) Signup(c *gin.Context) {
	var req SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "用户名和密码不能为空")
		return
	}

	acct, err := h.authService.Signup(c.Request.Context(), req.Username, req.Password, req.ReferralCode)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrEmptyCredentials):
			response.ParamError(c, err.Error())
		case errors.Is(err, store.ErrUsernameTaken):
			response.Conflict(c, err.Error())
		case errors.Is(err, store.ErrLockTimeout):
			response.Busy(c, err.Error())
		default:
			log.Printf("[Signup] 注册失败: username=%s, err=%v", req.Username, err)
			response.ServerError(c)
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "注册成功",
		"user":    acct.View(),
	})
}

// LoginRequest 登录请求
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login 登录
// POST /api/login
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "用户名和密码不能为空")
		return
	}

	acct, err := h.authService.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			response.Unauthorized(c, err.Error())
			return
		}
		response.ParamError(c, err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "登录成功",
		"user":    acct.View(),
	})
}

// ============================================================
// 账户查询接口
// ============================================================

// GetUser 查询用户信息（不含密码散列）
// GET /api/user/:username
func (h *Handler) GetUser(c *gin.Context) {
	username := c.Param("username")

	acct, err := h.store.GetByUsername(username)
	if err != nil {
		response.NotFound(c, "用户不存在")
		return
	}

	c.JSON(http.StatusOK, acct.View())
}

// ============================================================
// 转账接口
// ============================================================

// TransferRequest 转账请求
type TransferRequest struct {
	FromUsername    string `json:"fromUsername" binding:"required"`
	ToAccountNumber string `json:"toAccountNumber" binding:"required"`
	Amount          int64  `json:"amount" binding:"required"`
	RequestID       string `json:"requestId"` // 可选幂等ID
}

// Transfer 转账
// POST /api/transfer
func (h *Handler) Transfer(c *gin.Context) {
	var req TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.ledgerService.Transfer(c.Request.Context(), &service.TransferRequest{
		RequestID:       req.RequestID,
		FromUsername:    req.FromUsername,
		ToAccountNumber: req.ToAccountNumber,
		Amount:          req.Amount,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrSenderNotFound),
			errors.Is(err, service.ErrRecipientNotFound):
			response.NotFound(c, err.Error())
		case errors.Is(err, service.ErrSelfTransfer),
			errors.Is(err, service.ErrBadAmount),
			errors.Is(err, service.ErrInsufficientFunds):
			response.ParamError(c, err.Error())
		case errors.Is(err, idempotency.ErrInFlight):
			response.Conflict(c, err.Error())
		case errors.Is(err, store.ErrLockTimeout):
			response.Busy(c, err.Error())
		default:
			log.Printf("[Transfer] 转账失败: from=%s, to=%s, err=%v",
				req.FromUsername, req.ToAccountNumber, err)
			response.ServerError(c)
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":    "转账成功",
		"newBalance": result.NewBalance,
	})
}
