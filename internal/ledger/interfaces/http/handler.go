package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/wyfcoding/optionsettlement/internal/ledger/domain"
	"github.com/wyfcoding/optionsettlement/internal/ledger/infrastructure/persistence/mysql"
)

// LedgerHandler 托管账本 HTTP 处理器。
// 仅在本地部署托管账本时挂载；对接外部账本时该面不存在。
type LedgerHandler struct {
	ledger *mysql.Ledger
}

// NewLedgerHandler 创建 HTTP 处理器
func NewLedgerHandler(ledger *mysql.Ledger) *LedgerHandler {
	return &LedgerHandler{ledger: ledger}
}

// RegisterRoutes 注册路由
func (h *LedgerHandler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api/v1/accounts")
	{
		api.POST("/deposit", h.Deposit)
		api.GET("/balance", h.Balance)
	}
}

// DepositRequest 入金请求
type DepositRequest struct {
	Asset  string `json:"asset" binding:"required"`
	Owner  string `json:"owner" binding:"required"`
	Amount string `json:"amount" binding:"required"`
}

// Deposit 向托管账户入金
func (h *LedgerHandler) Deposit(c *gin.Context) {
	var req DepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid amount"})
		return
	}

	if err := h.ledger.Deposit(c.Request.Context(), req.Asset, req.Owner, amount); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, domain.ErrAccountNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "deposited"})
}

// Balance 查询托管账户余额，账户不存在时返回零
func (h *LedgerHandler) Balance(c *gin.Context) {
	asset := c.Query("asset")
	owner := c.Query("owner")
	if asset == "" || owner == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "asset and owner are required"})
		return
	}

	balance, err := h.ledger.Balance(c.Request.Context(), asset, owner)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"asset": asset, "owner": owner, "balance": balance})
}
