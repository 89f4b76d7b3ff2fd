package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/wyfcoding/optionsettlement/internal/option/application"
	"github.com/wyfcoding/optionsettlement/internal/option/domain"
	"github.com/wyfcoding/optionsettlement/pkg/logger"
	"github.com/wyfcoding/optionsettlement/pkg/metrics"
)

// 调用方身份由前置平台认证后放入该请求头，引擎只做授权判断
const callerHeader = "X-Account-ID"

// OptionHandler HTTP 处理器
type OptionHandler struct {
	optionService *application.OptionAppService
	metrics       *metrics.Metrics
}

// NewOptionHandler 创建 HTTP 处理器，metrics 允许为 nil
func NewOptionHandler(optionService *application.OptionAppService, m *metrics.Metrics) *OptionHandler {
	return &OptionHandler{optionService: optionService, metrics: m}
}

func (h *OptionHandler) observe(operation string, start time.Time, err error) {
	if h.metrics != nil {
		h.metrics.ObserveOperation(operation, start, err)
	}
}

// RegisterRoutes 注册路由
func (h *OptionHandler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api/v1")
	{
		api.GET("/agreements/:id", h.GetAgreement)
		api.GET("/agreements/:id/exercisable", h.IsExercisable)
		api.POST("/agreements/:id/premium", h.PayPremium)
		api.POST("/agreements/:id/exercise", h.Exercise)
		api.POST("/agreements/:id/expire", h.MarkExpired)
	}
}

// GetAgreement 查询协议
func (h *OptionHandler) GetAgreement(c *gin.Context) {
	agreement, err := h.optionService.GetAgreement(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, agreement)
}

// IsExercisable 查询当前时刻是否可行权
func (h *OptionHandler) IsExercisable(c *gin.Context) {
	ok, err := h.optionService.IsExercisable(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"exercisable": ok})
}

// PayPremiumRequest 权利金支付请求
type PayPremiumRequest struct {
	Amount string `json:"amount" binding:"required"`
}

// PayPremium 支付权利金
func (h *OptionHandler) PayPremium(c *gin.Context) {
	caller := c.GetHeader(callerHeader)
	if caller == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "caller identity is required"})
		return
	}

	var req PayPremiumRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid amount"})
		return
	}

	start := time.Now()
	err = h.optionService.PayPremium(c.Request.Context(), c.Param("id"), amount, caller)
	h.observe("pay_premium", start, err)
	if err != nil {
		logger.Error(c.Request.Context(), "failed to pay premium",
			"agreement_id", c.Param("id"), "error", err)
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "active"})
}

// Exercise 行权
func (h *OptionHandler) Exercise(c *gin.Context) {
	caller := c.GetHeader(callerHeader)
	if caller == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "caller identity is required"})
		return
	}

	start := time.Now()
	err := h.optionService.Exercise(c.Request.Context(), c.Param("id"), caller)
	h.observe("exercise", start, err)
	if err != nil {
		logger.Error(c.Request.Context(), "failed to exercise",
			"agreement_id", c.Param("id"), "error", err)
		respondError(c, err)
		return
	}
	if h.metrics != nil {
		h.metrics.AgreementsOpen.Dec()
	}

	c.JSON(http.StatusOK, gin.H{"status": "exercised"})
}

// MarkExpired 标记过期，对任何调用方开放
func (h *OptionHandler) MarkExpired(c *gin.Context) {
	caller := c.GetHeader(callerHeader)

	start := time.Now()
	err := h.optionService.MarkExpired(c.Request.Context(), c.Param("id"), caller)
	h.observe("mark_expired", start, err)
	if err != nil {
		respondError(c, err)
		return
	}
	if h.metrics != nil {
		h.metrics.AgreementsOpen.Dec()
	}

	c.JSON(http.StatusOK, gin.H{"status": "expired"})
}

// respondError 领域错误到 HTTP 状态码的映射，错误信息保留具体未满足的前置条件
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidParameter):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidState),
		errors.Is(err, domain.ErrAlreadyAssigned),
		errors.Is(err, domain.ErrNotYetExercisable),
		errors.Is(err, domain.ErrExerciseWindowExpired),
		errors.Is(err, domain.ErrReentrantCall):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrTransferFailed):
		status = http.StatusUnprocessableEntity
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
