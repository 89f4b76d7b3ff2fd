package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	optiondomain "github.com/wyfcoding/optionsettlement/internal/option/domain"
	"github.com/wyfcoding/optionsettlement/internal/registry/application"
	"github.com/wyfcoding/optionsettlement/pkg/logger"
	"github.com/wyfcoding/optionsettlement/pkg/metrics"
)

const callerHeader = "X-Account-ID"

// RegistryHandler HTTP 处理器
type RegistryHandler struct {
	registryService *application.RegistryAppService
	metrics         *metrics.Metrics
}

// NewRegistryHandler 创建 HTTP 处理器，metrics 允许为 nil
func NewRegistryHandler(registryService *application.RegistryAppService, m *metrics.Metrics) *RegistryHandler {
	return &RegistryHandler{registryService: registryService, metrics: m}
}

func (h *RegistryHandler) observe(operation string, start time.Time, err error) {
	if h.metrics != nil {
		h.metrics.ObserveOperation(operation, start, err)
	}
}

// RegisterRoutes 注册路由
func (h *RegistryHandler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api/v1")
	{
		api.POST("/options", h.CreateOption)
		api.POST("/options/:ref/match", h.MatchOption)
		api.GET("/options", h.ListOptions)
		api.GET("/options/:ref", h.GetInfo)
	}
}

// CreateOptionRequest 挂牌请求
type CreateOptionRequest struct {
	UnderlyingAsset string `json:"underlying_asset" binding:"required"`
	StrikeAsset     string `json:"strike_asset" binding:"required"`
	StrikePrice     string `json:"strike_price" binding:"required"`
	ContractSize    string `json:"contract_size" binding:"required"`
	ExpirationTime  int64  `json:"expiration_time" binding:"required"`
}

// CreateOption 挂牌新期权，发行方为调用方
func (h *RegistryHandler) CreateOption(c *gin.Context) {
	caller := c.GetHeader(callerHeader)
	if caller == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "caller identity is required"})
		return
	}

	var req CreateOptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	strikePrice, err := decimal.NewFromString(req.StrikePrice)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid strike_price"})
		return
	}
	contractSize, err := decimal.NewFromString(req.ContractSize)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid contract_size"})
		return
	}

	start := time.Now()
	record, err := h.registryService.CreateOption(c.Request.Context(), application.CreateOptionCommand{
		UnderlyingAsset: req.UnderlyingAsset,
		StrikeAsset:     req.StrikeAsset,
		StrikePrice:     strikePrice,
		ContractSize:    contractSize,
		ExpirationTime:  time.Unix(req.ExpirationTime, 0),
	}, caller)
	h.observe("create", start, err)
	if err != nil {
		logger.Error(c.Request.Context(), "failed to create option", "error", err)
		respondError(c, err)
		return
	}
	if h.metrics != nil {
		h.metrics.AgreementsOpen.Inc()
	}

	c.JSON(http.StatusCreated, gin.H{"id": record.ID, "reference": record.Reference})
}

// MatchOption 将调用方匹配为持有人
func (h *RegistryHandler) MatchOption(c *gin.Context) {
	caller := c.GetHeader(callerHeader)
	if caller == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "caller identity is required"})
		return
	}

	start := time.Now()
	err := h.registryService.MatchOption(c.Request.Context(), c.Param("ref"), caller)
	h.observe("match", start, err)
	if err != nil {
		logger.Error(c.Request.Context(), "failed to match option",
			"reference", c.Param("ref"), "error", err)
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "matched"})
}

// ListOptions 列出协议引用。
// ?matchable=true 时只返回可匹配的；?issuer= 时按发行方过滤。
func (h *RegistryHandler) ListOptions(c *gin.Context) {
	ctx := c.Request.Context()

	var (
		refs []string
		err  error
	)
	switch {
	case c.Query("matchable") == "true":
		refs, err = h.registryService.ListMatchable(ctx)
	case c.Query("issuer") != "":
		refs, err = h.registryService.GetByIssuer(ctx, c.Query("issuer"))
	default:
		refs, err = h.registryService.ListAll(ctx)
	}
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"references": refs})
}

// GetInfo 查询单条登记信息
func (h *RegistryHandler) GetInfo(c *gin.Context) {
	info, err := h.registryService.GetInfo(c.Request.Context(), c.Param("ref"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

// respondError 领域错误到 HTTP 状态码的映射
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, optiondomain.ErrInvalidParameter):
		status = http.StatusBadRequest
	case errors.Is(err, optiondomain.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, optiondomain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, optiondomain.ErrInvalidState),
		errors.Is(err, optiondomain.ErrAlreadyAssigned),
		errors.Is(err, optiondomain.ErrReentrantCall):
		status = http.StatusConflict
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
