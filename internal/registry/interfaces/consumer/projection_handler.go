package consumer

import (
	"context"
	"encoding/json"
	"log/slog"

	optiondomain "github.com/wyfcoding/optionsettlement/internal/option/domain"
	"github.com/wyfcoding/optionsettlement/internal/registry/application"
	"github.com/wyfcoding/optionsettlement/pkg/mq"
)

// ProjectionHandler 消费期权事件流，刷新登记记录的持有人缓存
type ProjectionHandler struct {
	registry *application.RegistryAppService
	logger   *slog.Logger
}

// NewProjectionHandler 创建投影处理器
func NewProjectionHandler(registry *application.RegistryAppService, logger *slog.Logger) *ProjectionHandler {
	return &ProjectionHandler{registry: registry, logger: logger}
}

// envelope 与 messaging.Envelope 对应的消费侧视图
type envelope struct {
	EventType string          `json:"event_type"`
	Key       string          `json:"key"`
	Payload   json.RawMessage `json:"payload"`
}

// Handle 处理单条事件消息
func (h *ProjectionHandler) Handle(ctx context.Context, msg *mq.Message) error {
	var env envelope
	if err := msg.UnmarshalPayload(&env); err != nil {
		h.logger.ErrorContext(ctx, "failed to unmarshal event envelope", "error", err)
		return err
	}

	switch env.EventType {
	case optiondomain.EventTypeHolderAssigned, optiondomain.EventTypePremiumPaid:
		if env.Key == "" {
			return nil
		}
		return h.registry.RefreshHolder(ctx, env.Key)
	default:
		return nil
	}
}

// Run 持续消费事件主题直到 context 取消
func (h *ProjectionHandler) Run(ctx context.Context, consumer *mq.Consumer) {
	for {
		msg, err := consumer.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			h.logger.ErrorContext(ctx, "failed to read event message", "error", err)
			continue
		}
		if err := h.Handle(ctx, msg); err != nil {
			h.logger.ErrorContext(ctx, "failed to handle event message",
				"key", msg.Key, "error", err)
		}
	}
}
