package admin

import (
	"context"

	"signalflow/internal/breaker"
	"signalflow/internal/consts"
	"signalflow/internal/deadletter"
	"signalflow/pkg/errors"
	"signalflow/pkg/errors/ecode"
	"signalflow/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cast"
)

// 运营接口：死信管理、熔断观测、队列水位

// QueueInspector 队列水位观测，由调度器实现
type QueueInspector interface {
	WaitingCount(ctx context.Context, queueName string) (int64, error)
	ActiveCount(ctx context.Context, queueName string) (int64, error)
}

type Handler struct {
	dlq      *deadletter.Router
	breakers *breaker.Registry
	queues   QueueInspector
}

func NewHandler(dlq *deadletter.Router, breakers *breaker.Registry, queues QueueInspector) *Handler {
	return &Handler{dlq: dlq, breakers: breakers, queues: queues}
}

// DeadLetterList 死信分页列表
func (h *Handler) DeadLetterList() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := cast.ToInt(c.DefaultQuery("limit", "50"))
		offset := cast.ToInt(c.DefaultQuery("offset", "0"))
		entries, err := h.dlq.List(c, limit, offset)
		if err != nil {
			response.Internal(c, err)
			return
		}
		response.JSON(c, nil, gin.H{"entries": entries, "count": len(entries)})
	}
}

// DeadLetterStats 死信聚合统计
func (h *Handler) DeadLetterStats() gin.HandlerFunc {
	return func(c *gin.Context) {
		stats, err := h.dlq.Stats(c)
		if err != nil {
			response.Internal(c, err)
			return
		}
		response.JSON(c, nil, stats)
	}
}

type reprocessReq struct {
	Queue string `json:"queue"` // 可选，缺省回原队列
}

// DeadLetterReprocess 回放一条死信
func (h *Handler) DeadLetterReprocess() gin.HandlerFunc {
	return func(c *gin.Context) {
		entryID := cast.ToUint64(c.Param("id"))
		if entryID == 0 {
			response.JSON(c, errors.New(ecode.InvalidParams, "invalid entry id"), nil)
			return
		}
		var req reprocessReq
		_ = c.ShouldBindJSON(&req)

		jobID, err := h.dlq.Reprocess(c, entryID, req.Queue)
		if err != nil {
			response.JSON(c, err, nil)
			return
		}
		response.JSON(c, nil, gin.H{"job_id": jobID})
	}
}

// DeadLetterPurge 立即清理超过保留期的死信
func (h *Handler) DeadLetterPurge() gin.HandlerFunc {
	return func(c *gin.Context) {
		removed, err := h.dlq.Purge(c)
		if err != nil {
			response.Internal(c, err)
			return
		}
		response.JSON(c, nil, gin.H{"removed": removed})
	}
}

// BreakerStats 全部熔断器状态
func (h *Handler) BreakerStats() gin.HandlerFunc {
	return func(c *gin.Context) {
		response.JSON(c, nil, h.breakers.StatsAll())
	}
}

// QueueStats 各队列等待/在途数量
func (h *Handler) QueueStats() gin.HandlerFunc {
	return func(c *gin.Context) {
		out := make(map[string]gin.H, 2)
		for _, q := range []string{consts.QueueExecution, consts.QueueReconciliation} {
			waiting, err := h.queues.WaitingCount(c, q)
			if err != nil {
				response.Internal(c, err)
				return
			}
			active, err := h.queues.ActiveCount(c, q)
			if err != nil {
				response.Internal(c, err)
				return
			}
			out[q] = gin.H{"waiting": waiting, "active": active}
		}
		response.JSON(c, nil, out)
	}
}
