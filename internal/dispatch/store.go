package dispatch

import (
	"context"
	"strconv"
	"time"

	"signalflow/pkg/logger"

	"github.com/redis/go-redis/v9"
)

// redis侧的队列读写收敛到这个接口后面，失败路由和兜底扫描的测试用内存实现替换

type queueStore interface {
	// pushReady 任务进入ready队列，worker马上可取
	pushReady(ctx context.Context, queue string, jobID uint64) error

	// scheduleDelayed 任务进入延迟队列，到点由scheduler搬回ready
	scheduleDelayed(ctx context.Context, queue string, jobID uint64, delay time.Duration) error

	// delayedContains 任务是否还躺在延迟队列里
	delayedContains(ctx context.Context, queue string, jobID uint64) (bool, error)

	// recordAttemptError 逐次记录错误文本，死信条目需要完整的尝试历史
	recordAttemptError(ctx context.Context, jobID uint64, attempt int, execErr error)
	attemptErrors(ctx context.Context, jobID uint64) []string
	clearAttemptErrors(ctx context.Context, jobID uint64)
}

type redisQueueStore struct {
	rdb *redis.Client
}

func (s *redisQueueStore) pushReady(ctx context.Context, queue string, jobID uint64) error {
	return s.rdb.LPush(ctx, readyKey(queue), strconv.FormatUint(jobID, 10)).Err()
}

func (s *redisQueueStore) scheduleDelayed(ctx context.Context, queue string, jobID uint64, delay time.Duration) error {
	score := float64(time.Now().Add(delay).UnixMilli())
	return s.rdb.ZAdd(ctx, delayedKey(queue), redis.Z{
		Score:  score,
		Member: strconv.FormatUint(jobID, 10),
	}).Err()
}

func (s *redisQueueStore) delayedContains(ctx context.Context, queue string, jobID uint64) (bool, error) {
	err := s.rdb.ZScore(ctx, delayedKey(queue), strconv.FormatUint(jobID, 10)).Err()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *redisQueueStore) recordAttemptError(ctx context.Context, jobID uint64, attempt int, execErr error) {
	entry := "attempt " + strconv.Itoa(attempt) + ": " + execErr.Error()
	key := attemptErrKey(jobID)
	if err := s.rdb.RPush(ctx, key, entry).Err(); err != nil {
		logger.Warnf("[Dispatcher] failed to record attempt error for job %d: %v", jobID, err)
		return
	}
	s.rdb.Expire(ctx, key, attemptErrTTL)
}

func (s *redisQueueStore) attemptErrors(ctx context.Context, jobID uint64) []string {
	out, err := s.rdb.LRange(ctx, attemptErrKey(jobID), 0, -1).Result()
	if err != nil {
		logger.Warnf("[Dispatcher] failed to load attempt errors for job %d: %v", jobID, err)
		return nil
	}
	return out
}

func (s *redisQueueStore) clearAttemptErrors(ctx context.Context, jobID uint64) {
	s.rdb.Del(ctx, attemptErrKey(jobID))
}
