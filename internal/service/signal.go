package service

import (
	"context"
	"strconv"

	"signalflow/internal/consts"
	"signalflow/internal/dao"
	"signalflow/internal/dispatch"
	"signalflow/internal/model"
	"signalflow/internal/resolver"
	"signalflow/pkg/errors"
	"signalflow/pkg/errors/ecode"
	"signalflow/pkg/logger"

	json "github.com/goccy/go-json"
	"github.com/go-playground/validator/v10"
)

// 信号受理服务。webhook handler把原始body交到这里，流程：
// 解析校验 -> 幂等快查 -> 账户解析 -> 归属校验 -> 入队
// 签名校验在handler层做，因为需要原始body和请求头

// Enqueuer 入队能力，由调度器实现，测试时可替换
type Enqueuer interface {
	Enqueue(ctx context.Context, queueName, jobType string, payload *model.JobPayload, userID *uint64) (*dispatch.EnqueueResult, error)
}

type SignalService struct {
	validate *validator.Validate
	resolver *resolver.Resolver
	jobs     dao.JobDao
	enqueuer Enqueuer
}

func NewSignalService(r *resolver.Resolver, jobs dao.JobDao, enqueuer Enqueuer) *SignalService {
	return &SignalService{
		validate: validator.New(),
		resolver: r,
		jobs:     jobs,
		enqueuer: enqueuer,
	}
}

// Process 受理一条原始信号
// callerUID为nil表示公共webhook（仅签名校验），非nil表示登录态调用
func (s *SignalService) Process(ctx context.Context, raw []byte, callerUID *uint64) (*model.DispatchResult, error) {
	var sig model.Signal
	if err := json.Unmarshal(raw, &sig); err != nil {
		return nil, errors.Wrap(err, ecode.InvalidParams, "malformed signal payload")
	}
	if err := s.validate.Struct(&sig); err != nil {
		return nil, errors.Wrap(err, ecode.InvalidParams, "signal validation failed: "+err.Error())
	}
	sig.Normalize()

	// 幂等快查：同alert_id的信号已经受理过就直接返回原任务
	// 真正的兜底是jobs.alert_id唯一键，这里只是省一次完整的解析流程
	if existing, err := s.jobs.GetJobByAlertID(ctx, sig.AlertID); err == nil && existing != nil {
		logger.Info("[Signal] duplicate alert short-circuited",
			logger.Pair("alert_id", sig.AlertID),
			logger.Pair("job_id", existing.ID))
		return &model.DispatchResult{
			Message:   "Duplicate signal ignored",
			JobID:     strconv.FormatUint(existing.ID, 10),
			AlertID:   sig.AlertID,
			Duplicate: true,
		}, nil
	}

	resolution, failure := s.resolver.Resolve(ctx, &sig, callerUID)
	if failure != nil {
		logger.Warn("[Signal] account resolution failed",
			logger.Pair("alert_id", sig.AlertID),
			logger.Pair("exchange", failure.Exchange),
			logger.Pair("category", string(failure.Category)))
		return nil, errors.New(ecode.ResolveAccountErr, failure.Reason)
	}

	// 登录态下解析出的账户必须归属调用者
	if callerUID != nil {
		if resolution.Account.UserID != *callerUID {
			logger.Warn("[Signal] ownership check rejected",
				logger.Pair("alert_id", sig.AlertID),
				logger.Pair("account_id", resolution.Account.ID),
				logger.Pair("caller_uid", *callerUID))
			return nil, errors.New(ecode.OwnershipErr, "")
		}
		// 解析结果可能来自名称匹配等旁路，归属和活跃状态再独立回查一次
		owned, oerr := s.resolver.ValidateOwnership(ctx, resolution.Account.ID, *callerUID, sig.Exchange)
		if oerr != nil {
			return nil, errors.Wrap(oerr, ecode.InternalErr, "ownership re-check failed")
		}
		if !owned {
			logger.Warn("[Signal] ownership re-check rejected",
				logger.Pair("alert_id", sig.AlertID),
				logger.Pair("account_id", resolution.Account.ID),
				logger.Pair("caller_uid", *callerUID))
			return nil, errors.New(ecode.OwnershipErr, "")
		}
	}

	payload := &model.JobPayload{
		Strategy:        sig.Strategy,
		Ticker:          sig.Ticker,
		Side:            sig.Side,
		Exchange:        sig.Exchange,
		AlertID:         sig.AlertID,
		AccountID:       resolution.Account.ID,
		SizeMode:        sig.SizeMode,
		SizeValue:       sig.SizeValueFloat(),
		Leverage:        sig.LeverageFloat(),
		StopLoss:        sig.StopLossFloat(),
		TakeProfit:      sig.TakeProfitFloat(),
		SelectionReason: resolution.Reason,
	}

	result, err := s.enqueuer.Enqueue(ctx, consts.QueueExecution, consts.JobTypePlaceOrder, payload, callerUID)
	if err != nil {
		return nil, errors.Wrap(err, ecode.EnqueueErr, "")
	}

	message := "Signal accepted"
	if result.Duplicate {
		message = "Duplicate signal ignored"
	}
	logger.Info("[Signal] "+message,
		logger.Pair("alert_id", sig.AlertID),
		logger.Pair("job_id", result.JobID),
		logger.Pair("account_id", resolution.Account.ID),
		logger.Pair("selection_reason", resolution.Reason))

	return &model.DispatchResult{
		Message:   message,
		JobID:     strconv.FormatUint(result.JobID, 10),
		AlertID:   sig.AlertID,
		Duplicate: result.Duplicate,
	}, nil
}
