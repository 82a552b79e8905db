package ecode

// 业务错误码定义。0表示成功，非0为具体错误
const (
	Success = 0

	// 通用错误 10xxx
	InternalErr   = 10001
	InvalidParams = 10002
	NotFoundErr   = 10003

	// 鉴权相关 20xxx
	RequireAuthErr  = 20001
	SignatureErr    = 20002
	OwnershipErr    = 20003
	PermissionDeny  = 20004
	TooManyRequests = 20005

	// 信号分发相关 30xxx
	ResolveAccountErr  = 30001
	DuplicateSignalErr = 30002 // 幂等命中，不算失败，但保留错误码用于日志统计
	EnqueueErr         = 30003
	CircuitOpenErr     = 30004

	// 死信相关 31xxx
	DeadLetterNotFound      = 31001
	DeadLetterNotReplayable = 31002
)

var messages = map[int]string{
	Success:       "ok",
	InternalErr:   "internal server error",
	InvalidParams: "invalid request params",
	NotFoundErr:   "record not found",

	RequireAuthErr:  "authentication required",
	SignatureErr:    "missing or invalid signature",
	OwnershipErr:    "account does not belong to caller",
	PermissionDeny:  "permission denied",
	TooManyRequests: "too many requests",

	ResolveAccountErr:  "no tradable account resolved",
	DuplicateSignalErr: "duplicate signal",
	EnqueueErr:         "failed to enqueue job",
	CircuitOpenErr:     "dependency circuit is open",

	DeadLetterNotFound:      "dead letter entry not found",
	DeadLetterNotReplayable: "dead letter entry is not reprocessable",
}

// Message 返回错误码对应的默认文案
func Message(code int) string {
	if msg, ok := messages[code]; ok {
		return msg
	}
	return messages[InternalErr]
}
