package errors

import (
	"errors"
	"fmt"

	"signalflow/pkg/errors/ecode"
)

// 业务错误封装，携带错误码和提示信息，供response层解码

type Err struct {
	Code    int
	Message string
	Err     error // 底层错误，不暴露给客户端
}

func (e *Err) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("code: %d, message: %s, error: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("code: %d, message: %s", e.Code, e.Message)
}

func (e *Err) Unwrap() error {
	return e.Err
}

// New 创建一个带错误码的业务错误
func New(code int, message string) *Err {
	if message == "" {
		message = ecode.Message(code)
	}
	return &Err{Code: code, Message: message}
}

// Wrap 包装底层错误
func Wrap(err error, code int, message string) *Err {
	if message == "" {
		message = ecode.Message(code)
	}
	return &Err{Code: code, Message: message, Err: err}
}

// DecodeErr 解码错误，返回错误码和提示信息
func DecodeErr(err error) (int, string) {
	if err == nil {
		return ecode.Success, ecode.Message(ecode.Success)
	}
	var e *Err
	if errors.As(err, &e) {
		return e.Code, e.Message
	}
	// 未知错误统一按内部错误处理，避免泄漏内部细节
	return ecode.InternalErr, ecode.Message(ecode.InternalErr)
}

// IsCode 判断错误是否为指定错误码
func IsCode(err error, code int) bool {
	var e *Err
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}
