package core

import (
	"errors"
	"fmt"
)

// 管道统一的错误分类。调度器只看分类决定要不要重试：
// ConfigurationError 不重试，TransientError 带退避重试，
// ValidationError 是数据质量问题不是故障，IntegrityError 直接拉警报。
var (
	ErrConfiguration = errors.New("configuration error")
	ErrTransient     = errors.New("transient error")
	ErrValidation    = errors.New("validation error")
	ErrIntegrity     = errors.New("integrity error")
)

// PipelineError 带分类的错误，errors.Is 可以匹配到上面的哨兵
type PipelineError struct {
	Kind error
	Msg  string
	Err  error
}

func (e *PipelineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *PipelineError) Is(target error) bool {
	return target == e.Kind
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

func NewConfigError(format string, args ...interface{}) error {
	return &PipelineError{Kind: ErrConfiguration, Msg: fmt.Sprintf(format, args...)}
}

func NewTransientError(err error, format string, args ...interface{}) error {
	return &PipelineError{Kind: ErrTransient, Msg: fmt.Sprintf(format, args...), Err: err}
}

func NewValidationError(format string, args ...interface{}) error {
	return &PipelineError{Kind: ErrValidation, Msg: fmt.Sprintf(format, args...)}
}

func NewIntegrityError(format string, args ...interface{}) error {
	return &PipelineError{Kind: ErrIntegrity, Msg: fmt.Sprintf(format, args...)}
}

// IsRetryable 调度器用：只有 Transient 类错误值得重试
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransient)
}
