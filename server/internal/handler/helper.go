package handler

import (
	"errors"
	"net/http"

	"GreenLedger/server/internal/core"
)

// httpStatus 把管道错误分类映射成 HTTP 状态码
func httpStatus(err error) int {
	switch {
	case errors.Is(err, core.ErrConfiguration), errors.Is(err, core.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrTransient):
		return http.StatusServiceUnavailable
	case errors.Is(err, core.ErrIntegrity):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
