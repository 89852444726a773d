package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ===========================================================================
// Custom Errors
// Định nghĩa các lỗi chuẩn cho ứng dụng
// Mỗi lỗi được map với HTTP status code tương ứng
// ===========================================================================

// Sentinel errors - các lỗi chuẩn để dùng với errors.Is()
var (
	// ErrNotFound resource không tồn tại
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized chưa xác thực / token không hợp lệ
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden không có quyền truy cập
	ErrForbidden = errors.New("forbidden")

	// ErrPayloadInvalid payload từ channel hoặc request không parse được
	ErrPayloadInvalid = errors.New("payload invalid")

	// ErrDuplicateEntry dữ liệu đã tồn tại (unique constraint)
	ErrDuplicateEntry = errors.New("duplicate entry")

	// ErrInternal lỗi server nội bộ
	ErrInternal = errors.New("internal server error")

	// Tenant errors
	// ErrTenantNotFound không resolve được tenant từ credential/routing identity
	ErrTenantNotFound = errors.New("tenant not found")

	// ErrTenantSuspended tenant tồn tại nhưng đang bị tạm ngưng
	ErrTenantSuspended = errors.New("tenant suspended")

	// Chat errors
	// ErrChatNotFound chat không tồn tại trong phạm vi tenant
	ErrChatNotFound = errors.New("chat not found")

	// ErrInvalidState thao tác không hợp lệ với trạng thái hiện tại
	// (VD: escalate một chat đã đóng)
	ErrInvalidState = errors.New("invalid state")

	// Dispatch errors
	// ErrSessionUnavailable session chưa connected, không thể gửi tin
	ErrSessionUnavailable = errors.New("session unavailable")

	// ErrSendTimeout channel không trả lời trong thời hạn cho phép
	ErrSendTimeout = errors.New("send timeout")

	// ErrSendRejected channel từ chối tin nhắn
	ErrSendRejected = errors.New("send rejected")

	// Auth errors
	// ErrInvalidToken token không hợp lệ hoặc đã hết hạn
	ErrInvalidToken = errors.New("invalid token")
)

// ===========================================================================
// AppError
// Custom error type cho ứng dụng
// ===========================================================================

// AppError cấu trúc lỗi chi tiết
type AppError struct {
	// Err lỗi gốc (wrapped error)
	Err error

	// Message thông báo lỗi cho user
	Message string

	// Code mã lỗi (VD: "TENANT_NOT_FOUND")
	Code string

	// StatusCode HTTP status code
	StatusCode int
}

// Error implement error interface
func (e *AppError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Err.Error()
}

// Unwrap trả về wrapped error (cho errors.Is/As)
func (e *AppError) Unwrap() error {
	return e.Err
}

// New tạo AppError mới từ sentinel error
func New(err error, message string) *AppError {
	return &AppError{
		Err:        err,
		Message:    message,
		StatusCode: StatusCode(err),
		Code:       ErrorCode(err),
	}
}

// Wrap wrap error với message bổ sung
// Dùng %w để giữ nguyên wrapped error chain
func Wrap(err error, message string) error {
	return fmt.Errorf("%s: %w", message, err)
}

// ===========================================================================
// Error Mapping Functions
// Map từ error sang HTTP status code và error code
// ===========================================================================

// StatusCode trả về HTTP status code tương ứng với error
func StatusCode(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrChatNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrTenantNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrTenantSuspended):
		return http.StatusForbidden
	case errors.Is(err, ErrPayloadInvalid):
		return http.StatusBadRequest
	case errors.Is(err, ErrDuplicateEntry):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, ErrSessionUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrSendTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, ErrSendRejected):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// ErrorCode trả về error code string tương ứng với error
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrChatNotFound):
		return "CHAT_NOT_FOUND"
	case errors.Is(err, ErrTenantNotFound):
		return "TENANT_NOT_FOUND"
	case errors.Is(err, ErrUnauthorized):
		return "UNAUTHORIZED"
	case errors.Is(err, ErrInvalidToken):
		return "INVALID_TOKEN"
	case errors.Is(err, ErrForbidden):
		return "FORBIDDEN"
	case errors.Is(err, ErrTenantSuspended):
		return "TENANT_SUSPENDED"
	case errors.Is(err, ErrPayloadInvalid):
		return "PAYLOAD_INVALID"
	case errors.Is(err, ErrDuplicateEntry):
		return "DUPLICATE_ENTRY"
	case errors.Is(err, ErrInvalidState):
		return "INVALID_STATE"
	case errors.Is(err, ErrSessionUnavailable):
		return "SESSION_UNAVAILABLE"
	case errors.Is(err, ErrSendTimeout):
		return "SEND_TIMEOUT"
	case errors.Is(err, ErrSendRejected):
		return "SEND_REJECTED"
	default:
		return "INTERNAL_ERROR"
	}
}

// Is helper function cho errors.Is()
func Is(err, target error) bool {
	return errors.Is(err, target)
}
