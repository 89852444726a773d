package scheduler

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ===========================================================================
// Send Lock
// Lock liên-instance theo session qua Redis SET NX EX
// Đảm bảo hai instance không cùng gửi qua một session tại một thời điểm
// (gateway xử lý tuần tự kém, gửi chen nhau dễ bị ban)
// ===========================================================================

// releaseScript xóa lock chỉ khi token còn là của mình
// Tránh release nhầm lock đã expire và bị instance khác chiếm
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`

// retryInterval khoảng chờ giữa các lần thử acquire
const retryInterval = 100 * time.Millisecond

// SendLock lock gửi tin theo session
type SendLock struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewSendLock tạo SendLock mới
// client nil = chạy single instance, mọi Acquire thành công ngay
func NewSendLock(client *redis.Client, ttl time.Duration, logger *zap.Logger) *SendLock {
	return &SendLock{client: client, ttl: ttl, logger: logger}
}

// Acquire giữ lock cho session, thử lại đến khi được hoặc ctx hết hạn
// Trả về hàm release; caller phải gọi release sau khi gửi xong
func (l *SendLock) Acquire(ctx context.Context, sessionID string) (func(), error) {
	if l.client == nil {
		return func() {}, nil
	}

	key := "sendlock:" + sessionID
	token := uuid.NewString()

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			// Redis lỗi thì không chặn gửi, TTL là safety net duy nhất
			l.logger.Warn("send lock acquire failed, proceeding without lock",
				zap.String("session_id", sessionID), zap.Error(err))
			return func() {}, nil
		}
		if ok {
			return func() { l.release(key, token) }, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryInterval):
		}
	}
}

// release trả lock nếu token vẫn là của mình
func (l *SendLock) release(key, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := l.client.Eval(ctx, releaseScript, []string{key}, token).Err(); err != nil {
		l.logger.Warn("send lock release failed", zap.String("key", key), zap.Error(err))
	}
}
