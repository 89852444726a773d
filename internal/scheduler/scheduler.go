package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"supportdesk-gin/internal/channel"
	"supportdesk-gin/internal/config"
	apperrors "supportdesk-gin/internal/errors"
	"supportdesk-gin/internal/models"
	"supportdesk-gin/internal/services"
	"supportdesk-gin/internal/session"

	"go.uber.org/zap"
)

// ===========================================================================
// Outbound Scheduler
// Tuần tự hóa tin nhắn gửi đi theo session: mỗi session một worker + một
// FIFO queue, tin cùng session không bao giờ gửi chen nhau
// Flow một job: lock -> presence composing -> typing delay -> send ->
// presence paused -> append vào timeline
// ===========================================================================

// presence states gửi cho channel
const (
	presenceComposing = "composing"
	presencePaused    = "paused"
)

// SendRequest yêu cầu gửi một tin nhắn outbound
type SendRequest struct {
	// Tenant tenant gửi tin, quyết định route (gateway session / cloud phone)
	Tenant *models.Tenant

	// Chat chat nhận tin, timeline sẽ được append sau khi gửi thành công
	Chat *models.Chat

	// RemoteAddress địa chỉ người nhận trên channel
	RemoteAddress string

	// SenderType agent hoặc automation
	SenderType models.SenderType

	// Body nội dung text (bỏ trống nếu gửi ảnh)
	Body string

	// ImageURL URL ảnh nếu gửi tin nhắn ảnh
	ImageURL string

	// Caption chú thích kèm ảnh
	Caption string
}

// route kết quả routing một request về channel cụ thể
type route struct {
	channelType  string
	sessionID    string
	queueKey     string
	needsSession bool
	credentials  map[string]string
}

// job một đơn vị công việc trong queue
type job struct {
	ctx   context.Context
	req   *SendRequest
	route *route

	// reply buffered size 1: worker không bao giờ block khi caller đã bỏ đi
	reply chan jobResult
}

// jobResult kết quả xử lý một job
type jobResult struct {
	msg *models.Message
	err error
}

// Scheduler tuần tự hóa outbound sends theo session
type Scheduler struct {
	cfg      config.SchedulerConfig
	cloud    config.CloudConfig
	sessions *session.Registry
	channels *channel.Registry
	store    services.MessageStore
	lock     *SendLock
	logger   *zap.Logger

	mu     sync.Mutex
	queues map[string]chan *job
	closed bool
	wg     sync.WaitGroup
}

// NewScheduler tạo Scheduler mới
func NewScheduler(
	cfg config.SchedulerConfig,
	cloud config.CloudConfig,
	sessions *session.Registry,
	channels *channel.Registry,
	store services.MessageStore,
	lock *SendLock,
	logger *zap.Logger,
) *Scheduler {
	return &Scheduler{
		cfg:      cfg,
		cloud:    cloud,
		sessions: sessions,
		channels: channels,
		store:    store,
		lock:     lock,
		logger:   logger,
		queues:   make(map[string]chan *job),
	}
}

// Send gửi tin nhắn đồng bộ: enqueue, chờ worker xử lý xong
// Session chưa connected trả về ErrSessionUnavailable ngay khi enqueue;
// queue đầy trả về ErrSendRejected; channel không trả lời trong
// SendTimeout trả về ErrSendTimeout
func (s *Scheduler) Send(ctx context.Context, req *SendRequest) (*models.Message, error) {
	if req.Tenant == nil || req.Chat == nil || req.RemoteAddress == "" {
		return nil, apperrors.ErrPayloadInvalid
	}
	if req.Chat.IsClosed() {
		return nil, apperrors.Wrap(apperrors.ErrInvalidState, "cannot send to closed chat")
	}

	rt, err := s.resolveRoute(req.Tenant)
	if err != nil {
		return nil, err
	}

	// Từ chối sớm thay vì xếp hàng chờ một session chết
	if rt.needsSession && !s.sessions.IsConnected(rt.sessionID) {
		return nil, apperrors.Wrap(apperrors.ErrSessionUnavailable, "session "+rt.sessionID)
	}

	j := &job{
		ctx:   ctx,
		req:   req,
		route: rt,
		reply: make(chan jobResult, 1),
	}

	if err := s.enqueue(rt.queueKey, j); err != nil {
		return nil, err
	}

	select {
	case res := <-j.reply:
		return res.msg, res.err
	case <-ctx.Done():
		// Deadline của caller hết hạn khi job còn trong queue hoặc đang
		// chạy vẫn là một send timeout về mặt nghiệp vụ
		return nil, s.mapSendErr(ctx.Err())
	}
}

// Stop đóng tất cả queues và chờ workers xử lý nốt
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for _, queue := range s.queues {
		close(queue)
	}
	s.mu.Unlock()

	s.wg.Wait()
}

// ===========================================================================
// Routing
// ===========================================================================

// resolveRoute quyết định channel + session cho tenant
// Ưu tiên gateway session; tenant chỉ có cloud phone thì đi đường cloud
// (cloud API stateless, không cần session)
func (s *Scheduler) resolveRoute(tenant *models.Tenant) (*route, error) {
	if tenant.SessionID != nil && *tenant.SessionID != "" {
		return &route{
			channelType:  channel.TypeGateway,
			sessionID:    *tenant.SessionID,
			queueKey:     *tenant.SessionID,
			needsSession: true,
		}, nil
	}

	if tenant.CloudPhoneID != nil && *tenant.CloudPhoneID != "" {
		return &route{
			channelType: channel.TypeCloud,
			sessionID:   *tenant.CloudPhoneID,
			queueKey:    "cloud:" + *tenant.CloudPhoneID,
			credentials: map[string]string{
				"phone_number_id": *tenant.CloudPhoneID,
				"access_token":    s.cloud.AccessToken,
			},
		}, nil
	}

	return nil, apperrors.Wrap(apperrors.ErrSessionUnavailable, "tenant has no channel configured")
}

// enqueue đưa job vào queue của một queue key, tạo queue + worker nếu chưa có
// Việc gửi vào channel nằm trong cùng critical section với ReleaseQueue/Stop
// nên không bao giờ gửi vào một queue đã đóng
func (s *Scheduler) enqueue(key string, j *job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return apperrors.Wrap(apperrors.ErrSendRejected, "scheduler stopped")
	}

	queue, ok := s.queues[key]
	if !ok {
		queue = make(chan *job, s.cfg.QueueSize)
		s.queues[key] = queue
		s.wg.Add(1)
		go s.worker(key, queue)
	}

	select {
	case queue <- j:
		return nil
	default:
		return apperrors.Wrap(apperrors.ErrSendRejected, "send queue full for "+key)
	}
}

// ReleaseQueue đóng queue và worker của một session đã bị gỡ khỏi registry
// Jobs còn trong queue vẫn được worker xử lý nốt trước khi thoát
func (s *Scheduler) ReleaseQueue(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if queue, ok := s.queues[sessionID]; ok {
		delete(s.queues, sessionID)
		close(queue)
		s.logger.Debug("send queue released", zap.String("queue", sessionID))
	}
}

// ===========================================================================
// Worker
// ===========================================================================

// worker xử lý tuần tự các jobs của một queue
func (s *Scheduler) worker(key string, queue chan *job) {
	defer s.wg.Done()

	s.logger.Debug("send worker started", zap.String("queue", key))
	for j := range queue {
		res := s.process(j)

		// Caller có thể đã bỏ đi (timeout), reply buffered nên không block
		j.reply <- res

		if res.err != nil {
			s.logger.Warn("send job failed",
				zap.String("queue", key), zap.Error(res.err))
		}
	}
	s.logger.Debug("send worker stopped", zap.String("queue", key))
}

// process xử lý một job gửi tin
func (s *Scheduler) process(j *job) jobResult {
	if err := j.ctx.Err(); err != nil {
		return jobResult{err: s.mapSendErr(err)}
	}

	ctx, cancel := context.WithTimeout(j.ctx, s.cfg.SendTimeout)
	defer cancel()

	adapter, err := s.channels.Get(j.route.channelType)
	if err != nil {
		return jobResult{err: apperrors.Wrap(apperrors.ErrSendRejected, err.Error())}
	}

	// 1. Lock liên-instance theo session
	release, err := s.lock.Acquire(ctx, j.route.sessionID)
	if err != nil {
		return jobResult{err: s.mapSendErr(err)}
	}
	defer release()

	// 2. Session có thể đã rớt trong lúc job nằm trong queue
	if j.route.needsSession && !s.sessions.IsConnected(j.route.sessionID) {
		return jobResult{err: apperrors.Wrap(apperrors.ErrSessionUnavailable, "session "+j.route.sessionID)}
	}

	// 3. Presence composing + typing delay để hành vi giống người thật
	if err := adapter.SendPresence(ctx, j.route.sessionID, j.req.RemoteAddress, presenceComposing); err != nil {
		s.logger.Debug("presence update failed", zap.Error(err))
	}
	select {
	case <-time.After(s.cfg.TypingDelay):
	case <-ctx.Done():
		return jobResult{err: s.mapSendErr(ctx.Err())}
	}

	// 4. Gửi qua channel
	outbound := &channel.OutboundMessage{
		SessionID:     j.route.sessionID,
		RemoteAddress: j.req.RemoteAddress,
		Body:          j.req.Body,
		ImageURL:      j.req.ImageURL,
		Caption:       j.req.Caption,
	}
	result, err := adapter.Send(ctx, outbound, j.route.credentials)
	if err != nil {
		return jobResult{err: s.mapSendErr(err)}
	}
	if !result.Success {
		// result.Error vẫn đi qua mapSendErr phòng adapter nhét lỗi
		// deadline vào result thay vì error return
		if result.Error != nil {
			return jobResult{err: s.mapSendErr(result.Error)}
		}
		return jobResult{err: apperrors.Wrap(apperrors.ErrSendRejected, "channel rejected message")}
	}

	if err := adapter.SendPresence(ctx, j.route.sessionID, j.req.RemoteAddress, presencePaused); err != nil {
		s.logger.Debug("presence update failed", zap.Error(err))
	}

	// 5. Append vào timeline với delivery ID từ channel
	msg, err := s.appendSent(j, result)
	if err != nil {
		// Tin đã đến tay khách nhưng ghi timeline thất bại: lỗi nghiêm trọng
		// nhất của pipeline, log đủ chi tiết để đối soát tay
		s.logger.Error("sent message not recorded",
			zap.String("chat_id", j.req.Chat.ID.String()),
			zap.String("channel_message_id", result.ChannelMessageID),
			zap.Error(err),
		)
		return jobResult{err: err}
	}

	return jobResult{msg: msg}
}

// appendSent ghi tin đã gửi vào timeline
func (s *Scheduler) appendSent(j *job, result *channel.SendResult) (*models.Message, error) {
	contentType := models.ContentText
	body := j.req.Body
	var mediaURL *string
	metadata := models.MessageMetadata{}

	if j.req.ImageURL != "" {
		contentType = models.ContentImage
		u := j.req.ImageURL
		mediaURL = &u
		body = j.req.Caption
		metadata.Caption = j.req.Caption
	}

	now := time.Now()
	metadata.DeliveredAt = &now

	var channelMessageID *string
	if result.ChannelMessageID != "" {
		id := result.ChannelMessageID
		channelMessageID = &id
	}

	// Append với background context: job ctx có thể đã hết hạn nhưng tin
	// đã gửi đi rồi, timeline bắt buộc phải ghi
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	msg, _, err := s.store.Append(ctx, &services.AppendParams{
		TenantID:         j.req.Tenant.ID,
		Chat:             j.req.Chat,
		Direction:        models.DirectionOut,
		SenderType:       j.req.SenderType,
		Body:             body,
		ContentType:      contentType,
		MediaURL:         mediaURL,
		ChannelMessageID: channelMessageID,
		Metadata:         metadata,
		Timestamp:        now,
	})
	return msg, err
}

// mapSendErr map lỗi context về lỗi nghiệp vụ
func (s *Scheduler) mapSendErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.Wrap(apperrors.ErrSendTimeout, "channel did not respond")
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return apperrors.Wrap(apperrors.ErrSendRejected, err.Error())
}
