package notification

import (
	"context"
	"fmt"
	"log"
	"time"

	"foratask-backend/internal/apperror"
	authdomain "foratask-backend/internal/auth/domain"
	"foratask-backend/internal/notification/domain"
	"foratask-backend/internal/notification/repository"
	"foratask-backend/pkg/clock"
	"foratask-backend/pkg/fcm"
)

const maxPushBatch = 100

// PresenceGateway resolves a user to a push-capable endpoint.
// Lookup returns nil, nil for users with no registered device.
type PresenceGateway interface {
	Lookup(ctx context.Context, userID string) (*authdomain.Endpoint, error)
}

// TokenPruner is implemented by gateways that can drop tokens the provider rejected.
type TokenPruner interface {
	ForgetToken(ctx context.Context, token string) error
}

// PushSender hands a batch of messages to the push provider.
type PushSender interface {
	SendBatch(ctx context.Context, msgs []fcm.Message) (*fcm.BatchResult, error)
}

type PushConfig struct {
	Sound     string
	Channel   string
	BatchSize int
}

// Request asks for one notification per distinct recipient.
type Request struct {
	Recipients   []string
	SenderID     string
	TaskID       string
	Type         domain.Type
	Message      string
	Options      []string
	ReminderTime *time.Time
}

// Service is the notification write path plus the per-user read path.
type Service struct {
	repo     repository.NotificationRepository
	presence PresenceGateway
	push     PushSender
	clock    clock.Clock
	ttl      time.Duration
	pushCfg  PushConfig
}

// NewService builds the service. push may be nil, in which case notifications
// are still marked delivered but nothing is sent.
func NewService(repo repository.NotificationRepository, presence PresenceGateway, push PushSender, clk clock.Clock, ttl time.Duration, pushCfg PushConfig) *Service {
	if pushCfg.BatchSize <= 0 || pushCfg.BatchSize > maxPushBatch {
		pushCfg.BatchSize = maxPushBatch
	}
	if ttl <= 0 {
		ttl = 48 * time.Hour
	}
	return &Service{
		repo:     repo,
		presence: presence,
		push:     push,
		clock:    clk,
		ttl:      ttl,
		pushCfg:  pushCfg,
	}
}

// Notify stores one notification per distinct recipient, in recipient order.
// Non-scheduled types are pushed right away on a best-effort basis.
func (s *Service) Notify(ctx context.Context, req Request) ([]*domain.Notification, error) {
	now := s.clock.Now()
	seen := make(map[string]struct{}, len(req.Recipients))

	var notifications []*domain.Notification
	for _, userID := range req.Recipients {
		if userID == "" {
			continue
		}
		if _, dup := seen[userID]; dup {
			continue
		}
		seen[userID] = struct{}{}

		n := &domain.Notification{
			UserID:       userID,
			SenderID:     req.SenderID,
			TaskID:       req.TaskID,
			Type:         req.Type,
			Message:      req.Message,
			ReminderTime: req.ReminderTime,
			CreatedAt:    now,
			ExpiresAt:    now.Add(s.ttl),
		}
		if len(req.Options) > 0 {
			n.Options = append([]string{}, req.Options...)
		}
		notifications = append(notifications, n)
	}

	if len(notifications) == 0 {
		return nil, nil
	}
	if err := s.repo.CreateMany(ctx, notifications); err != nil {
		return nil, fmt.Errorf("insert %s notifications: %w", req.Type, err)
	}

	if !req.Type.Pushable() {
		if _, err := s.Deliver(ctx, notifications); err != nil {
			log.Printf("[Notification] Immediate push for task %s failed: %v", req.TaskID, err)
		}
	}
	return notifications, nil
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Notification, error) {
	n, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if n == nil {
		return nil, apperror.NotFound("notification not found")
	}
	return n, nil
}

// ResolveDecision records the decision once; a second attempt is a conflict.
func (s *Service) ResolveDecision(ctx context.Context, id string, decision domain.Decision) error {
	ok, err := s.repo.ResolveDecision(ctx, id, decision, s.clock.Now())
	if err != nil {
		return err
	}
	if !ok {
		return apperror.Conflict("approval has already been decided")
	}
	return nil
}

func (s *Service) DiscardPendingApprovals(ctx context.Context, taskID string) error {
	n, err := s.repo.DeletePendingApprovals(ctx, taskID)
	if err != nil {
		return err
	}
	if n > 0 {
		log.Printf("[Notification] Discarded %d pending approvals for task %s", n, taskID)
	}
	return nil
}

// List returns the user's notifications newest first and marks them read.
func (s *Service) List(ctx context.Context, userID string, limit int) ([]*domain.Notification, error) {
	notifications, err := s.repo.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, err
	}
	if _, err := s.repo.MarkAllRead(ctx, userID); err != nil {
		return nil, err
	}
	if notifications == nil {
		notifications = []*domain.Notification{}
	}
	return notifications, nil
}

func (s *Service) UnreadCount(ctx context.Context, userID string) (int64, error) {
	return s.repo.CountUnread(ctx, userID)
}

func (s *Service) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	return s.repo.MarkAllRead(ctx, userID)
}

// DeliveryResult summarises one Deliver call.
type DeliveryResult struct {
	Notifications int
	NoEndpoint    int
	Sent          int
	Failed        int
	Batches       int
}

// Deliver pushes notifications to their recipients' devices in chunks and
// marks every one of them delivered, whatever the provider answered.
// Recipients without a device are marked delivered without a send.
func (s *Service) Deliver(ctx context.Context, notifications []*domain.Notification) (DeliveryResult, error) {
	result := DeliveryResult{Notifications: len(notifications)}
	if len(notifications) == 0 {
		return result, nil
	}

	endpoints := make(map[string]*authdomain.Endpoint)
	var messages []fcm.Message
	ids := make([]string, 0, len(notifications))

	for _, n := range notifications {
		ids = append(ids, n.ID)

		endpoint, cached := endpoints[n.UserID]
		if !cached {
			var err error
			endpoint, err = s.lookup(ctx, n.UserID)
			if err != nil {
				log.Printf("[Notification] Presence lookup for user %s failed: %v", n.UserID, err)
			}
			endpoints[n.UserID] = endpoint
		}

		if endpoint == nil || len(endpoint.Tokens) == 0 {
			result.NoEndpoint++
			continue
		}
		for _, token := range endpoint.Tokens {
			messages = append(messages, s.buildMessage(n, token))
		}
	}

	if s.push != nil {
		for start := 0; start < len(messages); start += s.pushCfg.BatchSize {
			end := start + s.pushCfg.BatchSize
			if end > len(messages) {
				end = len(messages)
			}
			result.Batches++
			s.sendChunk(ctx, messages[start:end], &result)
		}
	} else if len(messages) > 0 {
		log.Printf("[Notification] Push disabled, skipping %d messages", len(messages))
	}

	if err := s.repo.MarkDelivered(ctx, ids); err != nil {
		return result, fmt.Errorf("mark %d notifications delivered: %w", len(ids), err)
	}
	for _, n := range notifications {
		n.Delivered = true
	}
	return result, nil
}

func (s *Service) lookup(ctx context.Context, userID string) (*authdomain.Endpoint, error) {
	if s.presence == nil {
		return nil, nil
	}
	return s.presence.Lookup(ctx, userID)
}

func (s *Service) sendChunk(ctx context.Context, chunk []fcm.Message, result *DeliveryResult) {
	resp, err := s.push.SendBatch(ctx, chunk)
	if err != nil {
		result.Failed += len(chunk)
		log.Printf("[Notification] %v", apperror.ExternalDelivery("push batch failed", err))
		return
	}

	result.Sent += resp.SuccessCount
	result.Failed += resp.FailureCount

	pruner, canPrune := s.presence.(TokenPruner)
	for _, f := range resp.Failures {
		if f.Unregistered && canPrune {
			if err := pruner.ForgetToken(ctx, f.Token); err != nil {
				log.Printf("[Notification] Failed to drop unregistered token: %v", err)
			}
		}
	}
}

func (s *Service) buildMessage(n *domain.Notification, token string) fcm.Message {
	return fcm.Message{
		Token:     token,
		Title:     pushTitle(n.Type),
		Body:      n.Message,
		Sound:     s.pushCfg.Sound,
		ChannelID: s.pushCfg.Channel,
		Data: map[string]string{
			"taskId":         n.TaskID,
			"notificationId": n.ID,
			"type":           string(n.Type),
			"timestamp":      n.CreatedAt.UTC().Format(time.RFC3339),
		},
	}
}

func pushTitle(t domain.Type) string {
	switch t {
	case domain.TypeOverdue:
		return "Task Overdue"
	case domain.TypeReminder:
		return "Task Reminder"
	case domain.TypeTaskApproval:
		return "Approval Request"
	case domain.TypeTaskRejected:
		return "Task Rejected"
	default:
		return "Task Update"
	}
}
