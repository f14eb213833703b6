package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"

	"github.com/fanplatform/subscription-service/internal/domain/subscription/deps"
	"github.com/fanplatform/subscription-service/internal/domain/subscription/dto"
	"github.com/fanplatform/subscription-service/internal/domain/subscription/entities"
	suberrors "github.com/fanplatform/subscription-service/internal/domain/subscription/errors"
	"github.com/fanplatform/subscription-service/internal/infrastructure/metrics"
	pkgerrors "github.com/fanplatform/subscription-service/pkg/errors"
)

const maxRetries = 3

var errMalformedCommand = errors.New("malformed command")

// CommandHandler consumes subscribe/unsubscribe commands and replies with their outcome
type CommandHandler struct {
	useCase   deps.SubscriptionUseCase
	directory deps.TargetDirectory
	publisher deps.ResultPublisher
	metrics   *metrics.Metrics
	logger    zerolog.Logger
	backoff   time.Duration
	processed atomic.Uint64
	failed    atomic.Uint64
}

func NewCommandHandler(
	useCase deps.SubscriptionUseCase,
	directory deps.TargetDirectory,
	publisher deps.ResultPublisher,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *CommandHandler {
	return &CommandHandler{
		useCase:   useCase,
		directory: directory,
		publisher: publisher,
		metrics:   m,
		logger:    logger.With().Str("handler", "subscription_commands").Logger(),
		backoff:   200 * time.Millisecond,
	}
}

var _ sarama.ConsumerGroupHandler = (*CommandHandler)(nil)

// Setup is called at the beginning of a new session
func (h *CommandHandler) Setup(session sarama.ConsumerGroupSession) error {
	h.logger.Info().
		Str("member_id", session.MemberID()).
		Msg("consumer group session setup completed")
	return nil
}

// Cleanup is called at the end of a session
func (h *CommandHandler) Cleanup(session sarama.ConsumerGroupSession) error {
	h.logger.Info().
		Str("member_id", session.MemberID()).
		Uint64("processed_total", h.processed.Load()).
		Uint64("failed_total", h.failed.Load()).
		Msg("consumer group session cleanup completed")
	return nil
}

// ConsumeClaim processes commands of one partition in order
func (h *CommandHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}

			if err := h.HandleMessage(session.Context(), msg.Value); err != nil {
				h.failed.Add(1)
				h.logger.Error().
					Err(err).
					Str("topic", msg.Topic).
					Int32("partition", msg.Partition).
					Int64("offset", msg.Offset).
					Msg("all retry attempts failed, skipping message")
			}

			h.processed.Add(1)
			session.MarkMessage(msg, "")

		case <-session.Context().Done():
			return nil
		}
	}
}

// HandleMessage executes one command and publishes its reply. The use case runs once; only
// storage failures re-run it because they roll the transaction back. A failed publish is retried
// with the same reply. Domain rejections are replies, not errors.
func (h *CommandHandler) HandleMessage(ctx context.Context, value []byte) error {
	var cmd dto.Command
	if err := json.Unmarshal(value, &cmd); err != nil {
		h.metrics.RecordKafkaCommand("unknown", "malformed")
		h.logger.Error().Err(err).Msg("failed to unmarshal command")
		return errMalformedCommand
	}

	var result *dto.CommandResult
	err := h.retry(ctx, "execute", func() error {
		var err error
		result, err = h.execute(ctx, &cmd)
		return err
	})
	if err != nil {
		return err
	}

	err = h.retry(ctx, "publish", func() error {
		return h.publisher.PublishResult(ctx, result)
	})
	if err != nil {
		return err
	}

	h.metrics.RecordKafkaCommand(cmd.Type, result.Type)
	return nil
}

func (h *CommandHandler) retry(ctx context.Context, step string, fn func() error) error {
	var lastErr error

	for attempt := 1; attempt <= maxRetries; attempt++ {
		lastErr = fn()
		if lastErr == nil || errors.Is(lastErr, errMalformedCommand) {
			return lastErr
		}

		h.logger.Warn().
			Err(lastErr).
			Str("step", step).
			Int("attempt", attempt).
			Int("max_attempts", maxRetries).
			Msg("command step failed, retrying")

		if attempt == maxRetries {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(h.backoff * time.Duration(attempt)):
		}
	}

	return lastErr
}

// execute runs the command and builds its reply. A returned error is retryable.
func (h *CommandHandler) execute(ctx context.Context, cmd *dto.Command) (*dto.CommandResult, error) {
	switch cmd.Type {
	case dto.CommandSubscribe:
		return h.subscribe(ctx, cmd)
	case dto.CommandUnsubscribe:
		return h.unsubscribe(ctx, cmd)
	default:
		h.metrics.RecordKafkaCommand(cmd.Type, "malformed")
		h.logger.Warn().
			Str("type", cmd.Type).
			Str("request_id", cmd.RequestID).
			Msg("received unknown command type")
		return nil, errMalformedCommand
	}
}

func (h *CommandHandler) subscribe(ctx context.Context, cmd *dto.Command) (*dto.CommandResult, error) {
	kind, err := entities.ParseKind(cmd.Kind)
	if err != nil {
		return h.reject(cmd, dto.EventTypeSubscriptionRejected, err)
	}

	exists, err := h.directory.Exists(ctx, kind, cmd.TargetID)
	if err != nil {
		return nil, err
	}
	if !exists {
		h.metrics.RecordSubscribe(string(kind), metrics.OutcomeTargetNotFound)
		return h.reject(cmd, dto.EventTypeSubscriptionRejected, suberrors.ErrTargetNotFound)
	}

	sub, created, err := h.useCase.Subscribe(ctx, kind, cmd.UserID, cmd.TargetID)
	if err != nil {
		return h.reject(cmd, dto.EventTypeSubscriptionRejected, err)
	}

	result := dto.NewCommandResult(dto.EventTypeSubscriptionConfirmed, cmd)
	result.SubscriptionID = sub.ID.String()
	result.Created = created
	return result, nil
}

func (h *CommandHandler) unsubscribe(ctx context.Context, cmd *dto.Command) (*dto.CommandResult, error) {
	kind, err := entities.ParseKind(cmd.Kind)
	if err != nil {
		return h.reject(cmd, dto.EventTypeUnsubscriptionRejected, err)
	}

	if err := h.useCase.Unsubscribe(ctx, kind, cmd.UserID, cmd.TargetID); err != nil {
		return h.reject(cmd, dto.EventTypeUnsubscriptionRejected, err)
	}

	return dto.NewCommandResult(dto.EventTypeUnsubscriptionConfirmed, cmd), nil
}

// reject builds the rejection reply. Storage failures are returned for retry instead.
func (h *CommandHandler) reject(cmd *dto.Command, eventType string, cause error) (*dto.CommandResult, error) {
	if errors.Is(cause, suberrors.ErrStorage) {
		return nil, cause
	}

	result := dto.NewCommandResult(eventType, cmd)
	result.Reason = reasonFor(cause)
	if remaining, ok := suberrors.RemainingCooldown(cause); ok {
		result.RetryAfterSeconds = pkgerrors.RetryAfterSeconds(remaining)
	}

	h.logger.Info().
		Str("type", cmd.Type).
		Str("request_id", cmd.RequestID).
		Int64("user_id", cmd.UserID).
		Int64("target_id", cmd.TargetID).
		Str("reason", result.Reason).
		Msg("command rejected")

	return result, nil
}

func reasonFor(err error) string {
	switch {
	case errors.Is(err, suberrors.ErrTargetNotFound):
		return dto.ReasonTargetNotFound
	case errors.Is(err, suberrors.ErrSubscriptionNotFound):
		return dto.ReasonSubscriptionNotFound
	case errors.Is(err, suberrors.ErrResubscribeTooSoon):
		return dto.ReasonResubscribeTooSoon
	case errors.Is(err, suberrors.ErrActiveTargetExists):
		return dto.ReasonActiveTargetExists
	case errors.Is(err, suberrors.ErrUnknownKind),
		errors.Is(err, suberrors.ErrInvalidUserID),
		errors.Is(err, suberrors.ErrInvalidTargetID):
		return dto.ReasonInvalidCommand
	default:
		return dto.ReasonInternal
	}
}
