package grpc

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/fanplatform/subscription-service/internal/domain/subscription/deps"
	"github.com/fanplatform/subscription-service/internal/domain/subscription/entities"
	suberrors "github.com/fanplatform/subscription-service/internal/domain/subscription/errors"
)

// Server implements SubscriptionQueryService on top of the use case
type Server struct {
	useCase deps.SubscriptionUseCase
	logger  zerolog.Logger
}

// NewServer creates a new gRPC server instance
func NewServer(useCase deps.SubscriptionUseCase, logger zerolog.Logger) *Server {
	return &Server{
		useCase: useCase,
		logger:  logger,
	}
}

var _ QueryServer = (*Server)(nil)

// CountSubscribers returns the number of active subscribers of a target
func (s *Server) CountSubscribers(ctx context.Context, req *CountSubscribersRequest) (*CountSubscribersResponse, error) {
	s.logger.Debug().
		Str("kind", req.Kind).
		Int64("target_id", req.TargetID).
		Msg("gRPC CountSubscribers called")

	kind, err := entities.ParseKind(req.Kind)
	if err != nil {
		return nil, s.toStatus(err)
	}

	count, err := s.useCase.Count(ctx, kind, req.TargetID)
	if err != nil {
		return nil, s.toStatus(err)
	}

	return &CountSubscribersResponse{Count: count}, nil
}

// GetCurrentSubscription returns the most recent active subscription of a user
func (s *Server) GetCurrentSubscription(ctx context.Context, req *GetCurrentSubscriptionRequest) (*Subscription, error) {
	kind, err := entities.ParseKind(req.Kind)
	if err != nil {
		return nil, s.toStatus(err)
	}

	sub, err := s.useCase.GetCurrent(ctx, kind, req.UserID)
	if err != nil {
		return nil, s.toStatus(err)
	}

	return toMessage(sub), nil
}

// ListUserSubscriptions returns all active subscriptions of a user
func (s *Server) ListUserSubscriptions(ctx context.Context, req *ListUserSubscriptionsRequest) (*ListUserSubscriptionsResponse, error) {
	kind, err := entities.ParseKind(req.Kind)
	if err != nil {
		return nil, s.toStatus(err)
	}

	subs, err := s.useCase.ListUserSubscriptions(ctx, kind, req.UserID)
	if err != nil {
		return nil, s.toStatus(err)
	}

	result := make([]*Subscription, len(subs))
	for i := range subs {
		result[i] = toMessage(&subs[i])
	}

	s.logger.Debug().
		Int64("user_id", req.UserID).
		Int("count", len(result)).
		Msg("Returning user subscriptions")

	return &ListUserSubscriptionsResponse{Subscriptions: result}, nil
}

func (s *Server) IsSubscribed(ctx context.Context, req *IsSubscribedRequest) (*IsSubscribedResponse, error) {
	kind, err := entities.ParseKind(req.Kind)
	if err != nil {
		return nil, s.toStatus(err)
	}

	ok, err := s.useCase.IsSubscribed(ctx, kind, req.UserID, req.TargetID)
	if err != nil {
		return nil, s.toStatus(err)
	}

	return &IsSubscribedResponse{Subscribed: ok}, nil
}

func (s *Server) toStatus(err error) error {
	switch {
	case errors.Is(err, suberrors.ErrSubscriptionNotFound),
		errors.Is(err, suberrors.ErrTargetNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, suberrors.ErrUnknownKind),
		errors.Is(err, suberrors.ErrInvalidUserID),
		errors.Is(err, suberrors.ErrInvalidTargetID):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		s.logger.Error().Err(err).Msg("gRPC query failed")
		return status.Error(codes.Internal, "internal error")
	}
}

func toMessage(sub *entities.Subscription) *Subscription {
	return &Subscription{
		ID:        sub.ID.String(),
		Kind:      string(sub.Kind),
		UserID:    sub.UserID,
		TargetID:  sub.TargetID,
		CreatedAt: sub.CreatedAt,
		UpdatedAt: sub.UpdatedAt,
	}
}
