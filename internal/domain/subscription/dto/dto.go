package dto

import (
	"time"

	"github.com/google/uuid"

	"github.com/fanplatform/subscription-service/internal/domain/subscription/entities"
)

// Command types accepted on the command topic
const (
	CommandSubscribe   = "subscribe"
	CommandUnsubscribe = "unsubscribe"
)

// Result types sent on the result topic
const (
	EventTypeSubscriptionConfirmed   = "subscription_confirmed"
	EventTypeSubscriptionRejected    = "subscription_rejected"
	EventTypeUnsubscriptionConfirmed = "unsubscription_confirmed"
	EventTypeUnsubscriptionRejected  = "unsubscription_rejected"
)

// Rejection reasons
const (
	ReasonTargetNotFound       = "target_not_found"
	ReasonSubscriptionNotFound = "subscription_not_found"
	ReasonResubscribeTooSoon   = "resubscribe_too_soon"
	ReasonActiveTargetExists   = "active_target_exists"
	ReasonInvalidCommand       = "invalid_command"
	ReasonInternal             = "internal_error"
)

// Command is a subscribe/unsubscribe request received from Kafka
type Command struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id,omitempty"`
	Kind      string `json:"kind"`
	UserID    int64  `json:"user_id"`
	TargetID  int64  `json:"target_id"`
}

// CommandResult is the reply to a Command
type CommandResult struct {
	Type              string `json:"type"`
	RequestID         string `json:"request_id,omitempty"`
	Kind              string `json:"kind"`
	UserID            int64  `json:"user_id"`
	TargetID          int64  `json:"target_id"`
	SubscriptionID    string `json:"subscription_id,omitempty"`
	Created           bool   `json:"created,omitempty"`
	Reason            string `json:"reason,omitempty"`
	RetryAfterSeconds int64  `json:"retry_after_seconds,omitempty"`
	Timestamp         int64  `json:"timestamp"`
}

// NewCommandResult creates a CommandResult for cmd with current timestamp
func NewCommandResult(eventType string, cmd *Command) *CommandResult {
	return &CommandResult{
		Type:      eventType,
		RequestID: cmd.RequestID,
		Kind:      cmd.Kind,
		UserID:    cmd.UserID,
		TargetID:  cmd.TargetID,
		Timestamp: time.Now().Unix(),
	}
}

// SubscriptionResponse is the API view of a subscription
type SubscriptionResponse struct {
	ID                     uuid.UUID  `json:"id"`
	Kind                   string     `json:"kind"`
	UserID                 int64      `json:"user_id"`
	TargetID               int64      `json:"target_id"`
	State                  string     `json:"state"`
	DeletedAt              *time.Time `json:"deleted_at"`
	CreatedAt              time.Time  `json:"created_at"`
	ResubscribeAvailableAt *time.Time `json:"resubscribe_available_at,omitempty"`
}

// NewSubscriptionResponse maps an entity to its API view
func NewSubscriptionResponse(sub *entities.Subscription, cooldown time.Duration) SubscriptionResponse {
	return SubscriptionResponse{
		ID:                     sub.ID,
		Kind:                   string(sub.Kind),
		UserID:                 sub.UserID,
		TargetID:               sub.TargetID,
		State:                  string(sub.State),
		DeletedAt:              sub.DeletedAt,
		CreatedAt:              sub.CreatedAt,
		ResubscribeAvailableAt: sub.ResubscribeAvailableAt(cooldown),
	}
}

// CountResponse is the subscriber count of a target
type CountResponse struct {
	Kind     string `json:"kind"`
	TargetID int64  `json:"target_id"`
	Count    int64  `json:"count"`
}
