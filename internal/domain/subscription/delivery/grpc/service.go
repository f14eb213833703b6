package grpc

import (
	"context"
	"time"

	"google.golang.org/grpc"
)

const serviceName = "subscription.v1.SubscriptionQueryService"

// Full method names of SubscriptionQueryService
const (
	MethodCountSubscribers       = "/" + serviceName + "/CountSubscribers"
	MethodGetCurrentSubscription = "/" + serviceName + "/GetCurrentSubscription"
	MethodListUserSubscriptions  = "/" + serviceName + "/ListUserSubscriptions"
	MethodIsSubscribed           = "/" + serviceName + "/IsSubscribed"
)

type CountSubscribersRequest struct {
	Kind     string `json:"kind"`
	TargetID int64  `json:"target_id"`
}

type CountSubscribersResponse struct {
	Count int64 `json:"count"`
}

type GetCurrentSubscriptionRequest struct {
	Kind   string `json:"kind"`
	UserID int64  `json:"user_id"`
}

type ListUserSubscriptionsRequest struct {
	Kind   string `json:"kind"`
	UserID int64  `json:"user_id"`
}

type ListUserSubscriptionsResponse struct {
	Subscriptions []*Subscription `json:"subscriptions"`
}

type IsSubscribedRequest struct {
	Kind     string `json:"kind"`
	UserID   int64  `json:"user_id"`
	TargetID int64  `json:"target_id"`
}

type IsSubscribedResponse struct {
	Subscribed bool `json:"subscribed"`
}

// Subscription is the wire view of an active subscription
type Subscription struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	UserID    int64     `json:"user_id"`
	TargetID  int64     `json:"target_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// QueryServer is the server API of SubscriptionQueryService
type QueryServer interface {
	CountSubscribers(context.Context, *CountSubscribersRequest) (*CountSubscribersResponse, error)
	GetCurrentSubscription(context.Context, *GetCurrentSubscriptionRequest) (*Subscription, error)
	ListUserSubscriptions(context.Context, *ListUserSubscriptionsRequest) (*ListUserSubscriptionsResponse, error)
	IsSubscribed(context.Context, *IsSubscribedRequest) (*IsSubscribedResponse, error)
}

// RegisterQueryServer registers srv on s
func RegisterQueryServer(s grpc.ServiceRegistrar, srv QueryServer) {
	s.RegisterService(&ServiceDesc, srv)
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*QueryServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "CountSubscribers",
			Handler:    unaryHandler(MethodCountSubscribers, QueryServer.CountSubscribers),
		},
		{
			MethodName: "GetCurrentSubscription",
			Handler:    unaryHandler(MethodGetCurrentSubscription, QueryServer.GetCurrentSubscription),
		},
		{
			MethodName: "ListUserSubscriptions",
			Handler:    unaryHandler(MethodListUserSubscriptions, QueryServer.ListUserSubscriptions),
		},
		{
			MethodName: "IsSubscribed",
			Handler:    unaryHandler(MethodIsSubscribed, QueryServer.IsSubscribed),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "subscription/v1/query.proto",
}

func unaryHandler[Req, Resp any](
	fullMethod string,
	call func(QueryServer, context.Context, *Req) (*Resp, error),
) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(QueryServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(QueryServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}
