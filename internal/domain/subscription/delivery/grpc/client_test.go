package grpc

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// queryClient drives SubscriptionQueryService over a real connection with the JSON codec
type queryClient struct {
	conn *grpc.ClientConn
}

func newQueryClient(addr string, opts ...grpc.DialOption) (*queryClient, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(CodecName)),
	}, opts...)

	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, err
	}
	return &queryClient{conn: conn}, nil
}

func (c *queryClient) CountSubscribers(ctx context.Context, kind string, targetID int64) (int64, error) {
	var resp CountSubscribersResponse
	if err := c.invoke(ctx, MethodCountSubscribers, &CountSubscribersRequest{Kind: kind, TargetID: targetID}, &resp); err != nil {
		return 0, err
	}
	return resp.Count, nil
}

func (c *queryClient) GetCurrentSubscription(ctx context.Context, kind string, userID int64) (*Subscription, error) {
	var resp Subscription
	if err := c.invoke(ctx, MethodGetCurrentSubscription, &GetCurrentSubscriptionRequest{Kind: kind, UserID: userID}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *queryClient) ListUserSubscriptions(ctx context.Context, kind string, userID int64) ([]*Subscription, error) {
	var resp ListUserSubscriptionsResponse
	if err := c.invoke(ctx, MethodListUserSubscriptions, &ListUserSubscriptionsRequest{Kind: kind, UserID: userID}, &resp); err != nil {
		return nil, err
	}
	return resp.Subscriptions, nil
}

func (c *queryClient) IsSubscribed(ctx context.Context, kind string, userID, targetID int64) (bool, error) {
	var resp IsSubscribedResponse
	req := &IsSubscribedRequest{Kind: kind, UserID: userID, TargetID: targetID}
	if err := c.invoke(ctx, MethodIsSubscribed, req, &resp); err != nil {
		return false, err
	}
	return resp.Subscribed, nil
}

func (c *queryClient) invoke(ctx context.Context, method string, req, resp any) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return c.conn.Invoke(ctx, method, req, resp)
}

func (c *queryClient) Close() error {
	return c.conn.Close()
}
