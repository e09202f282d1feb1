package redis

import (
	"context"
	"fmt"
	"time"

	"guest-access/internal/client"
	"guest-access/internal/util"
)

const (
	otpIssuedPrefix = "otp_issued:"

	// OtpTTL matches the validity window the provider gives its codes.
	OtpTTL = 10 * time.Minute
)

// AttemptCache tracks OTP issuance per flow so re-sends can be throttled
// and completions checked against an actual issuance. PIN attempts live
// inside the pending flow itself; magic-link attempts live on the token
// record. Everything here expires on its own.
type AttemptCache struct {
	client *client.RedisClient
}

func NewAttemptCache(client *client.RedisClient) *AttemptCache {
	return &AttemptCache{client: client}
}

// MarkOtpIssued records an issuance and returns how many have been issued
// for this flow inside the current window.
func (c *AttemptCache) MarkOtpIssued(ctx context.Context, flowID string) (int, error) {
	key := otpIssuedPrefix + flowID

	pipe := c.client.Client.Pipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, OtpTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		util.Error("Failed to record OTP issuance",
			util.String("flow_id", flowID),
			util.ErrorField(err))
		return 0, fmt.Errorf("failed to record otp issuance: %w", err)
	}

	return int(incr.Val()), nil
}

// OtpIssued reports whether an unexpired issuance exists for the flow.
func (c *AttemptCache) OtpIssued(ctx context.Context, flowID string) (bool, error) {
	key := otpIssuedPrefix + flowID
	n, err := c.client.Client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check otp issuance: %w", err)
	}
	return n > 0, nil
}

// ClearOtp drops issuance state once verification completes.
func (c *AttemptCache) ClearOtp(ctx context.Context, flowID string) error {
	key := otpIssuedPrefix + flowID
	if err := c.client.Client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to clear otp issuance: %w", err)
	}
	return nil
}
