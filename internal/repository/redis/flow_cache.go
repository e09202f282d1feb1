package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"guest-access/internal/client"
	"guest-access/internal/models"
	"guest-access/internal/util"
)

const (
	pendingFlowPrefix = "pending_flow:"

	// FlowTTL bounds abandoned flows; nothing else cleans them up.
	FlowTTL = 30 * time.Minute
)

var ErrFlowNotFound = errors.New("no pending flow")

// FlowCache stores the single PendingFlow a browser session may hold.
// Writing a new flow replaces the previous one wholesale, which is what
// makes "only one flow in flight" true by construction.
type FlowCache struct {
	client *client.RedisClient
}

func NewFlowCache(client *client.RedisClient) *FlowCache {
	return &FlowCache{client: client}
}

func (c *FlowCache) SetFlow(ctx context.Context, flowID string, flow *models.PendingFlow) error {
	if err := flow.Validate(); err != nil {
		return err
	}

	data, err := json.Marshal(flow)
	if err != nil {
		return fmt.Errorf("failed to marshal pending flow: %w", err)
	}

	key := pendingFlowPrefix + flowID
	if err := c.client.Client.Set(ctx, key, data, FlowTTL).Err(); err != nil {
		util.Error("Failed to store pending flow",
			util.String("flow_id", flowID),
			util.String("kind", string(flow.Kind)),
			util.ErrorField(err))
		return fmt.Errorf("failed to store pending flow: %w", err)
	}

	return nil
}

func (c *FlowCache) GetFlow(ctx context.Context, flowID string) (*models.PendingFlow, error) {
	key := pendingFlowPrefix + flowID

	data, err := c.client.Client.Get(ctx, key).Bytes()
	if err != nil {
		if err == goredis.Nil {
			return nil, ErrFlowNotFound
		}
		return nil, fmt.Errorf("failed to get pending flow: %w", err)
	}

	flow := &models.PendingFlow{}
	if err := json.Unmarshal(data, flow); err != nil {
		return nil, fmt.Errorf("failed to unmarshal pending flow: %w", err)
	}
	if err := flow.Validate(); err != nil {
		return nil, err
	}

	return flow, nil
}

// GetFlowOfKind fetches the pending flow and rejects it when a different
// flow kind is in flight.
func (c *FlowCache) GetFlowOfKind(ctx context.Context, flowID string, kind models.FlowKind) (*models.PendingFlow, error) {
	flow, err := c.GetFlow(ctx, flowID)
	if err != nil {
		return nil, err
	}
	if flow.Kind != kind {
		return nil, models.ErrFlowKindMismatch
	}
	return flow, nil
}

func (c *FlowCache) ClearFlow(ctx context.Context, flowID string) error {
	key := pendingFlowPrefix + flowID
	if err := c.client.Client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to clear pending flow: %w", err)
	}
	return nil
}
