package client

import (
	"context"
	"fmt"
	"time"

	ch "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"guest-access/internal/config"
	"guest-access/internal/models"
	"guest-access/internal/util"
)

// ClickHouseClient is the audit sink for security events.
type ClickHouseClient struct {
	conn   driver.Conn
	config *config.ClickhouseConfig
}

func NewClickHouseClient(cfg *config.Config) (*ClickHouseClient, error) {
	chConfig := cfg.Clickhouse

	opts := &ch.Options{
		Addr: []string{chConfig.URL},
		Auth: ch.Auth{
			Username: chConfig.Username,
			Password: chConfig.Password,
			Database: chConfig.Database,
		},
		DialTimeout:      10 * time.Second,
		MaxOpenConns:     20,
		MaxIdleConns:     5,
		ConnMaxLifetime:  time.Hour,
		ConnOpenStrategy: ch.ConnOpenInOrder,
	}

	conn, err := ch.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open ClickHouse connection: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	util.Info("ClickHouse client initialized",
		util.String("url", chConfig.URL),
		util.String("database", chConfig.Database),
	)

	return &ClickHouseClient{
		conn:   conn,
		config: &chConfig,
	}, nil
}

// InsertSecurityEvent writes one audit row.
func (c *ClickHouseClient) InsertSecurityEvent(ctx context.Context, event *models.SecurityEvent) error {
	query := `INSERT INTO security_events
		(event_time, event_type, token_hash, user_id, fingerprint, ip_address, risk_score, details)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	if err := c.conn.Exec(ctx, query,
		event.EventTime,
		event.EventType,
		event.TokenHash,
		event.UserID,
		event.Fingerprint,
		event.IPAddress.String(),
		event.RiskScore,
		event.Details,
	); err != nil {
		return fmt.Errorf("failed to insert security event: %w", err)
	}

	return nil
}

func (c *ClickHouseClient) HealthCheck(ctx context.Context) error {
	if err := c.conn.Ping(ctx); err != nil {
		return fmt.Errorf("clickhouse ping failed: %w", err)
	}
	return nil
}

func (c *ClickHouseClient) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
