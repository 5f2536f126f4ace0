// Package statedb publishes the daemon's VF and port state to redis so
// that other agents on the host can read it without talking to vfd.
//
// Every entry is a hash under "<TABLE>|<key>":
//
//	VFD_PORT|<pciid>          port summary
//	VFD_VF|<pciid>|<vfid>     one configured VF
package statedb

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-redis/redis/v8"

	"github.com/newtron-network/vfd/pkg/parms"
	"github.com/newtron-network/vfd/pkg/util"
)

// Table names.
const (
	PortTable = "VFD_PORT"
	VFTable   = "VFD_VF"
)

// connectTimeout bounds the retries of the first connection.
const connectTimeout = time.Minute

// TableChange is one entry to write. Nil Fields deletes the entry.
type TableChange struct {
	Table  string
	Key    string
	Fields map[string]string
}

// RedisKey is the hash key of the entry.
func (c TableChange) RedisKey() string {
	return fmt.Sprintf("%s|%s", c.Table, c.Key)
}

// Client writes state entries to one redis database.
type Client struct {
	client *redis.Client
	tunnel *Tunnel
}

// Dial connects to the redis server in cfg, through an SSH tunnel when
// one is configured. The first ping is retried with backoff.
func Dial(ctx context.Context, cfg parms.Redis) (*Client, error) {
	addr := cfg.Addr
	var tunnel *Tunnel
	if cfg.SSH.Host != "" {
		t, err := OpenTunnel(cfg.SSH, cfg.Addr)
		if err != nil {
			return nil, err
		}
		tunnel = t
		addr = t.LocalAddr()
	}
	c := &Client{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
		tunnel: tunnel,
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = connectTimeout
	err := backoff.RetryNotify(func() error {
		return c.client.Ping(ctx).Err()
	}, backoff.WithContext(b, ctx), func(err error, wait time.Duration) {
		util.WithComponent("statedb").Warnf("redis %s not reachable, retrying in %s: %v", cfg.Addr, wait.Round(time.Millisecond), err)
	})
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("connecting to redis %s: %w", cfg.Addr, err)
	}
	return c, nil
}

// Close closes the connection and the tunnel.
func (c *Client) Close() error {
	err := c.client.Close()
	if c.tunnel != nil {
		if terr := c.tunnel.Close(); err == nil {
			err = terr
		}
	}
	return err
}

// Apply writes changes in one MULTI/EXEC transaction. Written entries
// replace what was there.
func (c *Client) Apply(ctx context.Context, changes []TableChange) error {
	if len(changes) == 0 {
		return nil
	}
	pipe := c.client.TxPipeline()
	for _, change := range changes {
		key := change.RedisKey()
		pipe.Del(ctx, key)
		if change.Fields == nil {
			continue
		}
		args := make([]interface{}, 0, len(change.Fields)*2)
		for k, v := range change.Fields {
			args = append(args, k, v)
		}
		if len(args) == 0 {
			args = append(args, "NULL", "NULL")
		}
		pipe.HSet(ctx, key, args...)
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return fmt.Errorf("pipeline exec: %w", err)
	}
	return nil
}

// Keys lists the entries of table.
func (c *Client) Keys(ctx context.Context, table string) ([]string, error) {
	return c.client.Keys(ctx, table+"|*").Result()
}

// Get reads one entry. A missing entry is (nil, nil).
func (c *Client) Get(ctx context.Context, table, key string) (map[string]string, error) {
	vals, err := c.client.HGetAll(ctx, fmt.Sprintf("%s|%s", table, key)).Result()
	if err != nil {
		return nil, err
	}
	if len(vals) == 0 {
		return nil, nil
	}
	return vals, nil
}
