// Package statsd emits counters and timings to a StatsD-compatible
// daemon over UDP.
package statsd

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// dialTimeout bounds the initial UDP dial.
const dialTimeout = 5 * time.Second

// Sink is the emission surface the rest of the application depends on.
type Sink interface {
	Count(name string, value int64, tags map[string]string)
	Timing(name string, value time.Duration, tags map[string]string)
}

// Options configures a Client.
type Options struct {
	Enabled bool
	Address string
	// Prefix is prepended to every metric name, dot-separated.
	Prefix string
	// Tags are merged into every emission; per-call tags win on collision.
	Tags   map[string]string
	Logger *slog.Logger
}

// Client writes StatsD protocol lines over a shared UDP connection.
// It is safe for concurrent use, and a nil or disabled Client drops
// emissions silently.
type Client struct {
	enabled bool
	prefix  string
	tags    map[string]string
	logger  *slog.Logger

	mu   sync.Mutex
	conn net.Conn
}

var _ Sink = (*Client)(nil)

// NewClient dials the StatsD endpoint. A disabled or address-less
// configuration yields an inert client rather than an error.
func NewClient(opts Options) (*Client, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	address := strings.TrimSpace(opts.Address)
	client := &Client{
		enabled: opts.Enabled && address != "",
		prefix:  strings.Trim(strings.TrimSpace(opts.Prefix), "."),
		tags:    copyTags(opts.Tags),
		logger:  logger,
	}
	if !client.enabled {
		return client, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()

	conn, err := (&net.Dialer{}).DialContext(ctx, "udp", address)
	if err != nil {
		return nil, fmt.Errorf("statsd dial %s: %w", address, err)
	}
	client.conn = conn
	return client, nil
}

// Enabled reports whether emissions reach a live connection.
func (c *Client) Enabled() bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled && c.conn != nil
}

// Count increments a counter.
func (c *Client) Count(name string, value int64, tags map[string]string) {
	if c == nil {
		return
	}
	c.emit(name, strconv.FormatInt(value, 10)+"|c", tags)
}

// Timing records a duration in milliseconds.
func (c *Client) Timing(name string, value time.Duration, tags map[string]string) {
	if c == nil {
		return
	}
	ms := float64(value) / float64(time.Millisecond)
	c.emit(name, strconv.FormatFloat(ms, 'f', -1, 64)+"|ms", tags)
}

// Close releases the UDP connection and disables the client.
func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.enabled = false
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

func (c *Client) emit(name, payload string, tags map[string]string) {
	metric := c.qualify(name)
	if metric == "" {
		return
	}
	line := metric + ":" + payload + tagSuffix(c.tags, tags)

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.enabled || c.conn == nil {
		return
	}
	if _, err := c.conn.Write([]byte(line)); err != nil {
		c.logger.Debug("statsd write failed", "metric", metric, "error", err)
	}
}

// qualify joins the prefix and a cleaned-up metric name.
func (c *Client) qualify(name string) string {
	cleaned := cleanName(name)
	switch {
	case cleaned == "":
		return c.prefix
	case c.prefix == "":
		return cleaned
	default:
		return c.prefix + "." + cleaned
	}
}

// cleanName makes a metric name safe for the line protocol: spaces and
// slashes become underscores, repeated or leading dots are dropped.
func cleanName(name string) string {
	n := strings.TrimSpace(name)
	n = strings.ReplaceAll(n, " ", "_")
	n = strings.ReplaceAll(n, "/", "_")
	for strings.Contains(n, "..") {
		n = strings.ReplaceAll(n, "..", ".")
	}
	return strings.Trim(n, ".")
}

// tagSuffix renders merged tags in DogStatsD form, sorted for stable output.
func tagSuffix(base, extra map[string]string) string {
	merged := make(map[string]string, len(base)+len(extra))
	for _, src := range []map[string]string{base, extra} {
		for k, v := range src {
			if key := strings.TrimSpace(k); key != "" {
				merged[key] = strings.TrimSpace(v)
			}
		}
	}
	if len(merged) == 0 {
		return ""
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, len(keys))
	for i, k := range keys {
		pairs[i] = k + ":" + merged[k]
	}
	return "|#" + strings.Join(pairs, ",")
}

func copyTags(tags map[string]string) map[string]string {
	cp := make(map[string]string, len(tags))
	for k, v := range tags {
		if key := strings.TrimSpace(k); key != "" {
			cp[key] = strings.TrimSpace(v)
		}
	}
	return cp
}
