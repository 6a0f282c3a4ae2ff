package compliance

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
	"go.uber.org/zap"

	"github.com/JakeFAU/insight-crawler/internal/crawler"
)

// Robots parsing modes.
const (
	// RobotsModeScan collects every Disallow value regardless of user-agent group.
	RobotsModeScan = "scan"
	// RobotsModeAgent evaluates the group matching the configured user agent.
	RobotsModeAgent = "agent"
)

// DefaultRobotsTTL is how long a robots.txt result is reused per origin.
const DefaultRobotsTTL = time.Hour

// Rules answers whether a path is disallowed by a robots.txt file.
type Rules interface {
	// Blocked returns the matching rule and true when path is disallowed.
	Blocked(path string) (string, bool)
}

// DisallowRules is the flat list of Disallow values of a robots.txt file.
type DisallowRules []string

// Blocked implements Rules with prefix matching.
func (r DisallowRules) Blocked(path string) (string, bool) {
	for _, rule := range r {
		if rule != "" && strings.HasPrefix(path, rule) {
			return rule, true
		}
	}
	return "", false
}

// ParseDisallow collects every Disallow value from a robots.txt body. Keys are
// case-insensitive, values are trimmed, # comments are dropped, empty values ignored.
func ParseDisallow(body string) DisallowRules {
	var rules DisallowRules
	for _, line := range strings.Split(body, "\n") {
		if idx := strings.IndexByte(line, '#'); idx >= 0 {
			line = line[:idx]
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok || !strings.EqualFold(strings.TrimSpace(key), "disallow") {
			continue
		}
		if value = strings.TrimSpace(value); value != "" {
			rules = append(rules, value)
		}
	}
	return rules
}

type agentRules struct {
	group *robotstxt.Group
}

func (r agentRules) Blocked(path string) (string, bool) {
	if r.group == nil || r.group.Test(path) {
		return "", false
	}
	return path, true
}

type robotsEntry struct {
	rules     Rules
	fetchedAt time.Time
}

// RobotsCache fetches robots.txt once per origin and reuses it for the TTL.
// Fetch failures and non-2xx responses are cached as an empty rule set. A fetch cut
// short by the caller's context is not cached.
type RobotsCache struct {
	fetcher   crawler.Fetcher
	clock     crawler.Clock
	ttl       time.Duration
	mode      string
	userAgent string
	logger    *zap.Logger

	mu      sync.Mutex
	entries map[string]robotsEntry
}

// RobotsConfig configures a RobotsCache.
type RobotsConfig struct {
	TTL       time.Duration
	Mode      string
	UserAgent string
}

// NewRobotsCache builds a cache backed by fetcher.
func NewRobotsCache(cfg RobotsConfig, fetcher crawler.Fetcher, clock crawler.Clock, logger *zap.Logger) *RobotsCache {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultRobotsTTL
	}
	if cfg.Mode == "" {
		cfg.Mode = RobotsModeScan
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RobotsCache{
		fetcher:   fetcher,
		clock:     clock,
		ttl:       cfg.TTL,
		mode:      cfg.Mode,
		userAgent: cfg.UserAgent,
		logger:    logger,
		entries:   make(map[string]robotsEntry),
	}
}

// Rules returns the robots rules for the origin of u.
func (c *RobotsCache) Rules(ctx context.Context, u *url.URL) Rules {
	origin := strings.ToLower(u.Scheme + "://" + u.Host)
	now := c.clock.Now()

	c.mu.Lock()
	entry, ok := c.entries[origin]
	c.mu.Unlock()
	if ok && now.Sub(entry.fetchedAt) < c.ttl {
		return entry.rules
	}

	rules, err := c.load(ctx, origin)
	if err != nil {
		// The caller gave up; the origin's answer is still unknown.
		if ok {
			return entry.rules
		}
		return DisallowRules(nil)
	}

	c.mu.Lock()
	c.entries[origin] = robotsEntry{rules: rules, fetchedAt: now}
	c.mu.Unlock()
	return rules
}

// load returns an error only when ctx ended before the origin answered.
func (c *RobotsCache) load(ctx context.Context, origin string) (Rules, error) {
	resp, err := c.fetcher.Fetch(ctx, crawler.FetchRequest{URL: origin + "/robots.txt", Accept: "text/plain"})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			c.logger.Debug("robots.txt fetch abandoned", zap.String("origin", origin), zap.Error(ctxErr))
			return nil, ctxErr
		}
		c.logger.Debug("robots.txt unavailable; treating as empty", zap.String("origin", origin), zap.Error(err))
		return DisallowRules(nil), nil
	}
	if c.mode != RobotsModeAgent {
		return ParseDisallow(string(resp.Body)), nil
	}
	data, err := robotstxt.FromBytes(resp.Body)
	if err != nil {
		c.logger.Warn("robots.txt parse failed; treating as empty", zap.String("origin", origin), zap.Error(err))
		return DisallowRules(nil), nil
	}
	return agentRules{group: data.FindGroup(c.userAgent)}, nil
}
