// Package compliance decides whether a URL may be fetched under an organization's crawl policy.
package compliance

import (
	"context"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/insight-crawler/internal/crawler"
	"github.com/JakeFAU/insight-crawler/internal/metrics"
)

// Denial reasons.
const (
	ReasonInvalidURL   = "Invalid URL"
	ReasonNotAllowed   = "Path not in allowed list"
	reasonDeniedPrefix = "Path blocked by policy: "
	reasonRobotsPrefix = "Blocked by robots.txt: "
)

// Gate evaluates URLs against deny rules, allow rules and robots.txt, in that order.
type Gate struct {
	robots *RobotsCache
	logger *zap.Logger
}

// NewGate builds a Gate. A nil robots cache disables robots.txt checks.
func NewGate(robots *RobotsCache, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{robots: robots, logger: logger}
}

// IsAllowed implements crawler.ComplianceChecker.
func (g *Gate) IsAllowed(ctx context.Context, rawURL string, policy crawler.CrawlPolicy) crawler.Decision {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return g.deny("invalid", rawURL, ReasonInvalidURL)
	}
	path := u.Path
	if path == "" {
		path = "/"
	}

	for _, rule := range policy.DenyPaths {
		if rule != "" && strings.Contains(path, rule) {
			return g.deny("deny", rawURL, reasonDeniedPrefix+rule)
		}
	}

	if len(policy.AllowPaths) > 0 && !matchesAny(path, policy.AllowPaths) {
		return g.deny("allow", rawURL, ReasonNotAllowed)
	}

	if policy.ObeyRobotsTxt && g.robots != nil {
		if rule, blocked := g.robots.Rules(ctx, u).Blocked(path); blocked {
			return g.deny("robots", rawURL, reasonRobotsPrefix+rule)
		}
	}

	return crawler.Decision{Allowed: true}
}

func (g *Gate) deny(kind, rawURL, reason string) crawler.Decision {
	metrics.ObserveComplianceDenial(kind)
	g.logger.Debug("url denied", zap.String("url", rawURL), zap.String("reason", reason))
	return crawler.Decision{Allowed: false, Reason: reason}
}

func matchesAny(path string, rules []string) bool {
	for _, rule := range rules {
		if rule != "" && strings.Contains(path, rule) {
			return true
		}
	}
	return false
}
