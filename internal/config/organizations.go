package config

import "github.com/JakeFAU/insight-crawler/internal/crawler"

// standardPolicy is shared by publishers without site-specific rules.
func standardPolicy(deny ...string) crawler.CrawlPolicy {
	return crawler.CrawlPolicy{
		DenyPaths:       append([]string{"/careers", "/login", "/search"}, deny...),
		MaxDepth:        1,
		RateLimit:       10,
		ObeyRobotsTxt:   true,
		NoLoginBypass:   true,
		NoPaywallBypass: true,
	}
}

// DefaultOrganizations returns the compiled-in organization table used when the config
// file does not provide one.
func DefaultOrganizations() []crawler.OrganizationSpec {
	return []crawler.OrganizationSpec{
		{
			Name:             "McKinsey & Company",
			Slug:             "mckinsey",
			OrgType:          "consulting",
			Tier:             "tier1",
			TrustWeight:      0.9,
			Website:          "https://www.mckinsey.com",
			FeedURLs:         []string{"https://www.mckinsey.com/insights/rss"},
			PublicationsPath: "/featured-insights",
			Policy:           standardPolicy("/about-us"),
		},
		{
			Name:             "Boston Consulting Group",
			Slug:             "bcg",
			OrgType:          "consulting",
			Tier:             "tier1",
			TrustWeight:      0.9,
			Website:          "https://www.bcg.com",
			PublicationsPath: "/publications",
			Policy:           standardPolicy(),
		},
		{
			Name:             "Bain & Company",
			Slug:             "bain",
			OrgType:          "consulting",
			Tier:             "tier1",
			TrustWeight:      0.85,
			Website:          "https://www.bain.com",
			PublicationsPath: "/insights",
			Policy:           standardPolicy(),
		},
		{
			Name:             "Deloitte Insights",
			Slug:             "deloitte",
			OrgType:          "consulting",
			Tier:             "tier1",
			TrustWeight:      0.85,
			Website:          "https://www2.deloitte.com",
			FeedURLs:         []string{"https://www2.deloitte.com/us/en/insights/rss-feeds.xml"},
			PublicationsPath: "/us/en/insights.html",
			Policy: crawler.CrawlPolicy{
				AllowPaths:      []string{"/insights", "/us/en/insights"},
				DenyPaths:       []string{"/careers", "/login"},
				MaxDepth:        1,
				RateLimit:       6,
				ObeyRobotsTxt:   true,
				NoLoginBypass:   true,
				NoPaywallBypass: true,
			},
		},
		{
			Name:             "PwC",
			Slug:             "pwc",
			OrgType:          "consulting",
			Tier:             "tier1",
			TrustWeight:      0.8,
			Website:          "https://www.pwc.com",
			PublicationsPath: "/gx/en/research-insights.html",
			Policy:           standardPolicy(),
		},
		{
			Name:             "Gartner",
			Slug:             "gartner",
			OrgType:          "research",
			Tier:             "tier1",
			TrustWeight:      0.9,
			Website:          "https://www.gartner.com",
			FeedURLs:         []string{"https://www.gartner.com/en/newsroom/rss"},
			PublicationsPath: "/en/insights",
			Policy:           standardPolicy("/en/products"),
		},
		{
			Name:             "Forrester",
			Slug:             "forrester",
			OrgType:          "research",
			Tier:             "tier2",
			TrustWeight:      0.8,
			Website:          "https://www.forrester.com",
			FeedURLs:         []string{"https://www.forrester.com/blogs/feed/"},
			PublicationsPath: "/research",
			Policy:           standardPolicy(),
		},
		{
			Name:             "World Economic Forum",
			Slug:             "wef",
			OrgType:          "institution",
			Tier:             "tier2",
			TrustWeight:      0.75,
			Website:          "https://www.weforum.org",
			FeedURLs:         []string{"https://www.weforum.org/agenda/feed"},
			PublicationsPath: "/publications",
			Policy:           standardPolicy("/events"),
		},
	}
}
