package crawler

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// OrganizationSpec is one entry of the static organization table. The same entry seeds the
// organizations table and drives each crawl run (feeds and publications page).
type OrganizationSpec struct {
	Name             string      `mapstructure:"name" json:"name"`
	Slug             string      `mapstructure:"slug" json:"slug"`
	OrgType          string      `mapstructure:"org_type" json:"org_type"`
	Tier             string      `mapstructure:"tier" json:"tier"`
	TrustWeight      float64     `mapstructure:"trust_weight" json:"trust_weight"`
	Website          string      `mapstructure:"website" json:"website"`
	FeedURLs         []string    `mapstructure:"feed_urls" json:"feed_urls"`
	PublicationsPath string      `mapstructure:"publications_path" json:"publications_path"`
	Policy           CrawlPolicy `mapstructure:"crawl_policy" json:"crawl_policy"`
	Inactive         bool        `mapstructure:"inactive" json:"inactive"`
}

// Organization converts the definition into the row seeded at initialization.
func (s OrganizationSpec) Organization() Organization {
	return Organization{
		Name:        s.Name,
		Slug:        s.Slug,
		OrgType:     s.OrgType,
		Tier:        s.Tier,
		TrustWeight: s.TrustWeight,
		Website:     s.Website,
		CrawlPolicy: s.Policy,
		IsActive:    !s.Inactive,
	}
}

// PublicationsURL resolves the publications index path against the website.
// It returns an empty string when no index is configured.
func (s OrganizationSpec) PublicationsURL() (string, error) {
	if strings.TrimSpace(s.PublicationsPath) == "" {
		return "", nil
	}
	base, err := url.Parse(s.Website)
	if err != nil {
		return "", fmt.Errorf("parse website %q: %w", s.Website, err)
	}
	ref, err := url.Parse(s.PublicationsPath)
	if err != nil {
		return "", fmt.Errorf("parse publications path %q: %w", s.PublicationsPath, err)
	}
	return base.ResolveReference(ref).String(), nil
}

// Registry is the authoritative, read-only organization table keyed by slug.
type Registry struct {
	specs map[string]OrganizationSpec
	order []string
}

// NewRegistry indexes specs by slug. Duplicate or empty slugs are rejected.
func NewRegistry(specs []OrganizationSpec) (*Registry, error) {
	r := &Registry{specs: make(map[string]OrganizationSpec, len(specs))}
	for _, spec := range specs {
		slug := strings.TrimSpace(spec.Slug)
		if slug == "" {
			return nil, fmt.Errorf("organization %q has no slug", spec.Name)
		}
		if _, exists := r.specs[slug]; exists {
			return nil, fmt.Errorf("duplicate organization slug %q", slug)
		}
		r.specs[slug] = spec
		r.order = append(r.order, slug)
	}
	sort.Strings(r.order)
	return r, nil
}

// Lookup returns the definition for slug or ErrNotFound.
func (r *Registry) Lookup(slug string) (OrganizationSpec, error) {
	spec, ok := r.specs[slug]
	if !ok {
		return OrganizationSpec{}, fmt.Errorf("organization config %q: %w", slug, ErrNotFound)
	}
	return spec, nil
}

// All returns every spec ordered by slug.
func (r *Registry) All() []OrganizationSpec {
	out := make([]OrganizationSpec, 0, len(r.order))
	for _, slug := range r.order {
		out = append(out, r.specs[slug])
	}
	return out
}

// TrustWeight returns the static trust weight for a source type (organization slug).
// Unknown sources get DefaultTrustWeight.
func (r *Registry) TrustWeight(sourceType string) float64 {
	if spec, ok := r.specs[sourceType]; ok {
		return spec.TrustWeight
	}
	return DefaultTrustWeight
}

// DefaultTrustWeight applies to sources missing from the registry.
const DefaultTrustWeight = 0.5
