package provider

import (
	"errors"
	"fmt"
)

// Registry is an ordered, immutable list of providers. Order is fallback
// priority.
type Registry struct {
	descriptors []Descriptor
}

// NewRegistry validates descs and keeps them in the given order.
func NewRegistry(descs ...Descriptor) (*Registry, error) {
	if len(descs) == 0 {
		return nil, errors.New("provider registry: at least one provider is required")
	}

	seen := make(map[string]struct{}, len(descs))
	out := make([]Descriptor, 0, len(descs))
	for _, d := range descs {
		if err := d.Validate(); err != nil {
			return nil, fmt.Errorf("provider registry: %w", err)
		}
		if _, ok := seen[d.Name]; ok {
			return nil, fmt.Errorf("provider registry: duplicate provider name %q", d.Name)
		}
		seen[d.Name] = struct{}{}
		out = append(out, d)
	}

	return &Registry{descriptors: out}, nil
}

// Descriptors returns a copy of the providers in priority order.
func (r *Registry) Descriptors() []Descriptor {
	out := make([]Descriptor, len(r.descriptors))
	copy(out, r.descriptors)
	return out
}

// Names returns provider names in priority order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.descriptors))
	for i, d := range r.descriptors {
		names[i] = d.Name
	}
	return names
}

// Len returns the number of providers.
func (r *Registry) Len() int { return len(r.descriptors) }

// Tokens carries optional credentials for the built-in providers.
type Tokens struct {
	IPInfo   string
	IPLocate string
}

// Defaults returns the built-in provider chain: ipinfo.io, iplocate.io,
// freegeoip.live. Providers without a token are queried unauthenticated.
func Defaults(t Tokens) []Descriptor {
	return []Descriptor{
		{
			Name:    "ipinfo",
			BaseURL: "https://ipinfo.io/",
			Auth:    AuthParam{Name: "token", Value: t.IPInfo},
			Schema: Combined{
				IP:          "ip",
				CountryCode: "country",
				City:        "city",
				Loc:         "loc",
			},
		},
		{
			Name:    "iplocate",
			BaseURL: "https://www.iplocate.io/api/lookup/",
			Auth:    AuthParam{Name: "apikey", Value: t.IPLocate},
			Schema: Separate{
				IP:          "ip",
				CountryCode: "country_code",
				City:        "city",
				Latitude:    "latitude",
				Longitude:   "longitude",
			},
		},
		{
			Name:    "freegeoip",
			BaseURL: "https://freegeoip.live/json/",
			Schema: Separate{
				IP:          "ip",
				CountryCode: "country_code",
				City:        "city",
				Latitude:    "latitude",
				Longitude:   "longitude",
			},
		},
	}
}
