// Package provider describes external HTTP geolocation services and turns their
// heterogeneous JSON responses into a location.Record.
package provider

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ipPlaceholder in a base URL is replaced by the queried address. Without it the
// address is appended as the last path segment.
const ipPlaceholder = "{ip}"

// Canonical field names accepted in a provider field map.
const (
	FieldIP          = "ip"
	FieldCountryCode = "country_code"
	FieldCity        = "city"
	FieldLatitude    = "latitude"
	FieldLongitude   = "longitude"
	FieldLoc         = "loc"
)

// AuthParam is an optional query parameter carrying a provider credential.
type AuthParam struct {
	Name  string
	Value string
}

// Enabled reports whether the parameter should be sent. Both halves must be set.
func (a AuthParam) Enabled() bool {
	return a.Name != "" && a.Value != ""
}

// Schema maps canonical fields onto a provider's response keys. The set of
// implementations is closed: Separate and Combined.
type Schema interface {
	keys() map[string]string
}

// Separate is a schema where every canonical field has its own response key.
type Separate struct {
	IP          string
	CountryCode string
	City        string
	Latitude    string
	Longitude   string
}

func (s Separate) keys() map[string]string {
	return map[string]string{
		FieldIP:          s.IP,
		FieldCountryCode: s.CountryCode,
		FieldCity:        s.City,
		FieldLatitude:    s.Latitude,
		FieldLongitude:   s.Longitude,
	}
}

// Combined is a schema where latitude and longitude come from one
// "lat,lon" string field.
type Combined struct {
	IP          string
	CountryCode string
	City        string
	Loc         string
}

func (c Combined) keys() map[string]string {
	return map[string]string{
		FieldIP:          c.IP,
		FieldCountryCode: c.CountryCode,
		FieldCity:        c.City,
		FieldLoc:         c.Loc,
	}
}

// Descriptor is an immutable provider configuration entry.
type Descriptor struct {
	Name    string
	BaseURL string
	Auth    AuthParam
	Schema  Schema
}

// Validate checks that d can build request URLs and produce all five
// canonical fields.
func (d Descriptor) Validate() error {
	var errs []error

	if strings.TrimSpace(d.Name) == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if u, err := url.Parse(strings.ReplaceAll(d.BaseURL, ipPlaceholder, "0.0.0.0")); err != nil {
		errs = append(errs, fmt.Errorf("url %q: %w", d.BaseURL, err))
	} else if u.Scheme != "http" && u.Scheme != "https" {
		errs = append(errs, fmt.Errorf("url %q: scheme must be http or https", d.BaseURL))
	}

	if d.Schema == nil {
		errs = append(errs, errors.New("field map is required"))
	} else {
		for field, key := range d.Schema.keys() {
			if strings.TrimSpace(key) == "" {
				errs = append(errs, fmt.Errorf("field %q has no response key", field))
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("provider %q: %w", d.Name, errors.Join(errs...))
	}
	return nil
}

// URL builds the lookup URL for ip, adding the auth parameter when enabled.
func (d Descriptor) URL(ip string) (string, error) {
	escaped := url.PathEscape(ip)

	raw := d.BaseURL
	if strings.Contains(raw, ipPlaceholder) {
		raw = strings.ReplaceAll(raw, ipPlaceholder, escaped)
	} else {
		if !strings.HasSuffix(raw, "/") {
			raw += "/"
		}
		raw += escaped
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("build url for %s: %w", d.Name, err)
	}

	if d.Auth.Enabled() {
		q := u.Query()
		q.Set(d.Auth.Name, d.Auth.Value)
		u.RawQuery = q.Encode()
	}

	return u.String(), nil
}

// FromFields builds a Descriptor from a configuration field map. A map holding
// "loc" yields a Combined schema; otherwise all five canonical fields are
// required.
func FromFields(name, baseURL string, auth AuthParam, fields map[string]string) (Descriptor, error) {
	for k := range fields {
		switch k {
		case FieldIP, FieldCountryCode, FieldCity, FieldLatitude, FieldLongitude, FieldLoc:
		default:
			return Descriptor{}, fmt.Errorf("provider %q: unknown field %q", name, k)
		}
	}

	var schema Schema
	if loc, ok := fields[FieldLoc]; ok {
		schema = Combined{
			IP:          fields[FieldIP],
			CountryCode: fields[FieldCountryCode],
			City:        fields[FieldCity],
			Loc:         loc,
		}
	} else {
		schema = Separate{
			IP:          fields[FieldIP],
			CountryCode: fields[FieldCountryCode],
			City:        fields[FieldCity],
			Latitude:    fields[FieldLatitude],
			Longitude:   fields[FieldLongitude],
		}
	}

	d := Descriptor{Name: name, BaseURL: baseURL, Auth: auth, Schema: schema}
	if err := d.Validate(); err != nil {
		return Descriptor{}, err
	}
	return d, nil
}
