package provider

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/developingchet/ip-location-exporter/internal/location"
)

var (
	// ErrFieldMissing is returned when a mapped response key is absent or null.
	ErrFieldMissing = errors.New("field missing")

	// ErrFieldType is returned when a response value cannot be coerced to the
	// canonical field type.
	ErrFieldType = errors.New("field has unexpected type")

	// ErrBadLocation is returned when a combined "lat,lon" field is malformed.
	ErrBadLocation = errors.New("malformed location field")
)

// Normalize applies schema to a decoded JSON object. Numbers are expected as
// json.Number (decoder.UseNumber).
func Normalize(schema Schema, data map[string]any) (location.Record, error) {
	var rec location.Record

	switch s := schema.(type) {
	case Separate:
		var err error
		if rec.IP, rec.CountryCode, rec.City, err = commonFields(data, s.IP, s.CountryCode, s.City); err != nil {
			return location.Record{}, err
		}
		if rec.Latitude, err = floatField(data, s.Latitude); err != nil {
			return location.Record{}, err
		}
		if rec.Longitude, err = floatField(data, s.Longitude); err != nil {
			return location.Record{}, err
		}

	case Combined:
		var err error
		if rec.IP, rec.CountryCode, rec.City, err = commonFields(data, s.IP, s.CountryCode, s.City); err != nil {
			return location.Record{}, err
		}
		loc, err := stringField(data, s.Loc)
		if err != nil {
			return location.Record{}, err
		}
		if rec.Latitude, rec.Longitude, err = ParseLoc(loc); err != nil {
			return location.Record{}, err
		}

	default:
		return location.Record{}, fmt.Errorf("unsupported schema %T", schema)
	}

	return rec, nil
}

// ParseLoc splits a "latitude,longitude" string into its two coordinates.
func ParseLoc(loc string) (lat, lon float64, err error) {
	parts := strings.Split(loc, ",")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("%w: %q", ErrBadLocation, loc)
	}

	lat, err = strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: latitude %q", ErrBadLocation, parts[0])
	}
	lon, err = strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: longitude %q", ErrBadLocation, parts[1])
	}
	return lat, lon, nil
}

func commonFields(data map[string]any, ipKey, countryKey, cityKey string) (ip, country, city string, err error) {
	if ip, err = stringField(data, ipKey); err != nil {
		return "", "", "", err
	}
	if country, err = stringField(data, countryKey); err != nil {
		return "", "", "", err
	}
	if city, err = stringField(data, cityKey); err != nil {
		return "", "", "", err
	}
	return ip, country, city, nil
}

func lookup(data map[string]any, key string) (any, error) {
	v, ok := data[key]
	if !ok || v == nil {
		return nil, fmt.Errorf("%w: %q", ErrFieldMissing, key)
	}
	return v, nil
}

func stringField(data map[string]any, key string) (string, error) {
	v, err := lookup(data, key)
	if err != nil {
		return "", err
	}

	switch vv := v.(type) {
	case string:
		return vv, nil
	case json.Number:
		return vv.String(), nil
	case float64:
		return strconv.FormatFloat(vv, 'f', -1, 64), nil
	default:
		return "", fmt.Errorf("%w: %q is %T", ErrFieldType, key, v)
	}
}

func floatField(data map[string]any, key string) (float64, error) {
	v, err := lookup(data, key)
	if err != nil {
		return 0, err
	}

	switch vv := v.(type) {
	case json.Number:
		f, err := vv.Float64()
		if err != nil {
			return 0, fmt.Errorf("%w: %q: %v", ErrFieldType, key, err)
		}
		return f, nil
	case float64:
		return vv, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(vv), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q is not numeric", ErrFieldType, key)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("%w: %q is %T", ErrFieldType, key, v)
	}
}
