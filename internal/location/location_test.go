package location_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/developingchet/ip-location-exporter/internal/location"
)

func TestResolved_CarriesRecord(t *testing.T) {
	r := location.Record{IP: "1.1.1.1", CountryCode: "AU", City: "Sydney", Latitude: -33.86, Longitude: 151.2}
	o := location.Resolved("1.1.1.1", "ipinfo", r)

	assert.True(t, o.Resolved)
	assert.Equal(t, "1.1.1.1", o.IP)
	assert.Equal(t, "ipinfo", o.Provider)
	assert.Equal(t, r, o.Record)
}

func TestUnresolved_OnlyIP(t *testing.T) {
	o := location.Unresolved("8.8.8.8")

	assert.False(t, o.Resolved)
	assert.Equal(t, "8.8.8.8", o.IP)
	assert.Empty(t, o.Provider)
	assert.Zero(t, o.Record)
}
