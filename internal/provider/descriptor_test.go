package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func separateFields() map[string]string {
	return map[string]string{
		"ip":           "ip",
		"country_code": "country_code",
		"city":         "city",
		"latitude":     "latitude",
		"longitude":    "longitude",
	}
}

func TestDescriptorURL(t *testing.T) {
	tests := []struct {
		name string
		desc Descriptor
		ip   string
		want string
	}{
		{
			name: "appended with trailing slash",
			desc: Descriptor{Name: "a", BaseURL: "https://ipinfo.io/"},
			ip:   "1.1.1.1",
			want: "https://ipinfo.io/1.1.1.1",
		},
		{
			name: "appended without trailing slash",
			desc: Descriptor{Name: "a", BaseURL: "https://freegeoip.live/json"},
			ip:   "8.8.8.8",
			want: "https://freegeoip.live/json/8.8.8.8",
		},
		{
			name: "auth parameter",
			desc: Descriptor{Name: "a", BaseURL: "https://ipinfo.io/", Auth: AuthParam{Name: "token", Value: "secret"}},
			ip:   "1.1.1.1",
			want: "https://ipinfo.io/1.1.1.1?token=secret",
		},
		{
			name: "auth without value is skipped",
			desc: Descriptor{Name: "a", BaseURL: "https://ipinfo.io/", Auth: AuthParam{Name: "token"}},
			ip:   "1.1.1.1",
			want: "https://ipinfo.io/1.1.1.1",
		},
		{
			name: "placeholder substitution keeps query",
			desc: Descriptor{Name: "a", BaseURL: "https://tools.keycdn.com/geo.json?host={ip}", Auth: AuthParam{Name: "k", Value: "v"}},
			ip:   "9.9.9.9",
			want: "https://tools.keycdn.com/geo.json?host=9.9.9.9&k=v",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.desc.URL(tt.ip)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDescriptorValidate(t *testing.T) {
	valid := Descriptor{
		Name:    "p",
		BaseURL: "https://example.com/",
		Schema:  Combined{IP: "ip", CountryCode: "country", City: "city", Loc: "loc"},
	}
	require.NoError(t, valid.Validate())

	noSchema := valid
	noSchema.Schema = nil
	assert.ErrorContains(t, noSchema.Validate(), "field map is required")

	emptyKey := valid
	emptyKey.Schema = Separate{IP: "ip", CountryCode: "cc", City: "city", Latitude: "lat"}
	assert.ErrorContains(t, emptyKey.Validate(), `field "longitude" has no response key`)

	badScheme := valid
	badScheme.BaseURL = "ftp://example.com/"
	assert.ErrorContains(t, badScheme.Validate(), "scheme must be http or https")

	noName := valid
	noName.Name = " "
	assert.ErrorContains(t, noName.Validate(), "name is required")
}

func TestFromFields_Separate(t *testing.T) {
	d, err := FromFields("iplocate", "https://www.iplocate.io/api/lookup/", AuthParam{Name: "apikey", Value: "x"}, separateFields())
	require.NoError(t, err)

	s, ok := d.Schema.(Separate)
	require.True(t, ok)
	assert.Equal(t, "latitude", s.Latitude)
	assert.Equal(t, "apikey", d.Auth.Name)
}

func TestFromFields_Combined(t *testing.T) {
	d, err := FromFields("ipinfo", "https://ipinfo.io/", AuthParam{}, map[string]string{
		"ip": "ip", "country_code": "country", "city": "city", "loc": "loc",
	})
	require.NoError(t, err)

	c, ok := d.Schema.(Combined)
	require.True(t, ok)
	assert.Equal(t, "country", c.CountryCode)
	assert.Equal(t, "loc", c.Loc)
}

func TestFromFields_Incomplete(t *testing.T) {
	fields := separateFields()
	delete(fields, "city")

	_, err := FromFields("p", "https://example.com/", AuthParam{}, fields)
	assert.ErrorContains(t, err, `field "city" has no response key`)
}

func TestFromFields_UnknownField(t *testing.T) {
	fields := separateFields()
	fields["region"] = "region"

	_, err := FromFields("p", "https://example.com/", AuthParam{}, fields)
	assert.ErrorContains(t, err, `unknown field "region"`)
}

func TestRegistry(t *testing.T) {
	r, err := NewRegistry(Defaults(Tokens{IPInfo: "t"})...)
	require.NoError(t, err)

	assert.Equal(t, 3, r.Len())
	assert.Equal(t, []string{"ipinfo", "iplocate", "freegeoip"}, r.Names())

	descs := r.Descriptors()
	descs[0].Name = "mutated"
	assert.Equal(t, "ipinfo", r.Names()[0], "Descriptors must return a copy")

	assert.True(t, descs[0].Auth.Enabled())
	assert.False(t, descs[1].Auth.Enabled())
	assert.False(t, descs[2].Auth.Enabled())
}

func TestRegistry_Errors(t *testing.T) {
	_, err := NewRegistry()
	assert.Error(t, err)

	d := Defaults(Tokens{})[0]
	_, err = NewRegistry(d, d)
	assert.ErrorContains(t, err, "duplicate provider name")
}
