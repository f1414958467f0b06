// Package location defines the normalized geolocation record and the outcome of
// resolving a single IP address.
package location

// Record is a normalized geolocation result for one IP.
// IP is the address as reported by the provider, which may differ from the
// queried string (e.g. IPv6 canonicalisation).
type Record struct {
	IP          string  `json:"ip"`
	CountryCode string  `json:"country_code"`
	City        string  `json:"city"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
}

// Outcome is either Resolved (Record set) or Unresolved (only IP set).
type Outcome struct {
	// IP is the queried address.
	IP       string
	Record   Record
	Resolved bool
	// Provider names the provider that produced Record.
	Provider string
}

// Resolved builds a successful outcome for ip.
func Resolved(ip, provider string, r Record) Outcome {
	return Outcome{IP: ip, Record: r, Resolved: true, Provider: provider}
}

// Unresolved builds an outcome for an ip no provider could locate.
func Unresolved(ip string) Outcome {
	return Outcome{IP: ip}
}
