package geo

// Outcome tells a real location apart from the fallback payload.
type Outcome string

const (
	// OutcomeLocated means the lookup service answered with a location.
	OutcomeLocated Outcome = "located"

	// OutcomeDegraded means the lookup failed and the fallback payload is served.
	OutcomeDegraded Outcome = "degraded"
)

// Unknown fills every location field of the fallback payload.
const Unknown = "Unknown"

// Location is the JSON body of the geolocation route.
type Location struct {
	IP          string   `json:"ip"`
	City        string   `json:"city"`
	Region      string   `json:"region"`
	Country     string   `json:"country"`
	CountryCode string   `json:"country_code,omitempty"`
	Latitude    *float64 `json:"latitude,omitempty"`
	Longitude   *float64 `json:"longitude,omitempty"`
	Timezone    string   `json:"timezone"`
	Fallback    bool     `json:"fallback"`
}

// Result is the outcome of one lookup. Degraded results carry the reason the
// lookup failed; it is logged, never sent to the caller.
type Result struct {
	Outcome  Outcome
	Location Location
	Reason   string
}

// Located wraps a successful lookup.
func Located(loc Location) Result {
	loc.Fallback = false
	return Result{Outcome: OutcomeLocated, Location: loc}
}

// Degraded builds the fallback result for ip.
func Degraded(ip, reason string) Result {
	return Result{
		Outcome: OutcomeDegraded,
		Reason:  reason,
		Location: Location{
			IP:       ip,
			City:     Unknown,
			Region:   Unknown,
			Country:  Unknown,
			Timezone: "UTC",
			Fallback: true,
		},
	}
}

// IsDegraded reports whether the fallback payload is served.
func (r Result) IsDegraded() bool {
	return r.Outcome == OutcomeDegraded
}
