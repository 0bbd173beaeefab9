package userflow

import "context"

// GeoInfo is the result of a geolocation lookup. Zero value means the
// address could not be resolved.
type GeoInfo struct {
	Country  string  `json:"country,omitempty"`
	City     string  `json:"city,omitempty"`
	Lat      float64 `json:"lat,omitempty"`
	Lng      float64 `json:"lng,omitempty"`
	Timezone string  `json:"timezone,omitempty"`
}

// IsZero reports whether the lookup produced nothing.
func (g GeoInfo) IsZero() bool {
	return g == GeoInfo{}
}

func (g GeoInfo) asMap() map[string]any {
	if g.IsZero() {
		return nil
	}
	return map[string]any{
		"country":  g.Country,
		"city":     g.City,
		"lat":      g.Lat,
		"lng":      g.Lng,
		"timezone": g.Timezone,
	}
}

// GeoResolver resolves a network address to geographic info. Implemented by
// the embedding application, typically over a GeoIP database.
type GeoResolver interface {
	Lookup(ctx context.Context, remoteAddr string) (GeoInfo, error)
}

// UAInfo is parsed user agent information.
type UAInfo struct {
	Family string `json:"family,omitempty"`
	OS     string `json:"os,omitempty"`
	Device string `json:"device,omitempty"`
	Raw    string `json:"raw,omitempty"`
}

func (u UAInfo) asMap() map[string]any {
	if u == (UAInfo{}) {
		return nil
	}
	return map[string]any{
		"family": u.Family,
		"os":     u.OS,
		"device": u.Device,
		"raw":    u.Raw,
	}
}

// UAParser parses a User-Agent header. Implemented by the embedding
// application.
type UAParser interface {
	Parse(userAgent string) UAInfo
}

// RequestInfo carries the per request facts the flows need. The embedding
// HTTP layer fills it; the core never touches ambient request state.
type RequestInfo struct {
	RemoteAddr string
	UserAgent  string

	// AcceptLanguages lists browser locale preferences in order.
	AcceptLanguages []string

	// BrowserTZOffsetMinutes is the client clock offset from UTC in
	// minutes. Zero means unknown.
	BrowserTZOffsetMinutes int
}
