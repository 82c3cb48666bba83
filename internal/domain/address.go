package domain

// GeoPointType is the only accepted location type.
const GeoPointType = "Point"

// Address is a postal and/or geographic address owned by a user. It has no
// identity of its own; a user's address list is always replaced as a whole.
type Address struct {
	IsPrimary bool           `json:"isPrimary"`
	Detail    *AddressDetail `json:"detail,omitempty"`
	Location  *GeoLocation   `json:"location,omitempty"`
}

// AddressDetail holds the postal part of an address. Exactly one of State or
// Province is expected; an empty string counts as unset.
type AddressDetail struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state,omitempty"`
	Province   string `json:"province,omitempty"`
	Country    string `json:"country"`
	PostalCode string `json:"postalCode"`
	Type       string `json:"type,omitempty"`
}

// HasState reports whether the state field is set.
func (d *AddressDetail) HasState() bool { return d.State != "" }

// HasProvince reports whether the province field is set.
func (d *AddressDetail) HasProvince() bool { return d.Province != "" }

// GeoLocation is a GeoJSON point. Coordinates are [longitude, latitude].
type GeoLocation struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
}

// Longitude returns the first coordinate.
func (l *GeoLocation) Longitude() (float64, bool) {
	if len(l.Coordinates) < 1 {
		return 0, false
	}
	return l.Coordinates[0], true
}

// Latitude returns the second coordinate.
func (l *GeoLocation) Latitude() (float64, bool) {
	if len(l.Coordinates) < 2 {
		return 0, false
	}
	return l.Coordinates[1], true
}
