package geodata

// TrenchSegment is one resolved subduction-zone sample point, exported at
// a specific reconstruction age.
type TrenchSegment struct {
	Lat           float64 `json:"lat"`
	Lon           float64 `json:"lon"`
	PlateID       int     `json:"plateId"`
	NormalAzimuth float64 `json:"normalAzimuth"` // degrees, subduction-normal direction
}

// TrailPoint is a dated sample along a hotspot trail.
type TrailPoint struct {
	Lat            float64 `json:"lat"`
	Lon            float64 `json:"lon"`
	Age            float64 `json:"age"` // Ma
	PlateID        int     `json:"plateId"`
	AgeUncertainty float64 `json:"ageUncertainty,omitempty"` // Myr
}

// HotspotTrail is a named chain with a present-day hotspot location and
// its dated trail points.
type HotspotTrail struct {
	Name       string       `json:"name"`
	HotspotLat float64      `json:"hotspotLat"`
	HotspotLon float64      `json:"hotspotLon"`
	Points     []TrailPoint `json:"points"`
}

// FracturePick is a seafloor point with an observed spreading direction.
type FracturePick struct {
	Lat              float64 `json:"lat"`
	Lon              float64 `json:"lon"`
	PlateID          int     `json:"plateId"`
	SpreadingAzimuth float64 `json:"spreadingAzimuth"` // degrees
	SeafloorAge      float64 `json:"seafloorAge"`      // Ma
}

// ContinentPoint is one gridded continental sample used by the plate
// velocity term.
type ContinentPoint struct {
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	PlateID int     `json:"plateId"`
}
