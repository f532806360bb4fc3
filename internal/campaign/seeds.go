package campaign

import (
	"math"
	"math/rand"

	"github.com/cwbudde/platefit/internal/rotation"
)

// ReferencePole is the center of the seed search region.
type ReferencePole struct {
	Lon   float64
	Lat   float64
	Angle float64
}

// SeedBounds returns the optimization bounds for (lon, lat, angle)
// parameter vectors: the tightest lon/lat box containing the seed cap,
// and the rotation uncertainty window around the reference angle. The
// longitude falls back to the full range when the cap reaches a pole or
// the box would cross the date line (the evaluator folds out-of-range
// poles either way).
func SeedBounds(ref ReferencePole, radiusDeg, rotationUncertainty float64) (lower, upper []float64) {
	latLo := math.Max(-90, ref.Lat-radiusDeg)
	latHi := math.Min(90, ref.Lat+radiusDeg)

	lonLo, lonHi := -180.0, 180.0
	if math.Abs(ref.Lat)+radiusDeg < 90 {
		// Longitude extent of the cap boundary.
		half := math.Asin(math.Sin(radiusDeg*math.Pi/180)/math.Cos(ref.Lat*math.Pi/180)) * 180 / math.Pi
		if ref.Lon-half >= -180 && ref.Lon+half <= 180 {
			lonLo, lonHi = ref.Lon-half, ref.Lon+half
		}
	}

	lower = []float64{lonLo, latLo, ref.Angle - rotationUncertainty}
	upper = []float64{lonHi, latHi, ref.Angle + rotationUncertainty}
	return lower, upper
}

// RandomSeeds draws n starting parameter vectors with poles uniformly
// distributed over the spherical cap of the given angular radius
// (degrees) around the reference pole, and angles uniform within the
// rotation uncertainty window.
func RandomSeeds(rng *rand.Rand, n int, ref ReferencePole, radiusDeg, rotationUncertainty float64) [][]float64 {
	toRef := capOrientation(ref)
	seeds := make([][]float64, 0, n)
	cosRadius := math.Cos(radiusDeg * math.Pi / 180)
	for i := 0; i < n; i++ {
		// Uniform over the cap: cos(colatitude) uniform in [cos(r), 1].
		cosColat := cosRadius + rng.Float64()*(1-cosRadius)
		colat := math.Acos(cosColat) * 180 / math.Pi
		azimuth := rng.Float64() * 360

		lat, lon := capPoint(toRef, colat, azimuth)
		angle := ref.Angle + (rng.Float64()*2-1)*rotationUncertainty
		seeds = append(seeds, []float64{lon, lat, angle})
	}
	return seeds
}

// UniformSeeds tiles the spherical cap with concentric rings of poles (the
// refinement-pass sampling): a center point, then rings with point counts
// growing linearly with ring radius. Angles sweep the uncertainty window
// evenly across the seeds. Deterministic for a given n.
func UniformSeeds(n int, ref ReferencePole, radiusDeg, rotationUncertainty float64) [][]float64 {
	toRef := capOrientation(ref)
	seeds := make([][]float64, 0, n)

	rings := int(math.Ceil(math.Sqrt(float64(n)))) + 1
	appendSeed := func(colat, azimuth float64) {
		if len(seeds) >= n {
			return
		}
		lat, lon := capPoint(toRef, colat, azimuth)
		frac := 0.5
		if n > 1 {
			frac = float64(len(seeds)) / float64(n-1)
		}
		angle := ref.Angle + (2*frac-1)*rotationUncertainty
		seeds = append(seeds, []float64{lon, lat, angle})
	}

	appendSeed(0, 0)
	for ring := 1; ring < rings && len(seeds) < n; ring++ {
		colat := radiusDeg * float64(ring) / float64(rings-1)
		points := 6 * ring
		for p := 0; p < points && len(seeds) < n; p++ {
			appendSeed(colat, 360*float64(p)/float64(points))
		}
	}
	// Tiling exhausted before n (tiny caps): pad with the center point.
	for len(seeds) < n {
		appendSeed(0, 0)
	}
	return seeds
}

// ScaledModelCount grows the trial count when the search radius widens,
// proportionally to the ratio of spherical-cap areas:
//
//	(1 - cos(rNew/2)) / (1 - cos(rOld/2))
func ScaledModelCount(models int, oldRadiusDeg, newRadiusDeg float64) int {
	oldArea := 1 - math.Cos(oldRadiusDeg/2*math.Pi/180)
	newArea := 1 - math.Cos(newRadiusDeg/2*math.Pi/180)
	if oldArea <= 0 {
		return models
	}
	return int(math.Round(newArea / oldArea * float64(models)))
}

// capOrientation builds the rotation carrying the north pole onto the
// reference pole, so cap-local (colatitude, azimuth) coordinates can be
// mapped onto the sphere.
func capOrientation(ref ReferencePole) rotation.FiniteRotation {
	tilt := rotation.NewFiniteRotation(0, ref.Lon+90, 90-ref.Lat)
	return tilt
}

// capPoint converts cap-local coordinates to geographic ones.
func capPoint(toRef rotation.FiniteRotation, colat, azimuth float64) (lat, lon float64) {
	localLat := 90 - colat
	localLon := azimuth
	lat, lon = toRef.RotateLatLon(localLat, localLon)
	return rotation.CheckLatLon(lat, lon)
}
