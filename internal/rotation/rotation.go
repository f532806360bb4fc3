package rotation

import (
	"fmt"
	"math"
)

// FiniteRotation is a rotation of the sphere about a pole through its
// center, stored as a unit quaternion.
type FiniteRotation struct {
	W, X, Y, Z float64
}

// Identity returns the zero rotation.
func Identity() FiniteRotation {
	return FiniteRotation{W: 1}
}

// NewFiniteRotation builds a rotation from a pole (degrees) and an angle
// (degrees, right-handed about the pole).
func NewFiniteRotation(poleLat, poleLon, angleDeg float64) FiniteRotation {
	ax, ay, az := latLonToVector(poleLat, poleLon)
	half := degToRad(angleDeg) / 2
	s := math.Sin(half)
	return FiniteRotation{
		W: math.Cos(half),
		X: s * ax,
		Y: s * ay,
		Z: s * az,
	}
}

// Compose returns the rotation equivalent to applying b first, then a.
// This matches the usual finite-rotation product a * b.
func (a FiniteRotation) Compose(b FiniteRotation) FiniteRotation {
	return FiniteRotation{
		W: a.W*b.W - a.X*b.X - a.Y*b.Y - a.Z*b.Z,
		X: a.W*b.X + a.X*b.W + a.Y*b.Z - a.Z*b.Y,
		Y: a.W*b.Y - a.X*b.Z + a.Y*b.W + a.Z*b.X,
		Z: a.W*b.Z + a.X*b.Y - a.Y*b.X + a.Z*b.W,
	}
}

// Inverse returns the reverse rotation.
func (a FiniteRotation) Inverse() FiniteRotation {
	return FiniteRotation{W: a.W, X: -a.X, Y: -a.Y, Z: -a.Z}
}

// Pole decomposes the rotation into a pole (lat, lon in degrees) and an
// angle in degrees. The identity rotation reports the north pole with a
// zero angle.
func (a FiniteRotation) Pole() (lat, lon, angleDeg float64) {
	w := clampUnit(a.W)
	angle := 2 * math.Acos(w)
	s := math.Sqrt(1 - w*w)
	if s < 1e-12 {
		return 90, 0, 0
	}
	x, y, z := a.X/s, a.Y/s, a.Z/s
	lat = radToDeg(math.Asin(clampUnit(z)))
	lon = radToDeg(math.Atan2(y, x))
	return lat, lon, radToDeg(angle)
}

// AngleRadians returns the magnitude of the rotation angle in radians.
func (a FiniteRotation) AngleRadians() float64 {
	w := math.Abs(clampUnit(a.W))
	return 2 * math.Acos(w)
}

// AngleDegrees returns the magnitude of the rotation angle in degrees.
func (a FiniteRotation) AngleDegrees() float64 {
	return radToDeg(a.AngleRadians())
}

// Equivalent reports whether two rotations differ by less than tolRadians.
// Quaternion double cover (q and -q) is accounted for.
func (a FiniteRotation) Equivalent(b FiniteRotation, tolRadians float64) bool {
	diff := a.Compose(b.Inverse())
	return diff.AngleRadians() <= tolRadians
}

// Interpolate spherically interpolates between a (t=0) and b (t=1).
func (a FiniteRotation) Interpolate(b FiniteRotation, t float64) FiniteRotation {
	dot := a.W*b.W + a.X*b.X + a.Y*b.Y + a.Z*b.Z
	// Take the short way around.
	if dot < 0 {
		b = FiniteRotation{W: -b.W, X: -b.X, Y: -b.Y, Z: -b.Z}
		dot = -dot
	}
	if dot > 0.9995 {
		// Nearly parallel, fall back to normalized lerp.
		r := FiniteRotation{
			W: a.W + t*(b.W-a.W),
			X: a.X + t*(b.X-a.X),
			Y: a.Y + t*(b.Y-a.Y),
			Z: a.Z + t*(b.Z-a.Z),
		}
		return r.normalize()
	}
	theta := math.Acos(clampUnit(dot))
	sinTheta := math.Sin(theta)
	wa := math.Sin((1-t)*theta) / sinTheta
	wb := math.Sin(t*theta) / sinTheta
	return FiniteRotation{
		W: wa*a.W + wb*b.W,
		X: wa*a.X + wb*b.X,
		Y: wa*a.Y + wb*b.Y,
		Z: wa*a.Z + wb*b.Z,
	}
}

// RotateLatLon applies the rotation to a geographic point (degrees).
func (a FiniteRotation) RotateLatLon(lat, lon float64) (float64, float64) {
	vx, vy, vz := latLonToVector(lat, lon)
	// v' = q v q^-1 expanded via the rotation matrix form.
	tx := 2 * (a.Y*vz - a.Z*vy)
	ty := 2 * (a.Z*vx - a.X*vz)
	tz := 2 * (a.X*vy - a.Y*vx)
	rx := vx + a.W*tx + (a.Y*tz - a.Z*ty)
	ry := vy + a.W*ty + (a.Z*tx - a.X*tz)
	rz := vz + a.W*tz + (a.X*ty - a.Y*tx)
	return vectorToLatLon(rx, ry, rz)
}

func (a FiniteRotation) normalize() FiniteRotation {
	n := math.Sqrt(a.W*a.W + a.X*a.X + a.Y*a.Y + a.Z*a.Z)
	if n == 0 {
		return Identity()
	}
	return FiniteRotation{W: a.W / n, X: a.X / n, Y: a.Y / n, Z: a.Z / n}
}

// CheckLatLon folds a latitude outside [-90, 90] back onto the sphere,
// shifting the longitude by 180 degrees when folding occurs, and wraps the
// longitude into [-180, 180].
func CheckLatLon(lat, lon float64) (float64, float64) {
	if lat > 90 {
		lat = 180 - lat
		lon += 180
	} else if lat < -90 {
		lat = -180 - lat
		lon += 180
	}
	for lon > 180 {
		lon -= 360
	}
	for lon < -180 {
		lon += 360
	}
	return lat, lon
}

// GreatCircleDistanceKM returns the great-circle distance in kilometers
// between two geographic points (degrees), on a spherical Earth.
func GreatCircleDistanceKM(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadiusKM = 6371.0
	x1, y1, z1 := latLonToVector(lat1, lon1)
	x2, y2, z2 := latLonToVector(lat2, lon2)
	dot := clampUnit(x1*x2 + y1*y2 + z1*z2)
	return earthRadiusKM * math.Acos(dot)
}

func latLonToVector(lat, lon float64) (x, y, z float64) {
	latR := degToRad(lat)
	lonR := degToRad(lon)
	return math.Cos(latR) * math.Cos(lonR), math.Cos(latR) * math.Sin(lonR), math.Sin(latR)
}

func vectorToLatLon(x, y, z float64) (lat, lon float64) {
	n := math.Sqrt(x*x + y*y + z*z)
	if n == 0 {
		return 0, 0
	}
	lat = radToDeg(math.Asin(clampUnit(z / n)))
	lon = radToDeg(math.Atan2(y, x))
	return lat, lon
}

func clampUnit(v float64) float64 {
	return math.Max(-1, math.Min(1, v))
}

func degToRad(d float64) float64 { return d * math.Pi / 180 }
func radToDeg(r float64) float64 { return r * 180 / math.Pi }

func (a FiniteRotation) String() string {
	lat, lon, ang := a.Pole()
	return fmt.Sprintf("pole(%.4f, %.4f) angle %.4f", lat, lon, ang)
}
