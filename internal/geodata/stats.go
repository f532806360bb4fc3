package geodata

import (
	"math"
	"sort"

	"github.com/cwbudde/platefit/internal/rotation"
)

// StageVelocity returns the motion of a point on the given plate across
// the age interval [toAge, fromAge] (fromAge older): speed in mm/yr
// (equivalently km/Myr) and the azimuth of motion in degrees.
func StageVelocity(model *rotation.Model, lat, lon float64, plateID int, fromAge, toAge float64) (speed, azimuth float64, err error) {
	rotFrom, err := model.Rotation(fromAge, plateID, rotation.AnchorPlate)
	if err != nil {
		return 0, 0, err
	}
	rotTo, err := model.Rotation(toAge, plateID, rotation.AnchorPlate)
	if err != nil {
		return 0, 0, err
	}
	stage := rotTo.Compose(rotFrom.Inverse())
	newLat, newLon := stage.RotateLatLon(lat, lon)

	distKM := rotation.GreatCircleDistanceKM(lat, lon, newLat, newLon)
	span := fromAge - toAge
	if span <= 0 {
		span = 1
	}
	return distKM / span, bearing(lat, lon, newLat, newLon), nil
}

// TrenchOrthogonalVelocities computes the trench-orthogonal migration
// velocity (mm/yr) of each resolved trench segment over the interval.
// Positive values are retreat, negative advance.
func TrenchOrthogonalVelocities(model *rotation.Model, segments []TrenchSegment, fromAge, toAge float64) ([]float64, error) {
	out := make([]float64, 0, len(segments))
	for _, seg := range segments {
		speed, azimuth, err := StageVelocity(model, seg.Lat, seg.Lon, seg.PlateID, fromAge, toAge)
		if err != nil {
			return nil, err
		}
		obliquity := foldDegrees(azimuth - seg.NormalAzimuth)
		out = append(out, math.Abs(speed)*-math.Cos(degToRad(obliquity)))
	}
	return out, nil
}

// NetRotationRates returns the per-interval rate (degrees/Myr) at which
// the model's reference frame diverges from the no-net-rotation model,
// sampled across the given timesteps (ascending).
func NetRotationRates(model, nnrModel *rotation.Model, timesteps []float64, refPlateID int) ([]float64, error) {
	deltas := make([]rotation.FiniteRotation, len(timesteps))
	for i, t := range timesteps {
		r, err := model.Rotation(t, refPlateID, rotation.AnchorPlate)
		if err != nil {
			return nil, err
		}
		nnr, err := nnrModel.Rotation(t, refPlateID, rotation.AnchorPlate)
		if err != nil {
			return nil, err
		}
		deltas[i] = r.Compose(nnr.Inverse())
	}
	rates := make([]float64, 0, len(timesteps)-1)
	for i := 1; i < len(timesteps); i++ {
		span := timesteps[i] - timesteps[i-1]
		if span <= 0 {
			continue
		}
		stage := deltas[i].Compose(deltas[i-1].Inverse())
		rates = append(rates, stage.AngleDegrees()/span)
	}
	return rates, nil
}

// HotspotMisfits reconstructs each trail point no older than the given age
// to its formation time and measures the great-circle distance (km) to the
// trail's hotspot. When useUncertainty is set, distances inside a point's
// age-uncertainty radius are halved and those outside doubled. The
// uncertaintyEllipse (Myr) scales an assumed 50 mm/yr drift into a radius
// for points without their own uncertainty.
func HotspotMisfits(model *rotation.Model, trails []HotspotTrail, age float64, useUncertainty bool, uncertaintyEllipse float64) ([]float64, error) {
	var misfits []float64
	for _, trail := range trails {
		for _, pt := range trail.Points {
			if pt.Age > age {
				continue
			}
			rot, err := model.Rotation(pt.Age, pt.PlateID, rotation.AnchorPlate)
			if err != nil {
				return nil, err
			}
			reconLat, reconLon := rot.Inverse().RotateLatLon(pt.Lat, pt.Lon)
			dist := rotation.GreatCircleDistanceKM(reconLat, reconLon, trail.HotspotLat, trail.HotspotLon)
			if useUncertainty {
				radius := pt.AgeUncertainty * 50
				if radius == 0 {
					radius = uncertaintyEllipse * 50
				}
				if dist < radius {
					dist /= 2
				} else {
					dist *= 2
				}
			}
			misfits = append(misfits, dist)
		}
	}
	return misfits, nil
}

// FractureZoneSkews returns the absolute angle (degrees) between the
// predicted plate-motion azimuth and the observed spreading azimuth for
// each pick whose seafloor age covers the step age.
func FractureZoneSkews(model *rotation.Model, picks []FracturePick, fromAge, toAge float64) ([]float64, error) {
	var skews []float64
	for _, pick := range picks {
		if pick.SeafloorAge < fromAge {
			continue
		}
		_, azimuth, err := StageVelocity(model, pick.Lat, pick.Lon, pick.PlateID, fromAge, toAge)
		if err != nil {
			return nil, err
		}
		skew := foldDegrees(azimuth - pick.SpreadingAzimuth)
		// Spreading direction is bidirectional.
		if skew > 90 {
			skew -= 180
		} else if skew < -90 {
			skew += 180
		}
		skews = append(skews, math.Abs(skew))
	}
	return skews, nil
}

// PlateVelocityRMS returns the root-mean-square speed (mm/yr) of the
// continental grid points over the interval.
func PlateVelocityRMS(model *rotation.Model, points []ContinentPoint, fromAge, toAge float64) (float64, bool) {
	var sumSq float64
	var n int
	for _, pt := range points {
		speed, _, err := StageVelocity(model, pt.Lat, pt.Lon, pt.PlateID, fromAge, toAge)
		if err != nil {
			continue
		}
		sumSq += speed * speed
		n++
	}
	if n == 0 {
		return 0, false
	}
	return math.Sqrt(sumSq / float64(n)), true
}

// Mean returns the arithmetic mean of the series.
func Mean(series []float64) float64 {
	if len(series) == 0 {
		return 0
	}
	var sum float64
	for _, v := range series {
		sum += v
	}
	return sum / float64(len(series))
}

// MeanAbs returns the mean of absolute values.
func MeanAbs(series []float64) float64 {
	if len(series) == 0 {
		return 0
	}
	var sum float64
	for _, v := range series {
		sum += math.Abs(v)
	}
	return sum / float64(len(series))
}

// SumAbs returns the sum of absolute values.
func SumAbs(series []float64) float64 {
	var sum float64
	for _, v := range series {
		sum += math.Abs(v)
	}
	return sum
}

// Std returns the population standard deviation.
func Std(series []float64) float64 {
	if len(series) == 0 {
		return 0
	}
	mean := Mean(series)
	var sumSq float64
	for _, v := range series {
		d := v - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(series)))
}

// Median returns the median of the series.
func Median(series []float64) float64 {
	if len(series) == 0 {
		return 0
	}
	sorted := append([]float64{}, series...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

// bearing returns the initial great-circle bearing from point 1 to point 2
// in degrees clockwise from north.
func bearing(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := degToRad(lat1)
	phi2 := degToRad(lat2)
	dLon := degToRad(lon2 - lon1)
	y := math.Sin(dLon) * math.Cos(phi2)
	x := math.Cos(phi1)*math.Sin(phi2) - math.Sin(phi1)*math.Cos(phi2)*math.Cos(dLon)
	return radToDeg(math.Atan2(y, x))
}

// foldDegrees wraps an angle into [-180, 180].
func foldDegrees(deg float64) float64 {
	for deg > 180 {
		deg -= 360
	}
	for deg < -180 {
		deg += 360
	}
	return deg
}

func degToRad(d float64) float64 { return d * math.Pi / 180 }
func radToDeg(r float64) float64 { return r * 180 / math.Pi }
