package landfall

import (
	"math"

	"github.com/gonum/matrix/mat64"
)

// R1 rotation about the 1st axis.
func R1(x float64) *mat64.Dense {
	s, c := math.Sincos(x)
	return mat64.NewDense(3, 3, []float64{1, 0, 0, 0, c, s, 0, -s, c})
}

// R2 rotation about the 2nd axis.
func R2(x float64) *mat64.Dense {
	s, c := math.Sincos(x)
	return mat64.NewDense(3, 3, []float64{c, 0, -s, 0, 1, 0, s, 0, c})
}

// R3 rotation about the 3rd axis.
func R3(x float64) *mat64.Dense {
	s, c := math.Sincos(x)
	return mat64.NewDense(3, 3, []float64{c, s, 0, -s, c, 0, 0, 0, 1})
}

// MxV33 multiplies a matrix with a vector. Note that there is no dimension check!
func MxV33(m mat64.Matrix, v []float64) (o []float64) {
	vVec := mat64.NewVector(len(v), v)
	var rVec mat64.Vector
	rVec.MulVec(m, vVec)
	return []float64{rVec.At(0, 0), rVec.At(1, 0), rVec.At(2, 0)}
}

// worldToBody expresses the world vector v in the vehicle body frame, given the
// body-to-world attitude matrix.
func worldToBody(attitude *mat64.Dense, v []float64) []float64 {
	return MxV33(attitude.T(), v)
}

// bodyToWorld expresses the body vector v in the world frame.
func bodyToWorld(attitude *mat64.Dense, v []float64) []float64 {
	return MxV33(attitude, v)
}

// GEO2BCBF converts latitude/longitude (degrees) and altitude above the datum
// (meters) to the body-centered, body-fixed frame.
func GEO2BCBF(body CelestialBody, lat, lon, alt float64) []float64 {
	sLon, cLon := math.Sincos(lon * deg2rad)
	sLat, cLat := math.Sincos(lat * deg2rad)
	r := body.Radius + alt
	return []float64{r * cLat * cLon, r * cLat * sLon, r * sLat}
}

// BCI2BCBF converts the provided inertial vector to the body-fixed frame for
// the rotation angle θ given in radians.
func BCI2BCBF(R []float64, θ float64) []float64 {
	return MxV33(R3(θ), R)
}

// BCBF2BCI converts the provided body-fixed vector to the inertial frame for
// the rotation angle θ given in radians.
func BCBF2BCI(R []float64, θ float64) []float64 {
	return BCI2BCBF(R, -θ)
}
