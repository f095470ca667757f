package geo

import "math"

// WGS84 ellipsoid and UTM constants.
const (
	semiMajor     = 6378137.0
	flattening    = 1 / 298.257223563
	utmScale      = 0.9996
	falseEasting  = 500000.0
	falseNorthing = 10000000.0
)

var (
	eccSq      = flattening * (2 - flattening)
	eccPrimeSq = eccSq / (1 - eccSq)
)

// UTMZone returns the UTM zone (1..60) containing longitude lon.
// Zone 1 starts at -180°; +180° folds into zone 60.
func UTMZone(lon float64) int {
	z := int(math.Floor((lon+180)/6)) + 1
	if z < 1 {
		z = 1
	}
	if z > 60 {
		z = 60
	}
	return z
}

// UTMFromLonLat picks the UTM CRS for a WGS84 coordinate: 326zz when lat >= 0, 327zz otherwise.
func UTMFromLonLat(lon, lat float64) CRS {
	base := 32600
	if lat < 0 {
		base = 32700
	}
	return FromEPSG(base + UTMZone(lon))
}

func centralMeridian(zone int) float64 { return float64(zone-1)*6 - 180 + 3 }

func meridianArc(phi float64) float64 {
	e2 := eccSq
	e4 := e2 * e2
	e6 := e4 * e2
	return semiMajor * ((1-e2/4-3*e4/64-5*e6/256)*phi -
		(3*e2/8+3*e4/32+45*e6/1024)*math.Sin(2*phi) +
		(15*e4/256+45*e6/1024)*math.Sin(4*phi) -
		(35*e6/3072)*math.Sin(6*phi))
}

// lonLatToUTM projects a WGS84 coordinate onto the given zone (ellipsoidal transverse Mercator).
func lonLatToUTM(lon, lat float64, zone int, north bool) (x, y float64) {
	phi := lat * math.Pi / 180
	lam := (lon - centralMeridian(zone)) * math.Pi / 180

	sin, cos, tan := math.Sin(phi), math.Cos(phi), math.Tan(phi)
	n := semiMajor / math.Sqrt(1-eccSq*sin*sin)
	t := tan * tan
	c := eccPrimeSq * cos * cos
	a := cos * lam
	m := meridianArc(phi)

	x = utmScale*n*(a+(1-t+c)*math.Pow(a, 3)/6+
		(5-18*t+t*t+72*c-58*eccPrimeSq)*math.Pow(a, 5)/120) + falseEasting
	y = utmScale * (m + n*tan*(a*a/2+
		(5-t+9*c+4*c*c)*math.Pow(a, 4)/24+
		(61-58*t+t*t+600*c-330*eccPrimeSq)*math.Pow(a, 6)/720))
	if !north {
		y += falseNorthing
	}
	return x, y
}

// utmToLonLat is the inverse of lonLatToUTM.
func utmToLonLat(x, y float64, zone int, north bool) (lon, lat float64) {
	x -= falseEasting
	if !north {
		y -= falseNorthing
	}
	e2 := eccSq
	e4 := e2 * e2
	e6 := e4 * e2
	mu := y / utmScale / (semiMajor * (1 - e2/4 - 3*e4/64 - 5*e6/256))
	e1 := (1 - math.Sqrt(1-e2)) / (1 + math.Sqrt(1-e2))

	phi1 := mu + (3*e1/2-27*math.Pow(e1, 3)/32)*math.Sin(2*mu) +
		(21*e1*e1/16-55*math.Pow(e1, 4)/32)*math.Sin(4*mu) +
		(151*math.Pow(e1, 3)/96)*math.Sin(6*mu) +
		(1097*math.Pow(e1, 4)/512)*math.Sin(8*mu)

	sin, cos, tan := math.Sin(phi1), math.Cos(phi1), math.Tan(phi1)
	c1 := eccPrimeSq * cos * cos
	t1 := tan * tan
	n1 := semiMajor / math.Sqrt(1-e2*sin*sin)
	r1 := semiMajor * (1 - e2) / math.Pow(1-e2*sin*sin, 1.5)
	d := x / (n1 * utmScale)

	phi := phi1 - (n1*tan/r1)*(d*d/2-
		(5+3*t1+10*c1-4*c1*c1-9*eccPrimeSq)*math.Pow(d, 4)/24+
		(61+90*t1+298*c1+45*t1*t1-252*eccPrimeSq-3*c1*c1)*math.Pow(d, 6)/720)
	lam := (d - (1+2*t1+c1)*math.Pow(d, 3)/6 +
		(5-2*c1+28*t1-3*c1*c1+8*eccPrimeSq+24*t1*t1)*math.Pow(d, 5)/120) / cos

	return centralMeridian(zone) + lam*180/math.Pi, phi * 180 / math.Pi
}
