package dictionary

import (
	"math"
)

// ConvertFunc is a pure scalar unit conversion from the instrument's
// native unit to the canonical unit.
type ConvertFunc func(float64) float64

// DeriveFunc computes a derived variable from canonical co-inputs,
// keyed by canonical variable name. All inputs are already in canonical
// units when the function runs.
type DeriveFunc func(inputs map[string]float64) float64

var converters = map[string]ConvertFunc{
	"identity":             func(v float64) float64 { return v },
	"milli":                func(v float64) float64 { return v * 1e-3 },
	"centi":                func(v float64) float64 { return v * 1e-2 },
	"ms_per_cm_to_s_per_m": func(v float64) float64 { return v * 0.1 },
	"us_per_cm_to_s_per_m": func(v float64) float64 { return v * 1e-4 },
}

var deriveFuncs = map[string]DeriveFunc{
	"practical_salinity_pss78": practicalSalinityPSS78,
}

// Reference conductivity of standard seawater (S=35, t=15 degC, p=0)
// in mS/cm, used to form the conductivity ratio for PSS-78.
const referenceConductivity = 42.914

// PSS-78 polynomial coefficients.
var (
	pssA = [6]float64{0.0080, -0.1692, 25.3851, 14.0941, -7.0261, 2.7081}
	pssB = [6]float64{0.0005, -0.0056, -0.0066, -0.0375, 0.0636, -0.0144}
	pssC = [5]float64{0.6766097, 2.00564e-2, 1.104259e-4, -6.9698e-7, 1.0031e-9}
)

const pssK = 0.0162

// practicalSalinityPSS78 computes practical salinity from conductivity
// (S/m), temperature (ITS-68 degC) and pressure (dbar) using the
// UNESCO PSS-78 equation. Valid for 2 <= S <= 42; outside that band the
// polynomial extrapolates, which is acceptable for QC-flagged data.
func practicalSalinityPSS78(inputs map[string]float64) float64 {
	cond := inputs["sea_water_electrical_conductivity"] * 10 // S/m -> mS/cm
	temp := inputs["sea_water_temperature"]
	pres := inputs["sea_water_pressure"]

	r := cond / referenceConductivity
	if r <= 0 {
		return 0
	}

	// rt: temperature dependence of standard seawater conductivity.
	rt := pssC[0] + temp*(pssC[1]+temp*(pssC[2]+temp*(pssC[3]+temp*pssC[4])))

	// Rp: pressure correction term.
	e1, e2, e3 := 2.070e-5, -6.370e-10, 3.989e-15
	d1, d2 := 3.426e-2, 4.464e-4
	d3, d4 := 4.215e-1, -3.107e-3
	rp := 1 + pres*(e1+pres*(e2+pres*e3))/(1+d1*temp+d2*temp*temp+(d3+d4*temp)*r)

	rtRatio := r / (rp * rt)
	sqrtRt := math.Sqrt(rtRatio)

	var s, ds float64
	pow := 1.0
	for i := 0; i < 6; i++ {
		s += pssA[i] * pow
		ds += pssB[i] * pow
		pow *= sqrtRt
	}
	s += (temp - 15) / (1 + pssK*(temp-15)) * ds
	return s
}
