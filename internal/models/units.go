package models

// WeightUnit is a display preference for weights. Stored weights are
// always kilograms regardless of the preference.
type WeightUnit string

const (
	UnitKilograms WeightUnit = "kg"
	UnitPounds    WeightUnit = "lb"
)

const lbPerKg = 2.2046226218487757

// Valid reports whether u is a known weight unit.
func (u WeightUnit) Valid() bool {
	switch u {
	case UnitKilograms, UnitPounds:
		return true
	}
	return false
}

// FromKg converts a canonical kilogram value into the display unit.
func (u WeightUnit) FromKg(kg float64) float64 {
	if u == UnitPounds {
		return kg * lbPerKg
	}
	return kg
}

// ToKg converts a display-unit value into canonical kilograms.
func (u WeightUnit) ToKg(v float64) float64 {
	if u == UnitPounds {
		return v / lbPerKg
	}
	return v
}
