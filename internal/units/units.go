// Package units provides shared constants and conversion for distance units
package units

import (
	"fmt"
	"strings"
)

// Unit constants
const (
	M  = "m"
	CM = "cm"
	MM = "mm"
	IN = "in"
	FT = "ft"
)

// ValidUnits contains all valid unit values
var ValidUnits = []string{M, CM, MM, IN, FT}

var perMetre = map[string]float64{
	M:  1,
	CM: 100,
	MM: 1000,
	IN: 1 / 0.0254,
	FT: 1 / 0.3048,
}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	_, ok := perMetre[unit]
	return ok
}

// GetValidUnitsString returns a comma-separated string of valid units for error messages
func GetValidUnitsString() string {
	return strings.Join(ValidUnits, ", ")
}

// ConvertDistance converts a distance from metres to the target units.
// Readings are stored in metres; unknown units return metres unchanged.
func ConvertDistance(metres float64, targetUnits string) float64 {
	f, ok := perMetre[targetUnits]
	if !ok {
		return metres
	}
	return metres * f
}

// ParseUnits validates a user-supplied unit name, defaulting to metres when
// empty.
func ParseUnits(s string) (string, error) {
	u := strings.ToLower(strings.TrimSpace(s))
	if u == "" {
		return M, nil
	}
	if !IsValid(u) {
		return "", fmt.Errorf("invalid units %q: must be one of %s", s, GetValidUnitsString())
	}
	return u, nil
}
