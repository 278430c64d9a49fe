package enums

import (
	"fmt"
	"strings"
)

// SizeUnit selects which sizing system a variant's size label is shown in.
type SizeUnit string

const (
	SizeUnitEU SizeUnit = "eu"
	SizeUnitUS SizeUnit = "us"
	SizeUnitCM SizeUnit = "cm"
)

var validSizeUnits = []SizeUnit{
	SizeUnitEU,
	SizeUnitUS,
	SizeUnitCM,
}

func (s SizeUnit) String() string {
	return string(s)
}

// IsValid reports whether the value is a known SizeUnit.
func (s SizeUnit) IsValid() bool {
	for _, candidate := range validSizeUnits {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseSizeUnit is case-insensitive so "EU" from a flag is accepted.
func ParseSizeUnit(value string) (SizeUnit, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range validSizeUnits {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid size unit %q", value)
}
