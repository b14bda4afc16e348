package model

import "strings"

// DFSRegion selects the radar-detection rules and the channel enumeration
// table variant for a country.
type DFSRegion uint8

const (
	DFSRegionUninit DFSRegion = iota
	DFSRegionFCC
	DFSRegionETSI
	DFSRegionMKK
	DFSRegionCN
	DFSRegionKR
)

func (r DFSRegion) String() string {
	switch r {
	case DFSRegionFCC:
		return "fcc"
	case DFSRegionETSI:
		return "etsi"
	case DFSRegionMKK:
		return "mkk"
	case DFSRegionCN:
		return "cn"
	case DFSRegionKR:
		return "kr"
	default:
		return "uninit"
	}
}

// ParseDFSRegion maps a textual region name to its enum, returning
// DFSRegionUninit when the name is not recognised.
func ParseDFSRegion(s string) DFSRegion {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fcc":
		return DFSRegionFCC
	case "etsi":
		return DFSRegionETSI
	case "mkk", "jp":
		return DFSRegionMKK
	case "cn":
		return DFSRegionCN
	case "kr":
		return DFSRegionKR
	default:
		return DFSRegionUninit
	}
}
