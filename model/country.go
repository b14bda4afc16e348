package model

import "strings"

// WorldAlpha2 is the world-mode country code.
const WorldAlpha2 = "00"

// CountrySource records which actor set the current country.
type CountrySource uint8

const (
	SourceUnknown CountrySource = iota
	SourceDriver
	SourceCore
	Source11D
	SourceUserspace
)

func (s CountrySource) String() string {
	switch s {
	case SourceDriver:
		return "driver"
	case SourceCore:
		return "core"
	case Source11D:
		return "11d"
	case SourceUserspace:
		return "userspace"
	default:
		return "unknown"
	}
}

// PendingSource is the country-change request awaiting a master list on a
// radio. A radio holds at most one.
type PendingSource uint8

const (
	PendingNone PendingSource = iota
	PendingUser
	PendingInit
	Pending11D
	PendingWorld
)

func (p PendingSource) String() string {
	switch p {
	case PendingUser:
		return "user"
	case PendingInit:
		return "init"
	case Pending11D:
		return "11d"
	case PendingWorld:
		return "world"
	default:
		return "none"
	}
}

// CountryState is the psoc-wide country bookkeeping.
type CountryState struct {
	Current string
	Default string
	Source  CountrySource
	UserSet bool
}

// NormalizeAlpha2 upper-cases and trims a country code.
func NormalizeAlpha2(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// IsWorld reports whether alpha2 is the world-mode code.
func IsWorld(alpha2 string) bool {
	return alpha2 == WorldAlpha2
}

// VdevMode is the operating mode of a virtual interface.
type VdevMode uint8

const (
	VdevSTA VdevMode = iota
	VdevP2PClient
	VdevAP
	VdevP2PGO
	VdevMonitor
)

// IsMaster reports whether the vdev beacons (AP or P2P GO).
func (m VdevMode) IsMaster() bool {
	return m == VdevAP || m == VdevP2PGO
}

// IsScanDriver reports whether the vdev can drive 11d scans.
func (m VdevMode) IsScanDriver() bool {
	return m == VdevSTA || m == VdevP2PClient
}
