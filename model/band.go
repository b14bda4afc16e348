package model

// Band identifies a regulatory frequency band.
type Band uint8

const (
	Band2G Band = iota
	Band5G
	Band6G
)

func (b Band) String() string {
	switch b {
	case Band2G:
		return "2g"
	case Band5G:
		return "5g"
	case Band6G:
		return "6g"
	default:
		return "unknown"
	}
}

// BandMask is a bitmap of Band values, indexed by 1<<Band.
type BandMask uint8

// AllBands enables 2.4, 5 (including 4.9) and 6 GHz.
const AllBands = BandMask(1<<Band2G | 1<<Band5G | 1<<Band6G)

// Has reports whether b is set in the mask.
func (m BandMask) Has(b Band) bool {
	return m&(1<<b) != 0
}

// MaskOf builds a mask from the provided bands.
func MaskOf(bands ...Band) BandMask {
	var m BandMask
	for _, b := range bands {
		m |= 1 << b
	}
	return m
}

// Frequency boundaries in MHz.
const (
	Min24GHzFreq = 2412
	Max24GHzFreq = 2484
	Min49GHzFreq = 4900
	Max49GHzFreq = 5000
	Min5GHzFreq  = 5150
	Max5GHzFreq  = 5925
	Min6GHzFreq  = 5935
	Max6GHzFreq  = 7115
)

// BandOfFreq classifies a center frequency. 4.9GHz public-safety
// channels report Band5G because they share the 5GHz rule array.
func BandOfFreq(freq uint16) (Band, bool) {
	switch {
	case freq >= Min24GHzFreq && freq <= Max24GHzFreq:
		return Band2G, true
	case freq >= Min49GHzFreq && freq < Min6GHzFreq:
		return Band5G, true
	case freq >= Min6GHzFreq && freq <= Max6GHzFreq:
		return Band6G, true
	default:
		return 0, false
	}
}

// FreqRange is an inclusive [Low, High] MHz interval.
type FreqRange struct {
	Low  uint16 `yaml:"low" json:"low"`
	High uint16 `yaml:"high" json:"high"`
}

// Contains reports whether freq lies within the range, inclusive.
func (r FreqRange) Contains(freq uint16) bool {
	return freq >= r.Low && freq <= r.High
}

// Overlaps reports whether the open interval (lo, hi) intersects the range.
// Touching edges do not count as overlap.
func (r FreqRange) Overlaps(lo, hi uint16) bool {
	return r.Low < hi && r.High > lo
}

// UNIIMask selects 5GHz UNII sub-bands.
type UNIIMask uint8

const (
	UNII1  UNIIMask = 1 << iota // 5150-5250
	UNII2A                      // 5250-5350
)
