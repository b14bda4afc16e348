package core

import (
	"fmt"
	"slices"

	"github.com/signalsfoundry/regchan/model"
)

// OpClassLayout says how an operating class lists its channels.
type OpClassLayout uint8

const (
	// LayoutPrimary lists 20MHz primaries.
	LayoutPrimary OpClassLayout = iota
	// LayoutUpper lists primaries whose secondary sits above (HT40+).
	LayoutUpper
	// LayoutLower lists primaries whose secondary sits below (HT40-).
	LayoutLower
	// LayoutCenter lists center frequency indices of bonded segments.
	LayoutCenter
)

// OpClass is one row of an IEEE 802.11 operating class table.
type OpClass struct {
	ID        uint8
	StartFreq uint16
	BW        uint16
	Layout    OpClassLayout
	Channels  []uint8
}

// Band reports the band an operating class belongs to.
func (o OpClass) Band() model.Band {
	switch {
	case o.StartFreq < 3000:
		return model.Band2G
	case o.StartFreq >= 5925:
		return model.Band6G
	default:
		return model.Band5G
	}
}

// FreqOf returns the center frequency of channel index ch in this class.
func (o OpClass) FreqOf(ch uint8) uint16 {
	return o.StartFreq + 5*uint16(ch)
}

// covers reports whether primary channel ch belongs to the class.
func (o OpClass) covers(ch uint8) bool {
	switch o.Layout {
	case LayoutCenter:
		_, ok := o.centerFor(ch)
		return ok
	default:
		return slices.Contains(o.Channels, ch)
	}
}

// centerFor returns the listed center index whose segment holds ch.
func (o OpClass) centerFor(ch uint8) (uint8, bool) {
	half := int(o.BW/10) - 2
	for _, c := range o.Channels {
		if int(ch) >= int(c)-half && int(ch) <= int(c)+half {
			return c, true
		}
	}
	return 0, false
}

func seq(from, to, step int) []uint8 {
	var out []uint8
	for c := from; c <= to; c += step {
		out = append(out, uint8(c))
	}
	return out
}

var globalOpClasses = []OpClass{
	{81, 2407, 20, LayoutPrimary, seq(1, 13, 1)},
	{82, 2414, 20, LayoutPrimary, []uint8{14}},
	{83, 2407, 40, LayoutUpper, seq(1, 9, 1)},
	{84, 2407, 40, LayoutLower, seq(5, 13, 1)},
	{115, 5000, 20, LayoutPrimary, []uint8{36, 40, 44, 48}},
	{116, 5000, 40, LayoutUpper, []uint8{36, 44}},
	{117, 5000, 40, LayoutLower, []uint8{40, 48}},
	{118, 5000, 20, LayoutPrimary, []uint8{52, 56, 60, 64}},
	{119, 5000, 40, LayoutUpper, []uint8{52, 60}},
	{120, 5000, 40, LayoutLower, []uint8{56, 64}},
	{121, 5000, 20, LayoutPrimary, seq(100, 144, 4)},
	{122, 5000, 40, LayoutUpper, seq(100, 140, 8)},
	{123, 5000, 40, LayoutLower, seq(104, 144, 8)},
	{124, 5000, 20, LayoutPrimary, []uint8{149, 153, 157, 161}},
	{125, 5000, 20, LayoutPrimary, seq(149, 177, 4)},
	{126, 5000, 40, LayoutUpper, []uint8{149, 157, 165, 173}},
	{127, 5000, 40, LayoutLower, []uint8{153, 161, 169, 177}},
	{128, 5000, 80, LayoutCenter, []uint8{42, 58, 106, 122, 138, 155, 171}},
	{129, 5000, 160, LayoutCenter, []uint8{50, 114, 163}},
	{131, 5950, 20, LayoutPrimary, seq(1, 233, 4)},
	{132, 5950, 40, LayoutCenter, seq(3, 227, 8)},
	{133, 5950, 80, LayoutCenter, seq(7, 215, 16)},
	{134, 5950, 160, LayoutCenter, seq(15, 207, 32)},
	{136, 5925, 20, LayoutPrimary, []uint8{2}},
}

var usOpClasses = []OpClass{
	{1, 5000, 20, LayoutPrimary, []uint8{36, 40, 44, 48}},
	{2, 5000, 20, LayoutPrimary, []uint8{52, 56, 60, 64}},
	{3, 5000, 20, LayoutPrimary, []uint8{149, 153, 157, 161}},
	{4, 5000, 20, LayoutPrimary, seq(100, 144, 4)},
	{5, 5000, 20, LayoutPrimary, seq(149, 165, 4)},
	{12, 2407, 20, LayoutPrimary, seq(1, 11, 1)},
	{22, 5000, 40, LayoutUpper, []uint8{36, 44}},
	{23, 5000, 40, LayoutUpper, []uint8{52, 60}},
	{24, 5000, 40, LayoutUpper, seq(100, 140, 8)},
	{26, 5000, 40, LayoutUpper, []uint8{149, 157}},
	{27, 5000, 40, LayoutLower, []uint8{40, 48}},
	{28, 5000, 40, LayoutLower, []uint8{56, 64}},
	{29, 5000, 40, LayoutLower, seq(104, 144, 8)},
	{31, 5000, 40, LayoutLower, []uint8{153, 161}},
	{32, 2407, 40, LayoutUpper, seq(1, 7, 1)},
	{33, 2407, 40, LayoutLower, seq(5, 11, 1)},
	{128, 5000, 80, LayoutCenter, []uint8{42, 58, 106, 122, 138, 155, 171}},
	{129, 5000, 160, LayoutCenter, []uint8{50, 114, 163}},
}

var euOpClasses = []OpClass{
	{1, 5000, 20, LayoutPrimary, []uint8{36, 40, 44, 48}},
	{2, 5000, 20, LayoutPrimary, []uint8{52, 56, 60, 64}},
	{3, 5000, 20, LayoutPrimary, seq(100, 140, 4)},
	{4, 2407, 20, LayoutPrimary, seq(1, 13, 1)},
	{5, 5000, 40, LayoutUpper, []uint8{36, 44}},
	{6, 5000, 40, LayoutUpper, []uint8{52, 60}},
	{7, 5000, 40, LayoutUpper, seq(100, 132, 8)},
	{8, 5000, 40, LayoutLower, []uint8{40, 48}},
	{9, 5000, 40, LayoutLower, []uint8{56, 64}},
	{10, 5000, 40, LayoutLower, seq(104, 136, 8)},
	{11, 2407, 40, LayoutUpper, seq(1, 9, 1)},
	{12, 2407, 40, LayoutLower, seq(5, 13, 1)},
	{17, 5000, 20, LayoutPrimary, seq(149, 169, 4)},
	{128, 5000, 80, LayoutCenter, []uint8{42, 58, 106, 122, 138, 155}},
	{129, 5000, 160, LayoutCenter, []uint8{50, 114}},
}

var jpOpClasses = []OpClass{
	{1, 5000, 20, LayoutPrimary, []uint8{36, 40, 44, 48}},
	{30, 2407, 20, LayoutPrimary, seq(1, 13, 1)},
	{31, 2414, 20, LayoutPrimary, []uint8{14}},
	{32, 5000, 20, LayoutPrimary, []uint8{52, 56, 60, 64}},
	{34, 5000, 20, LayoutPrimary, seq(100, 140, 4)},
	{36, 5000, 40, LayoutUpper, []uint8{36, 44}},
	{37, 5000, 40, LayoutUpper, []uint8{52, 60}},
	{39, 5000, 40, LayoutUpper, seq(100, 132, 8)},
	{41, 5000, 40, LayoutLower, []uint8{40, 48}},
	{42, 5000, 40, LayoutLower, []uint8{56, 64}},
	{44, 5000, 40, LayoutLower, seq(104, 136, 8)},
	{56, 2407, 40, LayoutUpper, seq(1, 9, 1)},
	{57, 2407, 40, LayoutLower, seq(5, 13, 1)},
	{128, 5000, 80, LayoutCenter, []uint8{42, 58, 106, 122, 138}},
	{129, 5000, 160, LayoutCenter, []uint8{50, 114}},
}

var cnOpClasses = []OpClass{
	{1, 5000, 20, LayoutPrimary, []uint8{36, 40, 44, 48}},
	{2, 5000, 20, LayoutPrimary, []uint8{52, 56, 60, 64}},
	{3, 5000, 20, LayoutPrimary, seq(149, 165, 4)},
	{4, 5000, 40, LayoutUpper, []uint8{36, 44}},
	{5, 5000, 40, LayoutUpper, []uint8{52, 60}},
	{6, 5000, 40, LayoutUpper, []uint8{149, 157}},
	{7, 2407, 20, LayoutPrimary, seq(1, 13, 1)},
	{8, 2407, 40, LayoutUpper, seq(1, 9, 1)},
	{9, 2407, 40, LayoutLower, seq(5, 13, 1)},
	{128, 5000, 80, LayoutCenter, []uint8{42, 58, 155}},
	{129, 5000, 160, LayoutCenter, []uint8{50}},
}

var euCountries = map[string]struct{}{
	"AT": {}, "BE": {}, "BG": {}, "CH": {}, "CY": {}, "CZ": {}, "DE": {}, "DK": {},
	"EE": {}, "ES": {}, "FI": {}, "FR": {}, "GB": {}, "GR": {}, "HR": {}, "HU": {},
	"IE": {}, "IS": {}, "IT": {}, "LI": {}, "LT": {}, "LU": {}, "LV": {}, "MT": {},
	"NL": {}, "NO": {}, "PL": {}, "PT": {}, "RO": {}, "SE": {}, "SI": {}, "SK": {},
}

// opClassTable selects the regional table for a country, falling back to
// the global one.
func opClassTable(country string) []OpClass {
	switch c := model.NormalizeAlpha2(country); c {
	case "US":
		return usOpClasses
	case "JP":
		return jpOpClasses
	case "CN":
		return cnOpClasses
	default:
		if _, ok := euCountries[c]; ok {
			return euOpClasses
		}
		return globalOpClasses
	}
}

// OpClassFromChannel returns the first operating class of the country's
// table that carries primary channel ch of band at bandwidth bw.
func OpClassFromChannel(country string, band model.Band, ch uint8, bw uint16) (uint8, bool) {
	for _, o := range opClassTable(country) {
		if o.Band() == band && o.BW == bw && o.covers(ch) {
			return o.ID, true
		}
	}
	return 0, false
}

// LookupOpClass returns a class of the country's table by id.
func LookupOpClass(country string, id uint8) (OpClass, bool) {
	for _, o := range opClassTable(country) {
		if o.ID == id {
			return o, true
		}
	}
	return OpClass{}, false
}

// GlobalOpClass returns a class of the global table by id.
func GlobalOpClass(id uint8) (OpClass, bool) {
	return LookupOpClass("", id)
}

// SubChannels expands a center frequency index of a global operating class
// into its 20MHz channels.
func SubChannels(opClass, cfi uint8) ([]uint8, error) {
	o, ok := GlobalOpClass(opClass)
	if !ok {
		return nil, fmt.Errorf("%w: operating class %d", model.ErrInvalidChannel, opClass)
	}
	if o.Layout != LayoutCenter {
		if !slices.Contains(o.Channels, cfi) {
			return nil, fmt.Errorf("%w: channel %d not in class %d", model.ErrInvalidChannel, cfi, opClass)
		}
		return []uint8{cfi}, nil
	}
	if !slices.Contains(o.Channels, cfi) {
		return nil, fmt.Errorf("%w: cfi %d not in class %d", model.ErrInvalidChannel, cfi, opClass)
	}
	n := int(o.BW / 20)
	first := int(cfi) - 2*(n-1)
	out := make([]uint8, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, uint8(first+4*i))
	}
	return out, nil
}

// bondedCenterClass holds the global center-indexed classes per band/bw.
func bondedCenterClass(band model.Band, bw uint16) (OpClass, bool) {
	var id uint8
	switch {
	case band == model.Band5G && bw == 80:
		id = 128
	case band == model.Band5G && bw == 160:
		id = 129
	case band == model.Band6G && bw == 40:
		id = 132
	case band == model.Band6G && bw == 80:
		id = 133
	case band == model.Band6G && bw == 160:
		id = 134
	case band == model.Band5G && bw == 40:
		return fiveGHz40, true
	default:
		return OpClass{}, false
	}
	return GlobalOpClass(id)
}

// fiveGHz40 is the union of the 5GHz HT40 pairs, expressed as centers.
var fiveGHz40 = OpClass{
	ID: 0, StartFreq: 5000, BW: 40, Layout: LayoutCenter,
	Channels: []uint8{38, 46, 54, 62, 102, 110, 118, 126, 134, 142, 151, 159, 167, 175},
}

// BondedSpan returns the frequency span occupied by channel ch (center
// freq) when operated at bw within its bonded segment. Channels without a
// bonded segment at bw are treated as centered on their own frequency.
func BondedSpan(band model.Band, ch uint8, freq, bw uint16) (uint16, uint16) {
	half := bw / 2
	if bw > 20 {
		if o, ok := bondedCenterClass(band, bw); ok {
			if c, ok := o.centerFor(ch); ok {
				center := o.FreqOf(c)
				return center - half, center + half
			}
		}
	}
	return freq - half, freq + half
}
