package core

import (
	"fmt"

	"github.com/signalsfoundry/regchan/model"
)

// Channel enumeration layout. Every list the engine computes is indexed
// by these positions.
const (
	Min24GHzChannel = 0
	Max24GHzChannel = 13
	Min49GHzChannel = 14
	Max49GHzChannel = 17
	Min5GHzChannel  = 18
	Max5GHzChannel  = 45
	Min6GHzChannel  = 46
	Max6GHzChannel  = 105

	NumChannels     = Max6GHzChannel + 1
	Num6GHzChannels = Max6GHzChannel - Min6GHzChannel + 1
)

// Fixed center frequencies referenced by the modifier pipeline.
const (
	Chan12Freq      = 2467
	Chan13Freq      = 2472
	Chan144Freq     = 5720
	Lower6GEdgeFreq = 5935
	Upper6GEdgeFreq = 7115
)

// ChannelTable is an immutable channel enumeration table for one DFS
// region. Obtain one with TableFor.
type ChannelTable struct {
	name    string
	entries [NumChannels]model.ChannelEntry
}

// Name identifies the regional variant.
func (t *ChannelTable) Name() string { return t.name }

// Entry returns the static entry at index i.
func (t *ChannelTable) Entry(i int) model.ChannelEntry {
	return t.entries[i]
}

// IndexOfFreq returns the enumeration index for a center frequency.
func (t *ChannelTable) IndexOfFreq(freq uint16) (int, error) {
	for i := range t.entries {
		if t.entries[i].Valid() && t.entries[i].CenterFreq == freq {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: freq %d", model.ErrInvalidChannel, freq)
}

// IndexOfChannel returns the enumeration index of chan within band.
func (t *ChannelTable) IndexOfChannel(band model.Band, ch uint8) (int, error) {
	lo, hi := BandIndexRange(band)
	for i := lo; i <= hi; i++ {
		if t.entries[i].Valid() && t.entries[i].ChanNum == ch {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: %s channel %d", model.ErrInvalidChannel, band, ch)
}

// NewMasterList returns a list initialised from the table with every
// valid channel disabled and every undefined slot invalid.
func (t *ChannelTable) NewMasterList() model.ChannelList {
	list := make(model.ChannelList, NumChannels)
	for i := range list {
		e := t.entries[i]
		list[i] = model.RegulatoryChannel{
			ChanNum:    e.ChanNum,
			CenterFreq: e.CenterFreq,
			State:      model.StateDisable,
			Flags:      model.FlagDisabled,
		}
		if !e.Valid() {
			list[i].State = model.StateInvalid
		}
	}
	return list
}

// BandIndexRange returns the inclusive enumeration range for band. The
// 5GHz range excludes the 4.9GHz slots.
func BandIndexRange(band model.Band) (int, int) {
	switch band {
	case model.Band2G:
		return Min24GHzChannel, Max24GHzChannel
	case model.Band6G:
		return Min6GHzChannel, Max6GHzChannel
	default:
		return Min5GHzChannel, Max5GHzChannel
	}
}

// BandOfIndex classifies an enumeration index.
func BandOfIndex(i int) model.Band {
	switch {
	case i <= Max24GHzChannel:
		return model.Band2G
	case i >= Min6GHzChannel:
		return model.Band6G
	default:
		return model.Band5G
	}
}

// Is49GHzIndex reports whether i is a 4.9GHz public-safety slot.
func Is49GHzIndex(i int) bool {
	return i >= Min49GHzChannel && i <= Max49GHzChannel
}

var (
	tableUS     = buildTable("us", func(e *model.ChannelEntry) { drop(e, 14, 184, 188, 192, 196) })
	tableEU     = buildTable("eu", func(e *model.ChannelEntry) { drop(e, 14, 184, 188, 192, 196, 169, 173, 177) })
	tableJP     = buildTable("jp", func(e *model.ChannelEntry) { drop(e, 169, 173, 177) })
	tableCN     = buildTable("cn", func(e *model.ChannelEntry) { drop(e, 14, 184, 188, 192, 196, 169, 173, 177) })
	tableGlobal = buildTable("global", nil)
)

// TableFor selects the regional enumeration table. It is called once when
// the DFS region of a rule set is known.
func TableFor(region model.DFSRegion) *ChannelTable {
	switch region {
	case model.DFSRegionFCC:
		return tableUS
	case model.DFSRegionETSI:
		return tableEU
	case model.DFSRegionMKK:
		return tableJP
	case model.DFSRegionCN:
		return tableCN
	default:
		return tableGlobal
	}
}

// drop invalidates entries whose channel number is listed. 6GHz numbers
// overlap 5GHz ones, so callers only ever pass 2.4/4.9/5GHz numbers and
// drop skips 6GHz slots.
func drop(e *model.ChannelEntry, chans ...uint8) {
	if e.CenterFreq >= model.Min6GHzFreq {
		return
	}
	for _, c := range chans {
		if e.ChanNum == c {
			e.ChanNum = model.InvalidChannelNum
			return
		}
	}
}

func buildTable(name string, tweak func(*model.ChannelEntry)) *ChannelTable {
	t := &ChannelTable{name: name}
	i := 0
	add := func(e model.ChannelEntry) {
		if tweak != nil {
			tweak(&e)
		}
		t.entries[i] = e
		i++
	}

	for ch := uint8(1); ch <= 13; ch++ {
		add(model.ChannelEntry{ChanNum: ch, CenterFreq: 2407 + 5*uint16(ch), MinBW: 2, MaxBW: 40})
	}
	add(model.ChannelEntry{ChanNum: 14, CenterFreq: 2484, MinBW: 2, MaxBW: 20})

	for _, ch := range []uint8{184, 188, 192, 196} {
		add(model.ChannelEntry{ChanNum: ch, CenterFreq: 4000 + 5*uint16(ch), MinBW: 2, MaxBW: 20})
	}

	for _, ch := range fiveGHzChannels {
		maxBW := uint16(160)
		if ch >= 132 && ch <= 144 {
			maxBW = 80
		}
		add(model.ChannelEntry{ChanNum: ch, CenterFreq: 5000 + 5*uint16(ch), MinBW: 2, MaxBW: maxBW})
	}

	add(model.ChannelEntry{ChanNum: 2, CenterFreq: Lower6GEdgeFreq, MinBW: 20, MaxBW: 20})
	for ch := 1; ch <= 233; ch += 4 {
		add(model.ChannelEntry{ChanNum: uint8(ch), CenterFreq: 5950 + 5*uint16(ch), MinBW: 20, MaxBW: 160})
	}

	if i != NumChannels {
		panic(fmt.Sprintf("channel table %s: built %d entries, want %d", name, i, NumChannels))
	}
	return t
}

var fiveGHzChannels = []uint8{
	36, 40, 44, 48, 52, 56, 60, 64,
	100, 104, 108, 112, 116, 120, 124, 128, 132, 136, 140, 144,
	149, 153, 157, 161, 165, 169, 173, 177,
}
