package model

import "strings"

// ChannelState is the computed legality of a channel.
type ChannelState uint8

const (
	StateInvalid ChannelState = iota
	StateDisable
	StateDFS
	StateEnable
)

func (s ChannelState) String() string {
	switch s {
	case StateInvalid:
		return "invalid"
	case StateDisable:
		return "disable"
	case StateDFS:
		return "dfs"
	case StateEnable:
		return "enable"
	default:
		return "unknown"
	}
}

// ChannelFlags is the per-channel regulatory bitset. Rule flags share the
// same bit positions so they can be copied straight through.
type ChannelFlags uint32

const (
	FlagDisabled ChannelFlags = 1 << iota
	FlagNoIR
	FlagRadar
	FlagIndoorOnly
	FlagNoOFDM
)

// passiveFlags are the flags that put a usable channel into the DFS state.
const passiveFlags = FlagNoIR | FlagRadar

func (f ChannelFlags) String() string {
	if f == 0 {
		return "-"
	}
	var parts []string
	names := []struct {
		flag ChannelFlags
		name string
	}{
		{FlagDisabled, "disabled"},
		{FlagNoIR, "no-ir"},
		{FlagRadar, "radar"},
		{FlagIndoorOnly, "indoor"},
		{FlagNoOFDM, "no-ofdm"},
	}
	for _, n := range names {
		if f&n.flag != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}

// InvalidChannelNum marks a table slot the region does not define.
const InvalidChannelNum = 0

// ChannelEntry is one row of a static channel enumeration table.
type ChannelEntry struct {
	ChanNum    uint8
	CenterFreq uint16
	MinBW      uint16
	MaxBW      uint16
}

// Valid reports whether the region defines this slot.
func (e ChannelEntry) Valid() bool {
	return e.ChanNum != InvalidChannelNum
}

// RegulatoryChannel is the computed, mutable view of one channel.
type RegulatoryChannel struct {
	ChanNum    uint8        `json:"chan_num"`
	CenterFreq uint16       `json:"center_freq"`
	State      ChannelState `json:"state"`
	Flags      ChannelFlags `json:"flags"`
	MinBW      uint16       `json:"min_bw"`
	MaxBW      uint16       `json:"max_bw"`
	TxPower    int16        `json:"tx_power"`
	AntGain    uint8        `json:"ant_gain"`
	PSDFlag    bool         `json:"psd_flag"`
	PSDEIRP    int16        `json:"psd_eirp"`
	NOL        bool         `json:"nol_chan"`
	NOLHistory bool         `json:"nol_history"`
}

// IsDisabled reports whether the channel cannot be used at all.
func (c *RegulatoryChannel) IsDisabled() bool {
	return c.State == StateDisable || c.State == StateInvalid
}

// Disable forces the channel off. Invalid slots keep their state.
func (c *RegulatoryChannel) Disable() {
	c.Flags |= FlagDisabled
	if c.State != StateInvalid {
		c.State = StateDisable
	}
}

// MakePassive adds NO_IR and moves a usable channel into DFS.
func (c *RegulatoryChannel) MakePassive() {
	c.Flags |= FlagNoIR
	if !c.IsDisabled() {
		c.State = StateDFS
	}
}

// IsPassive reports whether the flags require passive operation.
func (c *RegulatoryChannel) IsPassive() bool {
	return c.Flags&passiveFlags != 0
}

// ChannelList is an indexed channel array; index i corresponds to entry i
// of the channel enumeration table it was built from.
type ChannelList []RegulatoryChannel

// Clone returns an independent copy of the list.
func (l ChannelList) Clone() ChannelList {
	if l == nil {
		return nil
	}
	out := make(ChannelList, len(l))
	copy(out, l)
	return out
}

// FindFreq returns the index of the channel with the given center frequency.
func (l ChannelList) FindFreq(freq uint16) (int, bool) {
	for i := range l {
		if l[i].CenterFreq == freq && l[i].State != StateInvalid {
			return i, true
		}
	}
	return 0, false
}

// CountByState tallies channels per state.
func (l ChannelList) CountByState() map[ChannelState]int {
	out := make(map[ChannelState]int, 4)
	for i := range l {
		out[l[i].State]++
	}
	return out
}
