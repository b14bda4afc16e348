package core

import "github.com/signalsfoundry/regchan/model"

// SixGHzSupport selects between a radio with 6GHz capability and one
// without. The choice is made once, when the engine is constructed.
type SixGHzSupport interface {
	Enabled() bool
	// Populate builds the per AP type and per AP type × client type
	// master lists.
	Populate(table *ChannelTable, rs *model.RuleSet, minBW uint16, m *MasterLists)
	// Merge writes the 6GHz list for apType into the 6GHz slots of dst,
	// substituting afc for the standard-power list when it is non-nil.
	Merge(dst model.ChannelList, m *MasterLists, apType model.APPowerType, afc model.ChannelList)
}

// NewSixGHzSupport returns the full implementation when enabled is set
// and a no-op otherwise.
func NewSixGHzSupport(enabled bool) SixGHzSupport {
	if enabled {
		return sixGHz{}
	}
	return NoSixGHz()
}

// NoSixGHz returns the implementation for radios without 6GHz.
func NoSixGHz() SixGHzSupport { return noSixGHz{} }

type sixGHz struct{}

func (sixGHz) Enabled() bool { return true }

func (sixGHz) Populate(table *ChannelTable, rs *model.RuleSet, minBW uint16, m *MasterLists) {
	ceiling := ceilingOr(rs.MaxBW6G, MaxBW6GCeiling)
	for ap := range rs.Rules6GAP {
		UpdateMaxBWPerRule(rs.Rules6GAP[ap], ceiling)
		m.AP6G[ap] = New6GList(table)
		Populate6GBand(table, rs.Rules6GAP[ap], minBW, m.AP6G[ap])

		for ct := range rs.Rules6GClient[ap] {
			UpdateMaxBWPerRule(rs.Rules6GClient[ap][ct], ceiling)
			m.Client6G[ap][ct] = New6GList(table)
			Populate6GBand(table, rs.Rules6GClient[ap][ct], minBW, m.Client6G[ap][ct])
		}
	}
}

func (sixGHz) Merge(dst model.ChannelList, m *MasterLists, apType model.APPowerType, afc model.ChannelList) {
	if apType >= model.NumAPTypes {
		return
	}
	src := m.AP6G[apType]
	if apType == model.APTypeSP && afc != nil {
		src = afc
	}
	if src == nil {
		return
	}
	copy(dst[Min6GHzChannel:Max6GHzChannel+1], src)
}

type noSixGHz struct{}

func (noSixGHz) Enabled() bool { return false }

func (noSixGHz) Populate(*ChannelTable, *model.RuleSet, uint16, *MasterLists) {}

func (noSixGHz) Merge(model.ChannelList, *MasterLists, model.APPowerType, model.ChannelList) {}

// New6GList returns a disabled list over the 6GHz-local index space:
// local index j is table index Min6GHzChannel+j.
func New6GList(table *ChannelTable) model.ChannelList {
	full := table.NewMasterList()
	return full[Min6GHzChannel : Max6GHzChannel+1].Clone()
}

// Populate6GBand is PopulateBand over the 6GHz-local index space.
func Populate6GBand(table *ChannelTable, rules []model.RegulatoryRule, minRegBW uint16, out model.ChannelList) {
	for j := 0; j < Num6GHzChannels; j++ {
		e := table.Entry(Min6GHzChannel + j)
		if !e.Valid() {
			continue
		}
		negotiateChannel(e, rules, minRegBW, &out[j])
	}
}
