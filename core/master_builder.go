package core

import (
	"fmt"

	"github.com/signalsfoundry/regchan/model"
)

// Capacity limits for a single rule set.
const (
	MaxRegRules   = 10 // 2.4GHz and 5GHz rules combined
	Max6GRegRules = 5  // per AP type, and per AP type × client type
)

// BuildConfig tunes master-list construction.
type BuildConfig struct {
	MinBW2G          uint16
	MinBW5G          uint16
	MinBW6G          uint16
	AutoBWCorrection bool
}

// DefaultBuildConfig returns the stock minimum bandwidths with bandwidth
// correction enabled.
func DefaultBuildConfig() BuildConfig {
	return BuildConfig{
		MinBW2G:          DefaultMinBW2G,
		MinBW5G:          DefaultMinBW5G,
		MinBW6G:          DefaultMinBW6G,
		AutoBWCorrection: true,
	}
}

// MasterLists is everything a regulatory domain permits on one radio.
// Master carries 2.4, 4.9 and 5GHz; its 6GHz slots are filled from the
// AP lists by the pipeline.
type MasterLists struct {
	Table    *ChannelTable
	Master   model.ChannelList
	AP6G     [model.NumAPTypes]model.ChannelList
	Client6G [model.NumAPTypes][model.NumClientTypes]model.ChannelList

	six SixGHzSupport
}

// Clone deep-copies the lists. The table is shared; it is immutable.
func (m *MasterLists) Clone() *MasterLists {
	if m == nil {
		return nil
	}
	out := &MasterLists{Table: m.Table, Master: m.Master.Clone(), six: m.six}
	for ap := range m.AP6G {
		out.AP6G[ap] = m.AP6G[ap].Clone()
		for ct := range m.Client6G[ap] {
			out.Client6G[ap][ct] = m.Client6G[ap][ct].Clone()
		}
	}
	return out
}

// SixGHz returns the 6GHz implementation the lists were built with.
func (m *MasterLists) SixGHz() SixGHzSupport {
	if m.six == nil {
		return NoSixGHz()
	}
	return m.six
}

// MarkNOL sets or clears the NOL mark on the master channel at freq.
func (m *MasterLists) MarkNOL(freq uint16, nol bool) error {
	i, err := m.Table.IndexOfFreq(freq)
	if err != nil {
		return err
	}
	m.Master[i].NOL = nol
	return nil
}

// MarkNOLHistory sets or clears the NOL history mark at freq.
func (m *MasterLists) MarkNOLHistory(freq uint16, hist bool) error {
	i, err := m.Table.IndexOfFreq(freq)
	if err != nil {
		return err
	}
	m.Master[i].NOLHistory = hist
	return nil
}

// CheckCapacity rejects rule sets whose arrays exceed the fixed maximums.
func CheckCapacity(rs *model.RuleSet) error {
	if n := len(rs.Rules2G) + len(rs.Rules5G); n > MaxRegRules {
		return fmt.Errorf("%w: %d 2.4/5GHz rules, max %d", model.ErrCapacityExceeded, n, MaxRegRules)
	}
	for ap := range rs.Rules6GAP {
		if n := len(rs.Rules6GAP[ap]); n > Max6GRegRules {
			return fmt.Errorf("%w: %d 6GHz %s AP rules, max %d",
				model.ErrCapacityExceeded, n, model.APPowerType(ap), Max6GRegRules)
		}
		for ct := range rs.Rules6GClient[ap] {
			if n := len(rs.Rules6GClient[ap][ct]); n > Max6GRegRules {
				return fmt.Errorf("%w: %d 6GHz %s/%s client rules, max %d",
					model.ErrCapacityExceeded, n, model.APPowerType(ap), model.ClientType(ct), Max6GRegRules)
			}
		}
	}
	return nil
}

// BuildMaster negotiates every channel of the region table against the
// rule set. The rule set itself is not modified.
func BuildMaster(rs *model.RuleSet, cfg BuildConfig, six SixGHzSupport) (*MasterLists, error) {
	if rs == nil {
		return nil, fmt.Errorf("%w: nil rule set", model.ErrLookupFailure)
	}
	if err := CheckCapacity(rs); err != nil {
		return nil, err
	}
	if six == nil {
		six = NoSixGHz()
	}
	rs = rs.Clone()
	table := TableFor(rs.DFSRegion)
	m := &MasterLists{Table: table, Master: table.NewMasterList(), six: six}

	UpdateMaxBWPerRule(rs.Rules2G, ceilingOr(rs.MaxBW2G, MaxBW2GCeiling))
	UpdateMaxBWPerRule(rs.Rules5G, ceilingOr(rs.MaxBW5G, MaxBW5GCeiling))

	if len(rs.Rules2G) > 0 {
		PopulateBand(table, Min24GHzChannel, Max24GHzChannel, rs.Rules2G, cfg.MinBW2G, m.Master)
	}
	if len(rs.Rules5G) > 0 {
		if cfg.AutoBWCorrection {
			AutoBWCorrection(rs.Rules5G, ceilingOr(rs.MaxBW5G, MaxBW5GCeiling))
		}
		PopulateBand(table, Min5GHzChannel, Max5GHzChannel, rs.Rules5G, cfg.MinBW5G, m.Master)
		PopulateBand(table, Min49GHzChannel, Max49GHzChannel, rs.Rules5G, cfg.MinBW5G, m.Master)
	}

	six.Populate(table, rs, cfg.MinBW6G, m)
	return m, nil
}

// PopulateBand fills out[start..end] by negotiating each valid channel
// against rules. Channels no rule covers stay disabled.
func PopulateBand(table *ChannelTable, start, end int, rules []model.RegulatoryRule, minRegBW uint16, out model.ChannelList) {
	for i := start; i <= end; i++ {
		e := table.Entry(i)
		if !e.Valid() {
			continue
		}
		if !negotiateChannel(e, rules, minRegBW, &out[i]) {
			continue
		}
		if start == Min24GHzChannel && out[i].MaxBW < 20 {
			out[i].Disable()
		}
	}
}

// negotiateChannel runs the bandwidth negotiation for one static entry and
// fills ch on success.
func negotiateChannel(e model.ChannelEntry, rules []model.RegulatoryRule, minRegBW uint16, ch *model.RegulatoryChannel) bool {
	maxBW := min(uint16(20), e.MaxBW)
	minBW := max(minRegBW, e.MinBW)

	bw, idx, ok := Negotiate(rules, e.CenterFreq, maxBW, minBW)
	if !ok {
		return false
	}
	ch.MaxBW = bw
	fillChannel(ch, rules[idx], minBW)
	ch.MaxBW = min(ch.MaxBW, e.MaxBW)
	return true
}

func ceilingOr(v, def uint16) uint16 {
	if v == 0 {
		return def
	}
	return v
}
