package core

import "github.com/signalsfoundry/regchan/model"

// Default minimum regulatory bandwidths per band, in MHz.
const (
	DefaultMinBW2G = 10
	DefaultMinBW5G = 20
	DefaultMinBW6G = 20
)

// Band ceilings applied to rule max bandwidths.
const (
	MaxBW2GCeiling = 40
	MaxBW5GCeiling = 160
	MaxBW6GCeiling = 160
)

// FindRule returns the first rule, in array order, that fully covers the
// bw-wide span around center. Array order is the tie-break: regulatory
// databases rely on the earlier rule winning when several overlap.
func FindRule(rules []model.RegulatoryRule, center, bw, minBW uint16) (int, bool) {
	if bw < minBW {
		return 0, false
	}
	for i := range rules {
		if rules[i].Covers(center, bw) {
			return i, true
		}
	}
	return 0, false
}

// Negotiate walks bandwidths from maxBW down to minBW, halving each step,
// and returns the widest one some rule covers together with that rule.
func Negotiate(rules []model.RegulatoryRule, center, maxBW, minBW uint16) (bw uint16, rule int, ok bool) {
	for bw = maxBW; bw >= minBW && bw > 0; bw /= 2 {
		if idx, found := FindRule(rules, center, bw, minBW); found {
			return bw, idx, true
		}
	}
	return 0, 0, false
}

// UpdateMaxBWPerRule clamps every rule's MaxBW to ceiling. A zero ceiling
// leaves the rules untouched.
func UpdateMaxBWPerRule(rules []model.RegulatoryRule, ceiling uint16) {
	if ceiling == 0 {
		return
	}
	for i := range rules {
		rules[i].MaxBW = min(rules[i].MaxBW, ceiling)
	}
}

// AutoBWCorrection lets contiguous rules bond across their shared edge:
// whenever rule i ends where rule i+1 starts both get
// min(ceiling, sum of their bandwidths). Corrections chain forward.
func AutoBWCorrection(rules []model.RegulatoryRule, ceiling uint16) {
	for i := 0; i+1 < len(rules); i++ {
		if rules[i].EndFreq != rules[i+1].StartFreq {
			continue
		}
		bw := rules[i].MaxBW + rules[i+1].MaxBW
		if ceiling != 0 {
			bw = min(bw, ceiling)
		}
		rules[i].MaxBW = bw
		rules[i+1].MaxBW = bw
	}
}

// fillChannel copies a matched rule into a channel.
func fillChannel(ch *model.RegulatoryChannel, rule model.RegulatoryRule, minBW uint16) {
	ch.Flags &^= model.FlagDisabled

	if rule.PSDFlag {
		ch.PSDFlag = true
		ch.PSDEIRP = rule.PSDEIRP
	}
	ch.TxPower = rule.RegPower
	ch.AntGain = rule.AntGain
	ch.State = model.StateEnable

	if rule.Flags&model.FlagNoIR != 0 {
		ch.Flags |= model.FlagNoIR
		ch.State = model.StateDFS
	}
	if rule.Flags&model.FlagRadar != 0 {
		ch.Flags |= model.FlagRadar
		ch.State = model.StateDFS
	}
	ch.Flags |= rule.Flags & (model.FlagIndoorOnly | model.FlagNoOFDM)

	ch.MinBW = minBW
	if ch.MaxBW == 20 {
		ch.MaxBW = rule.MaxBW
	}
}
