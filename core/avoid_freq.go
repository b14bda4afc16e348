package core

import "github.com/signalsfoundry/regchan/model"

// ApplyAvoidFreqs narrows or disables channels that collide with the
// unsafe ranges. Disabled channels are left untouched.
//
// A channel whose center falls inside a range is disabled. A 2.4GHz
// channel is disabled when its 20MHz footprint overlaps a range. A 5 or
// 6GHz channel has its bandwidth halved until its bonded segment clears
// every range, and is disabled once it would drop below 40MHz.
func ApplyAvoidFreqs(list model.ChannelList, ranges []model.FreqRange) {
	if len(ranges) == 0 {
		return
	}
	for i := range list {
		ch := &list[i]
		if ch.IsDisabled() {
			continue
		}
		for _, r := range ranges {
			if ch.IsDisabled() {
				break
			}
			avoidRange(ch, BandOfIndex(i), r)
		}
	}
}

func avoidRange(ch *model.RegulatoryChannel, band model.Band, r model.FreqRange) {
	if r.Contains(ch.CenterFreq) {
		ch.Disable()
		return
	}
	if band == model.Band2G {
		if r.Overlaps(ch.CenterFreq-10, ch.CenterFreq+10) {
			ch.Disable()
		}
		return
	}
	for {
		lo, hi := BondedSpan(band, ch.ChanNum, ch.CenterFreq, ch.MaxBW)
		if !r.Overlaps(lo, hi) {
			return
		}
		if ch.MaxBW < 40 {
			ch.Disable()
			return
		}
		ch.MaxBW /= 2
	}
}

// AvoidDelta lists the channels whose state or width changed between two
// lists, by center frequency.
func AvoidDelta(before, after model.ChannelList) []uint16 {
	var out []uint16
	for i := range after {
		if i >= len(before) {
			break
		}
		if before[i].State != after[i].State || before[i].MaxBW != after[i].MaxBW {
			out = append(out, after[i].CenterFreq)
		}
	}
	return out
}
