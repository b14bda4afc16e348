package core

import (
	"time"

	"github.com/signalsfoundry/regchan/model"
)

// AFCHandler tracks Standard-Power grants from an AFC server for one radio.
type AFCHandler interface {
	Enabled() bool
	State() model.AFCState
	// List returns the AFC master list while a power event is active and
	// nil otherwise.
	List() model.ChannelList
	Expiry() time.Time
	// ProcessPowerEvent intersects the grant with sp, the 6GHz
	// standard-power master list.
	ProcessPowerEvent(ev *model.AFCPowerEvent, sp model.ChannelList, table *ChannelTable) (granted int)
	// Reset drops all AFC data, on expiry or a switch to LPI.
	Reset()
}

// NewAFCHandler returns the AFC implementation when enabled is set and a
// handler that ignores every event otherwise.
func NewAFCHandler(enabled bool) AFCHandler {
	if enabled {
		return &AFCPower{}
	}
	return noAFC{}
}

// AFCPower is the full AFC power computer.
type AFCPower struct {
	state  model.AFCState
	list   model.ChannelList
	expiry time.Time
}

func (a *AFCPower) Enabled() bool         { return true }
func (a *AFCPower) State() model.AFCState { return a.state }
func (a *AFCPower) Expiry() time.Time     { return a.expiry }

func (a *AFCPower) List() model.ChannelList {
	if a.state != model.AFCPowerEventReceived {
		return nil
	}
	return a.list
}

func (a *AFCPower) Reset() {
	for i := range a.list {
		a.list[i] = model.RegulatoryChannel{}
	}
	a.state = model.AFCNoData
	a.expiry = time.Time{}
}

// afcGrant accumulates the most restrictive grant per 6GHz channel.
type afcGrant struct {
	eirp, psd       int32
	hasEIRP, hasPSD bool
}

func (g *afcGrant) limitEIRP(v int32) {
	if !g.hasEIRP || v < g.eirp {
		g.eirp = v
	}
	g.hasEIRP = true
}

func (g *afcGrant) limitPSD(v int32) {
	if !g.hasPSD || v < g.psd {
		g.psd = v
	}
	g.hasPSD = true
}

func (a *AFCPower) ProcessPowerEvent(ev *model.AFCPowerEvent, sp model.ChannelList, table *ChannelTable) int {
	grants := cfiGrants(ev, table)

	afc := New6GList(table)
	granted := 0
	for j := range afc {
		if sp == nil || sp[j].IsDisabled() || !grants[j].hasEIRP {
			continue
		}
		ch := sp[j]
		ch.TxPower = min(ch.TxPower, int16(grants[j].eirp/model.AFCPowerScale))
		if grants[j].hasPSD {
			psd := int16(grants[j].psd / model.AFCPowerScale)
			if ch.PSDFlag {
				psd = min(ch.PSDEIRP, psd)
			}
			ch.PSDFlag = true
			ch.PSDEIRP = psd
		}
		afc[j] = ch
		granted++
	}

	a.list = afc
	a.state = model.AFCPowerEventReceived
	a.expiry = ev.Expiry
	return granted
}

// cfiGrants folds the frequency and channel objects of an AFC response
// into per-channel limits over the 6GHz-local index space.
func cfiGrants(ev *model.AFCPowerEvent, table *ChannelTable) []afcGrant {
	grants := make([]afcGrant, Num6GHzChannels)

	for _, fo := range ev.FreqObjs {
		for j := 0; j < Num6GHzChannels; j++ {
			e := table.Entry(Min6GHzChannel + j)
			if !e.Valid() {
				continue
			}
			if e.CenterFreq-10 >= fo.LowFreq && e.CenterFreq+10 <= fo.HighFreq {
				grants[j].limitPSD(fo.MaxPSD)
			}
		}
	}

	for _, co := range ev.ChanObjs {
		for _, cfi := range co.CFIs {
			subs, err := SubChannels(co.OpClass, cfi.CFI)
			if err != nil {
				continue
			}
			for _, sub := range subs {
				i, err := table.IndexOfChannel(model.Band6G, sub)
				if err != nil {
					continue
				}
				grants[i-Min6GHzChannel].limitEIRP(cfi.MaxEIRP)
			}
		}
	}
	return grants
}

type noAFC struct{}

func (noAFC) Enabled() bool           { return false }
func (noAFC) State() model.AFCState   { return model.AFCNoData }
func (noAFC) List() model.ChannelList { return nil }
func (noAFC) Expiry() time.Time       { return time.Time{} }
func (noAFC) Reset()                  {}

func (noAFC) ProcessPowerEvent(*model.AFCPowerEvent, model.ChannelList, *ChannelTable) int {
	return 0
}
