package core

import "github.com/signalsfoundry/regchan/model"

// Frequencies bounding the special-purpose channel groups.
const (
	UNII1Low        = 5150
	UNII1High       = 5250
	UNII2ALow       = 5250
	UNII2AHigh      = 5350
	SRDLow          = 5745
	SRDHigh         = 5865
	FiveDotNineLow  = 5845
	FiveDotNineHigh = 5885

	MaxPowerFCCChan12 = 8
	MaxPowerFCCChan13 = 2
)

// Env is what the modifiers see besides the list: the live policy and the
// regulatory domain the master list was built for.
type Env struct {
	Policy model.Policy
	Domain model.DomainPair
	Table  *ChannelTable
}

// Modifier is one stage of the current-list pipeline. Every stage is a
// pure function of (list, env) and applying it twice has no further
// effect.
type Modifier struct {
	Name  string
	Apply func(list model.ChannelList, env *Env)
}

// Modifiers returns the ordered stages that run after the master copy.
// Order matters: later stages observe the disables of earlier ones.
func Modifiers() []Modifier {
	return []Modifier{
		{"freq_range", modifyForFreqRange},
		{"band", modifyForBand},
		{"unii", modifyForUNII},
		{"dfs", modifyForDFS},
		{"nol", modifyForNOL},
		{"indoor", modifyForIndoor},
		{"fcc", modifyForFCC},
		{"chan_144", modifyForChan144},
		{"cached", modifyForCached},
		{"srd", modifyForSRD},
		{"5dot9", modifyFor5Dot9},
		{"max_chwidth", modifyForMaxChWidth},
		{"6g_edge", modifyFor6GEdge},
	}
}

// PipelineInput is everything a recompute depends on.
type PipelineInput struct {
	Master *MasterLists
	// AFC is the AFC master list, or nil when no power event is active.
	AFC    model.ChannelList
	Policy model.Policy
	Domain model.DomainPair
}

// PipelineOutput holds the derived lists.
type PipelineOutput struct {
	Current   model.ChannelList
	Secondary model.ChannelList
}

// Compute derives the current and secondary lists. It never mutates its
// input and always returns valid lists, possibly all disabled.
func Compute(in PipelineInput) PipelineOutput {
	if in.Master == nil {
		empty := TableFor(model.DFSRegionUninit).NewMasterList()
		return PipelineOutput{Current: empty, Secondary: empty.Clone()}
	}

	cur := in.Master.Master.Clone()
	in.Master.SixGHz().Merge(cur, in.Master, in.Policy.AP6GPowerType, in.AFC)

	env := &Env{Policy: in.Policy, Domain: in.Domain, Table: in.Master.Table}
	for _, m := range Modifiers() {
		m.Apply(cur, env)
	}

	sec := cur.Clone()
	ApplyAvoidFreqs(cur, in.Policy.AvoidFreqs)
	ApplyAvoidFreqs(sec, in.Policy.AvoidFreqs)
	return PipelineOutput{Current: cur, Secondary: sec}
}

func inRange(center, bw uint16, r model.FreqRange) bool {
	half := int(bw / 2)
	return int(center)-half >= int(r.Low) && int(center)+half <= int(r.High)
}

func modifyForFreqRange(list model.ChannelList, env *Env) {
	p := env.Policy
	for i := range list {
		ch := &list[i]
		if ch.State == model.StateInvalid {
			continue
		}
		fits := false
		bw := ch.MaxBW
		for ; bw >= ch.MinBW && bw > 0; bw /= 2 {
			if inRange(ch.CenterFreq, bw, p.Range2G) || inRange(ch.CenterFreq, bw, p.Range5G) {
				fits = true
				break
			}
		}
		if !fits {
			ch.Disable()
			continue
		}
		ch.MaxBW = bw
	}
}

func modifyForBand(list model.ChannelList, env *Env) {
	for i := range list {
		if !env.Policy.BandCapability.Has(BandOfIndex(i)) {
			list[i].Disable()
		}
	}
}

func modifyForUNII(list model.ChannelList, env *Env) {
	mask := env.Policy.UNIIDisable
	if mask == 0 {
		return
	}
	for i := range list {
		f := list[i].CenterFreq
		if mask&model.UNII1 != 0 && f > UNII1Low && f < UNII1High {
			list[i].Disable()
		}
		if mask&model.UNII2A != 0 && f > UNII2ALow && f < UNII2AHigh {
			list[i].Disable()
		}
	}
}

func modifyForDFS(list model.ChannelList, env *Env) {
	if env.Policy.DFSEnabled {
		return
	}
	for i := range list {
		if list[i].Flags&model.FlagRadar != 0 {
			list[i].Disable()
		}
	}
}

func modifyForNOL(list model.ChannelList, _ *Env) {
	for i := range list {
		if list[i].NOL {
			list[i].Disable()
		}
	}
}

func modifyForIndoor(list model.ChannelList, env *Env) {
	p := env.Policy
	if !p.IndoorChanEnabled {
		for i := range list {
			if list[i].Flags&model.FlagIndoorOnly != 0 {
				list[i].MakePassive()
			}
		}
	}
	if p.ForceSCCDisableIndoor && p.APActive {
		for i := range list {
			if list[i].Flags&model.FlagIndoorOnly != 0 {
				list[i].Disable()
			}
		}
	}
}

func modifyForFCC(list model.ChannelList, env *Env) {
	if !env.Policy.FCCConstraint {
		return
	}
	for i := range list {
		switch list[i].CenterFreq {
		case Chan12Freq:
			list[i].TxPower = min(list[i].TxPower, MaxPowerFCCChan12)
		case Chan13Freq:
			list[i].TxPower = min(list[i].TxPower, MaxPowerFCCChan13)
		}
	}
}

func modifyForChan144(list model.ChannelList, env *Env) {
	if env.Policy.Chan144Enabled {
		return
	}
	if i, ok := list.FindFreq(Chan144Freq); ok {
		list[i].Disable()
	}
}

func modifyForCached(list model.ChannelList, env *Env) {
	for _, f := range env.Policy.CachedDisable {
		if i, ok := list.FindFreq(f); ok {
			list[i].Disable()
		}
	}
}

func modifyForSRD(list model.ChannelList, env *Env) {
	if !IsETSI13(env.Domain) || env.Policy.SRDMasterMode {
		return
	}
	for i := range list {
		if BandOfIndex(i) != model.Band5G {
			continue
		}
		if f := list[i].CenterFreq; f >= SRDLow && f <= SRDHigh {
			list[i].MakePassive()
		}
	}
}

func modifyFor5Dot9(list model.ChannelList, env *Env) {
	if !IsFCC(env.Domain) {
		return
	}
	p := env.Policy
	for i := range list {
		if BandOfIndex(i) != model.Band5G {
			continue
		}
		f := list[i].CenterFreq
		if f < FiveDotNineLow || f > FiveDotNineHigh {
			continue
		}
		switch {
		case !p.FiveDotNineSupported:
			list[i].Disable()
		case !p.FiveDotNineMasterMode:
			list[i].MakePassive()
		}
	}
}

func modifyForMaxChWidth(list model.ChannelList, env *Env) {
	limit := env.Policy.MaxChWidth
	if limit == 0 {
		return
	}
	for i := range list {
		ch := &list[i]
		if ch.State == model.StateInvalid || ch.MaxBW <= limit {
			continue
		}
		ch.MaxBW = limit
		if ch.MaxBW < ch.MinBW {
			ch.Disable()
		}
	}
}

func modifyFor6GEdge(list model.ChannelList, env *Env) {
	p := env.Policy
	if !p.Lower6GEdgeEnabled {
		list[Min6GHzChannel].Disable()
	}
	if !p.Upper6GEdgeEnabled {
		list[Max6GHzChannel].Disable()
	}
}
