package model

// RegulatoryRule is one interval of a regulatory domain. Rules are treated
// as immutable once a RuleSet has been accepted.
type RegulatoryRule struct {
	StartFreq uint16       `yaml:"start_freq" json:"start_freq"`
	EndFreq   uint16       `yaml:"end_freq" json:"end_freq"`
	MaxBW     uint16       `yaml:"max_bw" json:"max_bw"`
	RegPower  int16        `yaml:"reg_power" json:"reg_power"`
	AntGain   uint8        `yaml:"ant_gain" json:"ant_gain"`
	Flags     ChannelFlags `yaml:"-" json:"flags"`
	PSDFlag   bool         `yaml:"psd_flag" json:"psd_flag"`
	PSDEIRP   int16        `yaml:"psd_eirp" json:"psd_eirp"`
}

// Covers reports whether the rule spans [center-bw/2, center+bw/2].
func (r RegulatoryRule) Covers(center, bw uint16) bool {
	half := bw / 2
	return int(r.StartFreq) <= int(center)-int(half) && int(r.EndFreq) >= int(center)+int(half)
}

// APPowerType is the 6GHz AP power class.
type APPowerType uint8

const (
	APTypeLPI APPowerType = iota // low power indoor
	APTypeSP                     // standard power
	APTypeVLP                    // very low power
	NumAPTypes
)

func (t APPowerType) String() string {
	switch t {
	case APTypeLPI:
		return "lpi"
	case APTypeSP:
		return "sp"
	case APTypeVLP:
		return "vlp"
	default:
		return "unknown"
	}
}

// ClientType is the 6GHz client mobility class.
type ClientType uint8

const (
	ClientDefault ClientType = iota
	ClientSubordinate
	NumClientTypes
)

func (t ClientType) String() string {
	switch t {
	case ClientDefault:
		return "default"
	case ClientSubordinate:
		return "subordinate"
	default:
		return "unknown"
	}
}

// PhyBitmap carries the phymode restrictions reported with a rule set.
type PhyBitmap uint16

const (
	PhyNo11A PhyBitmap = 1 << iota
	PhyNo11B
	PhyNo11G
	PhyNo11N
	PhyNo11AC
	PhyNo11AX
)

// RuleSet is the parsed regulatory input for one radio, as delivered by
// the rule source.
type RuleSet struct {
	PhyID        uint8
	Alpha2       string
	DFSRegion    DFSRegion
	DomainPairID uint16
	PhyBitmap    PhyBitmap

	// SelfAuthoritative is set when the rule source programs CTL limits
	// itself; otherwise the engine emits a CTL summary southbound.
	SelfAuthoritative bool

	MaxBW2G uint16
	MaxBW5G uint16
	MaxBW6G uint16

	Rules2G       []RegulatoryRule
	Rules5G       []RegulatoryRule
	Rules6GAP     [NumAPTypes][]RegulatoryRule
	Rules6GClient [NumAPTypes][NumClientTypes][]RegulatoryRule
}

// Clone deep-copies the rule arrays so bandwidth correction never mutates
// the cached copy.
func (rs *RuleSet) Clone() *RuleSet {
	if rs == nil {
		return nil
	}
	out := *rs
	out.Rules2G = cloneRules(rs.Rules2G)
	out.Rules5G = cloneRules(rs.Rules5G)
	for ap := range rs.Rules6GAP {
		out.Rules6GAP[ap] = cloneRules(rs.Rules6GAP[ap])
		for ct := range rs.Rules6GClient[ap] {
			out.Rules6GClient[ap][ct] = cloneRules(rs.Rules6GClient[ap][ct])
		}
	}
	return &out
}

// Empty reports whether no band carries any rule.
func (rs *RuleSet) Empty() bool {
	if len(rs.Rules2G) > 0 || len(rs.Rules5G) > 0 {
		return false
	}
	for ap := range rs.Rules6GAP {
		if len(rs.Rules6GAP[ap]) > 0 {
			return false
		}
	}
	return true
}

func cloneRules(in []RegulatoryRule) []RegulatoryRule {
	if in == nil {
		return nil
	}
	out := make([]RegulatoryRule, len(in))
	copy(out, in)
	return out
}
