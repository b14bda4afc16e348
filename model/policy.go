package model

// Policy is the live device policy applied on top of a master list.
// Zero values of the boolean gates mean "feature off"; use DefaultPolicy
// for a permissive baseline.
type Policy struct {
	BandCapability BandMask `yaml:"band_capability" json:"band_capability"`

	DFSEnabled        bool `yaml:"dfs_enabled" json:"dfs_enabled"`
	IndoorChanEnabled bool `yaml:"indoor_chan_enabled" json:"indoor_chan_enabled"`
	// ForceSCCDisableIndoor disables indoor channels outright while an AP
	// is active.
	ForceSCCDisableIndoor bool `yaml:"force_scc_disable_indoor" json:"force_scc_disable_indoor"`
	APActive              bool `yaml:"ap_active" json:"ap_active"`
	FCCConstraint         bool `yaml:"fcc_constraint" json:"fcc_constraint"`
	Chan144Enabled        bool `yaml:"chan_144_enabled" json:"chan_144_enabled"`

	UNIIDisable UNIIMask `yaml:"unii_disable" json:"unii_disable"`

	SRDMasterMode         bool `yaml:"srd_master_mode" json:"srd_master_mode"`
	FiveDotNineSupported  bool `yaml:"five_dot_nine_supported" json:"five_dot_nine_supported"`
	FiveDotNineMasterMode bool `yaml:"five_dot_nine_master_mode" json:"five_dot_nine_master_mode"`

	Lower6GEdgeEnabled bool `yaml:"lower_6g_edge_enabled" json:"lower_6g_edge_enabled"`
	Upper6GEdgeEnabled bool `yaml:"upper_6g_edge_enabled" json:"upper_6g_edge_enabled"`

	Range2G FreqRange `yaml:"range_2g" json:"range_2g"`
	Range5G FreqRange `yaml:"range_5g" json:"range_5g"`

	// MaxChWidth clamps every channel's max bandwidth; 0 disables the clamp.
	MaxChWidth uint16 `yaml:"max_ch_width" json:"max_ch_width"`

	CachedDisable []uint16    `yaml:"cached_disable" json:"cached_disable"`
	AvoidFreqs    []FreqRange `yaml:"avoid_freqs" json:"avoid_freqs"`

	AP6GPowerType APPowerType `yaml:"ap_6g_power_type" json:"ap_6g_power_type"`
}

// DefaultPolicy returns a policy that leaves the master list untouched
// apart from the always-on filters.
func DefaultPolicy() Policy {
	return Policy{
		BandCapability:       AllBands,
		DFSEnabled:           true,
		IndoorChanEnabled:    true,
		Chan144Enabled:       true,
		FiveDotNineSupported: true,
		Lower6GEdgeEnabled:   false,
		Upper6GEdgeEnabled:   true,
		Range2G:              FreqRange{Low: 2402, High: 2494},
		Range5G:              FreqRange{Low: 4900, High: 7125},
		AP6GPowerType:        APTypeLPI,
	}
}

// Clone returns a copy whose slices do not alias p.
func (p Policy) Clone() Policy {
	out := p
	if p.CachedDisable != nil {
		out.CachedDisable = append([]uint16(nil), p.CachedDisable...)
	}
	if p.AvoidFreqs != nil {
		out.AvoidFreqs = append([]FreqRange(nil), p.AvoidFreqs...)
	}
	return out
}
