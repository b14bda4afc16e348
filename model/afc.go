package model

import "time"

// AFC wire values are expressed in 0.01 dB units.
const AFCPowerScale = 100

// AFCFreqObj grants a maximum PSD over a frequency range.
type AFCFreqObj struct {
	LowFreq  uint16 `yaml:"low_freq" json:"low_freq"`
	HighFreq uint16 `yaml:"high_freq" json:"high_freq"`
	// MaxPSD is in 0.01 dBm/MHz.
	MaxPSD int32 `yaml:"max_psd" json:"max_psd"`
}

// AFCCFI grants a maximum EIRP on one channel center frequency index.
type AFCCFI struct {
	CFI uint8 `yaml:"cfi" json:"cfi"`
	// MaxEIRP is in 0.01 dBm.
	MaxEIRP int32 `yaml:"max_eirp" json:"max_eirp"`
}

// AFCChanObj lists the CFIs granted within one operating class.
type AFCChanObj struct {
	OpClass uint8    `yaml:"op_class" json:"op_class"`
	CFIs    []AFCCFI `yaml:"cfis" json:"cfis"`
}

// AFCPowerEvent is a parsed AFC server response.
type AFCPowerEvent struct {
	RequestID uint32       `yaml:"request_id" json:"request_id"`
	Expiry    time.Time    `yaml:"expiry" json:"expiry"`
	FreqObjs  []AFCFreqObj `yaml:"freq_objs" json:"freq_objs"`
	ChanObjs  []AFCChanObj `yaml:"chan_objs" json:"chan_objs"`
}

// AFCState tracks the AFC power lifecycle of a radio.
type AFCState uint8

const (
	AFCNoData AFCState = iota
	AFCPowerEventReceived
)

func (s AFCState) String() string {
	if s == AFCPowerEventReceived {
		return "power_event_received"
	}
	return "no_afc_data"
}
