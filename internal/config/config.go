// Package config parses the forwarder's JSON configuration document
// (spec.md §6): three top-level objects, SX130x_conf / gateway_conf /
// debug_conf. Radios and multi-SF channels are read from the JSON arrays
// `radio` and `chan_multiSF`, and each radio's gain table from
// `tx_gain_lut`; the indexed keys `radio_0`, `radio_1`, `chan_multiSF_0`, …
// of the reference file layout are not read.
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// GainLUTEntry is one entry of a radio's TX power gain lookup table.
type GainLUTEntry struct {
	RFPower int8 `json:"rf_power"`
	// PAGain, DigGain, etc. are device-specific tuning values the HAL
	// consumes directly; this codebase only ever reads RFPower to do
	// the closest-match search spec.md §4.3 step 7 describes.
	PAGain  int8 `json:"pa_gain,omitempty"`
	DigGain int8 `json:"dig_gain,omitempty"`
}

// RadioConf is one `radio_i` entry under SX130x_conf.
type RadioConf struct {
	Enable     bool           `json:"enable"`
	FreqHz     uint32         `json:"freq"`
	TxEnable   bool           `json:"tx_enable"`
	TxFreqMin  uint32         `json:"tx_freq_min,omitempty"`
	TxFreqMax  uint32         `json:"tx_freq_max,omitempty"`
	TxGainLUT  []GainLUTEntry `json:"tx_gain_lut,omitempty"`
}

// ChannelConf is a `chan_multiSF_i` or `chan_Lora_std` entry.
type ChannelConf struct {
	Enable      bool   `json:"enable"`
	Radio       uint8  `json:"radio"`
	IFHz        int32  `json:"if"`
	Bandwidth   uint32 `json:"bandwidth,omitempty"`
	SpreadFactor uint32 `json:"spread_factor,omitempty"`
}

// FSKChannelConf is the `chan_FSK` entry.
type FSKChannelConf struct {
	Enable    bool   `json:"enable"`
	Radio     uint8  `json:"radio"`
	IFHz      int32  `json:"if"`
	Bandwidth uint32 `json:"bandwidth,omitempty"`
	Datarate  uint32 `json:"datarate,omitempty"`
}

// SX1261Conf holds the optional spectral-scan/LBT co-processor settings.
type SX1261Conf struct {
	SpectralScan bool `json:"spectral_scan"`
	LBT          bool `json:"lbt"`
}

// SX130xConf is the `SX130x_conf` top-level object: concentrator wiring
// and RF chain layout.
type SX130xConf struct {
	ComType       string           `json:"com_type"`
	ComPath       string           `json:"com_path"`
	LorawanPublic bool             `json:"lorawan_public"`
	ClkSrc        uint8            `json:"clksrc"`
	FullDuplex    bool             `json:"full_duplex"`
	Radios        []RadioConf      `json:"radio,omitempty"`
	MultiSFChans  []ChannelConf    `json:"chan_multiSF,omitempty"`
	LoRaStdChan   ChannelConf      `json:"chan_Lora_std"`
	FSKChan       FSKChannelConf   `json:"chan_FSK"`
	FineTimestamp bool             `json:"fine_timestamp"`
	SX1261        SX1261Conf       `json:"sx1261_conf"`
}

// BeaconConf holds the class-B beacon scheduling parameters spec.md §4.4
// defines.
type BeaconConf struct {
	Period   uint32 `json:"beacon_period,omitempty"`
	FreqHz   uint32 `json:"beacon_freq_hz,omitempty"`
	FreqNb   uint32 `json:"beacon_freq_nb,omitempty"`
	FreqStep uint32 `json:"beacon_freq_step,omitempty"`
	DataRate uint32 `json:"beacon_datarate,omitempty"`
	Power    int8   `json:"beacon_power,omitempty"`
	InfoDesc uint8  `json:"beacon_infodesc,omitempty"`
}

// GatewayConf is the `gateway_conf` top-level object: server connection,
// timing, and forwarding policy.
type GatewayConf struct {
	GatewayID         string     `json:"gateway_ID"`
	ServerAddress     string     `json:"server_address"`
	ServPortUp        uint16     `json:"serv_port_up"`
	ServPortDown      uint16     `json:"serv_port_down"`
	KeepaliveInterval int        `json:"keepalive_interval"`
	StatInterval      int        `json:"stat_interval"`
	PushTimeoutMS     int        `json:"push_timeout_ms"`
	PullTimeoutMS     int        `json:"pull_timeout_ms,omitempty"`
	AutoquitThreshold int        `json:"autoquit_threshold"`
	ForwardCRCValid   bool       `json:"forward_crc_valid"`
	ForwardCRCError   bool       `json:"forward_crc_error"`
	ForwardCRCDisabled bool      `json:"forward_crc_disabled"`
	GPSTTYPath        string     `json:"gps_tty_path,omitempty"`
	FakeGPS           bool       `json:"fake_gps,omitempty"`
	RefLatitude       float64    `json:"ref_latitude,omitempty"`
	RefLongitude      float64    `json:"ref_longitude,omitempty"`
	RefAltitude       int32      `json:"ref_altitude,omitempty"`
	Beacon            BeaconConf `json:"beacon"`
}

// DebugConf is the `debug_conf` top-level object, used by operators to
// replay canned uplinks without hardware attached.
type DebugConf struct {
	Enable   bool     `json:"enable"`
	RefPayloads []string `json:"ref_payload,omitempty"`
}

// Config is the fully parsed configuration document.
type Config struct {
	SX130x SX130xConf  `json:"SX130x_conf"`
	Gateway GatewayConf `json:"gateway_conf"`
	Debug  DebugConf   `json:"debug_conf"`
}

// Load reads and parses the configuration file at path. Unknown keys are
// ignored (spec.md §6); missing mandatory keys are caught by Validate,
// not by the decoder itself.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the mandatory keys spec.md §6 requires are present and
// internally consistent. A malformed configuration is a fatal error
// (spec.md §7): the caller should refuse to start rather than run with
// defaults for anything mandatory.
func (c Config) Validate() error {
	if c.Gateway.GatewayID == "" {
		return fmt.Errorf("gateway_conf.gateway_ID is required")
	}
	if c.Gateway.ServerAddress == "" {
		return fmt.Errorf("gateway_conf.server_address is required")
	}
	if c.Gateway.ServPortUp == 0 {
		return fmt.Errorf("gateway_conf.serv_port_up is required")
	}
	if c.Gateway.ServPortDown == 0 {
		return fmt.Errorf("gateway_conf.serv_port_down is required")
	}
	if c.SX130x.ComPath == "" {
		return fmt.Errorf("SX130x_conf.com_path is required")
	}
	if c.Gateway.Beacon.Period > 0 {
		if c.Gateway.Beacon.FreqNb == 0 {
			return fmt.Errorf("gateway_conf.beacon.beacon_freq_nb is required when beacon_period > 0")
		}
	}
	return nil
}
