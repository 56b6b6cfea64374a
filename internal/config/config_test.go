package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `{
	"SX130x_conf": {
		"com_type": "SPI",
		"com_path": "/dev/spidev0.0",
		"lorawan_public": true,
		"clksrc": 0,
		"chan_Lora_std": {"enable": true, "radio": 0, "if": -200000, "bandwidth": 250000, "spread_factor": 7},
		"chan_FSK": {"enable": false, "radio": 1, "if": 300000}
	},
	"gateway_conf": {
		"gateway_ID": "00800000a0001234",
		"server_address": "router.example.net",
		"serv_port_up": 1700,
		"serv_port_down": 1700,
		"keepalive_interval": 10,
		"stat_interval": 30,
		"push_timeout_ms": 100,
		"autoquit_threshold": 5,
		"forward_crc_valid": true,
		"beacon": {"beacon_period": 128, "beacon_freq_hz": 869525000, "beacon_freq_nb": 8, "beacon_freq_step": 200000}
	},
	"debug_conf": {"enable": false}
}`

func TestLoadParsesSampleDocument(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "global_conf.json")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "00800000a0001234", cfg.Gateway.GatewayID)
	assert.Equal(t, uint16(1700), cfg.Gateway.ServPortUp)
	assert.Equal(t, uint32(128), cfg.Gateway.Beacon.Period)
	assert.Equal(t, uint32(8), cfg.Gateway.Beacon.FreqNb)
}

func TestLoadRejectsMissingGatewayID(t *testing.T) {
	var cfg Config
	require.NoError(t, json.Unmarshal([]byte(sampleConfig), &cfg))
	cfg.Gateway.GatewayID = ""
	assert.Error(t, cfg.Validate())
}

func TestLoadRejectsBeaconWithoutFreqNb(t *testing.T) {
	var cfg Config
	require.NoError(t, json.Unmarshal([]byte(sampleConfig), &cfg))
	cfg.Gateway.Beacon.FreqNb = 0
	assert.Error(t, cfg.Validate())
}

func TestLoadIgnoresUnknownKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "global_conf.json")
	doc := sampleConfig[:len(sampleConfig)-1] + `,"totally_unknown_future_key": 42}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	_, err := Load(path)
	assert.NoError(t, err)
}
