package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v2"

	"pixelgopper/core"
	"pixelgopper/protocol"
)

// Config is the output configuration of a controller
type Config struct {
	// RefreshUs is the render period of the output manager
	RefreshUs uint32               `json:"refresh_us" yaml:"refresh_us"`
	Channels  []core.ChannelConfig `json:"channels" yaml:"channels"`
}

// LoadConfig parses a JSON configuration and applies defaults
func LoadConfig(jsonData []byte) (*Config, error) {
	var config Config

	err := json.Unmarshal(jsonData, &config)
	if err != nil {
		return nil, fmt.Errorf("parse json config: %w", err)
	}

	applyDefaults(&config)

	return &config, nil
}

// LoadYAML parses a YAML configuration and applies defaults
func LoadYAML(yamlData []byte) (*Config, error) {
	var config Config

	err := yaml.UnmarshalStrict(yamlData, &config)
	if err != nil {
		return nil, fmt.Errorf("parse yaml config: %w", err)
	}

	applyDefaults(&config)

	return &config, nil
}

// Load reads a configuration file, choosing the format by extension
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return LoadYAML(data)
	default:
		return LoadConfig(data)
	}
}

// applyDefaults fills in missing configuration values
func applyDefaults(config *Config) {
	if config.RefreshUs == 0 {
		config.RefreshUs = core.DefaultMinFrameUs
	}

	for i := range config.Channels {
		ch := &config.Channels[i]
		if ch.ID == 0 {
			ch.ID = uint8(i)
		}
		if ch.Chipset == "" {
			ch.Chipset = protocol.ChipsetWS2812.String()
		}
		if ch.MinFrameUs == 0 {
			ch.MinFrameUs = core.DefaultMinFrameUs
		}
		if ch.InterframeGapUs > core.MaxInterframeGapUs {
			ch.InterframeGapUs = core.MaxInterframeGapUs
		}
		// Zero means dark at runtime, so an omitted brightness is full
		if ch.Brightness == 0 {
			ch.Brightness = 255
		}
		if ch.ColorOrder == "" {
			ch.ColorOrder = defaultColorOrder(ch.Chipset)
		}
	}
}

func defaultColorOrder(chipset string) string {
	c, err := protocol.ParseChipset(chipset)
	if err != nil {
		return ""
	}
	info, err := c.Info()
	if err != nil || !info.IsPixel() {
		return ""
	}
	switch info.ChannelsPerPixel {
	case 4:
		return "grbw"
	case 3:
		return "grb"
	}
	return ""
}

// DefaultConfig returns a two channel layout: a ws2812 strip on the pulse
// peripheral and a ws2811 string bit-banged on UART1
func DefaultConfig() *Config {
	return &Config{
		RefreshUs: core.DefaultMinFrameUs,
		Channels: []core.ChannelConfig{
			{
				ID:         0,
				Chipset:    "ws2812",
				Transport:  core.TransportPulse,
				Peripheral: 0,
				Pin:        2,
				Pixels:     150,
				ColorOrder: "grb",
				Brightness: 255,
				MinFrameUs: core.DefaultMinFrameUs,
			},
			{
				ID:         1,
				Chipset:    "ws2811",
				Transport:  core.TransportSerial,
				Peripheral: 1,
				Pin:        4,
				Pixels:     100,
				ColorOrder: "rgb",
				Brightness: 255,
				MinFrameUs: core.DefaultMinFrameUs,
			},
		},
	}
}
