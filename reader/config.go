package reader

import (
	"fmt"
	"io/ioutil"
	"time"

	"gopkg.in/yaml.v2"

	"doorworks/prox/card"
	"doorworks/prox/mqtt"
	"doorworks/prox/wiegand"
)

// Config for the reader service.  All of it can come from flags, a
// YAML file, or both (flags win).  Pin numbers of -1 disable the
// optional hardware.
type Config struct {
	// GPIO character device for the Wiegand lines (e.g. "gpiochip0")
	Chip string `yaml:"gpiochip"`
	// Line offset for Wiegand D0 (the zero line, usually green)
	PinD0 int `yaml:"d0_pin"`
	// Line offset for Wiegand D1 (the one line, usually white)
	PinD1 int `yaml:"d1_pin"`
	// Pin number for the badge reader's beeper pin (as GPIO/BCM pin)
	PinBeeper int `yaml:"beeper_pin"`
	// Pin number for the badge reader's LED pin (as GPIO/BCM pin)
	PinLED int `yaml:"led_pin"`
	// Pin number for a door/tamper contact input (as GPIO/BCM pin)
	PinContact int `yaml:"contact_pin"`
	// Settle time for the contact input, in milliseconds
	ContactSettleMS int `yaml:"contact_settle_ms"`
	// Quiet period that completes a frame, in milliseconds
	TimeoutMS int `yaml:"timeout_ms"`
	// Frames longer than this are discarded
	MaxFrameBits int `yaml:"max_frame_bits"`
	// Capacity of the bit queue
	QueueDepth int `yaml:"queue_depth"`
	// MQTT broker and topics (disabled if broker_addr is empty)
	MQTT mqtt.Config `yaml:"mqtt"`
	// URL to POST scan events to (disabled if empty)
	NotifyURL string `yaml:"notify_url"`
	// Device name for the notify endpoint
	NotifyDevice string `yaml:"notify_device"`
	// Device key for the notify endpoint
	NotifyKey string `yaml:"notify_key"`
	// Address for HTTP server to listen on
	ListenAddr string `yaml:"listen_addr"`
	// True to log more verbosely (e.g. every raw scan)
	Verbose bool `yaml:"verbose"`
}

// DefaultConfig returns the config the flags and YAML loader start
// from.
func DefaultConfig() Config {
	return Config{
		Chip:            "gpiochip0",
		PinD0:           17,
		PinD1:           18,
		PinBeeper:       -1,
		PinLED:          -1,
		PinContact:      -1,
		ContactSettleMS: 300,
		TimeoutMS:       250,
		MaxFrameBits:    128,
		QueueDepth:      64,
		ListenAddr:      ":9000",
		MQTT: mqtt.Config{
			ClientID:     "proxd",
			TopicCard:    "prox/card",
			TopicContact: "prox/contact",
		},
	}
}

// LoadFile reads a YAML config file over whatever is already in cfg.
// Unknown keys are an error, since a typo'd pin name would otherwise
// silently fall back to a default.
func LoadFile(path string, cfg *Config) error {
	raw, err := ioutil.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.UnmarshalStrict(raw, cfg); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// wiegandConfig converts the wire-format knobs for the pipeline.
func (c *Config) wiegandConfig() wiegand.Config {
	return wiegand.Config{
		Timeout:      time.Duration(c.TimeoutMS) * time.Millisecond,
		MaxFrameBits: c.MaxFrameBits,
		QueueDepth:   c.QueueDepth,
		Layouts:      card.DefaultLayouts(),
	}
}
