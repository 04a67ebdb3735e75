package main

// Commandline for the Wiegand card reader daemon. This turns flags
// and an optional YAML file into a configuration, but is not
// responsible for any of the actual logic.

import (
	"log"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"doorworks/prox/reader"
)

var cfg *reader.Config
var config_file string

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

// Cobra boilerplate:
var rootCmd = &cobra.Command{
	Use:   "proxd",
	Short: "Start Wiegand proximity card reader daemon",
	Run: func(cmd *cobra.Command, args []string) {

		if cfg == nil {
			log.Panic("Configuration never initialized")
		}

		if config_file != "" {
			// The file provides the base; any flag given explicitly
			// on the command line still wins.
			flag_values := *cfg
			*cfg = reader.DefaultConfig()
			if err := reader.LoadFile(config_file, cfg); err != nil {
				log.Fatal(err)
			}
			apply_changed_flags(cmd, cfg, &flag_values)
		}

		log.Printf("%+v", cfg)

		// We have a configuration. Go run the daemon.
		reader.Run(cfg)
	},
}

// apply_changed_flags copies every flag the user actually set on the
// command line from 'flags' over the file-loaded 'cfg'.
func apply_changed_flags(cmd *cobra.Command, cfg *reader.Config, flags *reader.Config) {
	cmd.Flags().Visit(func(f *pflag.Flag) {
		switch f.Name {
		case "chip":
			cfg.Chip = flags.Chip
		case "d0":
			cfg.PinD0 = flags.PinD0
		case "d1":
			cfg.PinD1 = flags.PinD1
		case "beeper":
			cfg.PinBeeper = flags.PinBeeper
		case "led":
			cfg.PinLED = flags.PinLED
		case "contact":
			cfg.PinContact = flags.PinContact
		case "contact-settle":
			cfg.ContactSettleMS = flags.ContactSettleMS
		case "timeout":
			cfg.TimeoutMS = flags.TimeoutMS
		case "max-bits":
			cfg.MaxFrameBits = flags.MaxFrameBits
		case "queue":
			cfg.QueueDepth = flags.QueueDepth
		case "broker":
			cfg.MQTT.BrokerAddr = flags.MQTT.BrokerAddr
		case "mqtt-user":
			cfg.MQTT.Username = flags.MQTT.Username
		case "mqtt-pass":
			cfg.MQTT.Password = flags.MQTT.Password
		case "mqtt-id":
			cfg.MQTT.ClientID = flags.MQTT.ClientID
		case "topic-card":
			cfg.MQTT.TopicCard = flags.MQTT.TopicCard
		case "topic-contact":
			cfg.MQTT.TopicContact = flags.MQTT.TopicContact
		case "notify-url":
			cfg.NotifyURL = flags.NotifyURL
		case "device":
			cfg.NotifyDevice = flags.NotifyDevice
		case "key":
			cfg.NotifyKey = flags.NotifyKey
		case "addr":
			cfg.ListenAddr = flags.ListenAddr
		case "verbose":
			cfg.Verbose = flags.Verbose
		}
	})
}

func init() {
	c := reader.DefaultConfig()
	cfg = &c

	rootCmd.PersistentFlags().StringVar(&config_file, "config", "",
		"Path to YAML config file (flags override its values)")

	rootCmd.PersistentFlags().StringVar(&cfg.Chip, "chip", cfg.Chip,
		"GPIO character device for the Wiegand lines")
	rootCmd.PersistentFlags().IntVar(&cfg.PinD0, "d0", cfg.PinD0,
		"GPIO line offset for badge reader's Wiegand D0 pin")
	rootCmd.PersistentFlags().IntVar(&cfg.PinD1, "d1", cfg.PinD1,
		"GPIO line offset for badge reader's Wiegand D1 pin")
	rootCmd.PersistentFlags().IntVar(&cfg.PinBeeper, "beeper", cfg.PinBeeper,
		"BCM/GPIO pin number for badge reader's beeper pin (-1 to disable)")
	rootCmd.PersistentFlags().IntVar(&cfg.PinLED, "led", cfg.PinLED,
		"BCM/GPIO pin number for badge reader's LED pin (-1 to disable)")
	rootCmd.PersistentFlags().IntVar(&cfg.PinContact, "contact", cfg.PinContact,
		"BCM/GPIO pin number for door/tamper contact (-1 to disable)")
	rootCmd.PersistentFlags().IntVar(&cfg.ContactSettleMS, "contact-settle",
		cfg.ContactSettleMS, "Contact settle time in milliseconds")

	rootCmd.PersistentFlags().IntVar(&cfg.TimeoutMS, "timeout", cfg.TimeoutMS,
		"Quiet period in milliseconds that completes a frame")
	rootCmd.PersistentFlags().IntVar(&cfg.MaxFrameBits, "max-bits", cfg.MaxFrameBits,
		"Discard frames longer than this many bits")
	rootCmd.PersistentFlags().IntVar(&cfg.QueueDepth, "queue", cfg.QueueDepth,
		"Capacity of the bit queue")

	rootCmd.PersistentFlags().StringVar(&cfg.MQTT.BrokerAddr, "broker", "",
		"MQTT broker address (e.g. tcp://host:1883; empty disables MQTT)")
	rootCmd.PersistentFlags().StringVar(&cfg.MQTT.Username, "mqtt-user", "",
		"MQTT username")
	rootCmd.PersistentFlags().StringVar(&cfg.MQTT.Password, "mqtt-pass", "",
		"MQTT password")
	rootCmd.PersistentFlags().StringVar(&cfg.MQTT.ClientID, "mqtt-id",
		cfg.MQTT.ClientID, "MQTT client ID")
	rootCmd.PersistentFlags().StringVar(&cfg.MQTT.TopicCard, "topic-card",
		cfg.MQTT.TopicCard, "MQTT topic for card scans")
	rootCmd.PersistentFlags().StringVar(&cfg.MQTT.TopicContact, "topic-contact",
		cfg.MQTT.TopicContact, "MQTT topic for contact changes")

	rootCmd.PersistentFlags().StringVar(&cfg.NotifyURL, "notify-url", "",
		"URL to POST scan events to (empty disables)")
	rootCmd.PersistentFlags().StringVar(&cfg.NotifyDevice, "device", "",
		"Device name for the notify endpoint")
	rootCmd.PersistentFlags().StringVar(&cfg.NotifyKey, "key", "",
		"Device key for the notify endpoint")

	rootCmd.PersistentFlags().StringVar(&cfg.ListenAddr, "addr",
		cfg.ListenAddr, "Address for HTTP server to listen on")

	rootCmd.PersistentFlags().BoolVarP(&cfg.Verbose, "verbose", "v",
		false, "Enable more verbose logging")
}
