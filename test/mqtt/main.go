package main

// Hand-run tool: publish a synthetic card scan to a broker once a
// second, to check topics and payloads end to end.

import (
	"fmt"
	"time"

	"doorworks/prox/card"
	"doorworks/prox/mqtt"
)

func main() {
	cfg := mqtt.Config{
		BrokerAddr:   "tcp://172.16.3.39:1883",
		Username:     "na",
		Password:     "na",
		ClientID:     "proxd-test",
		TopicCard:    "prox/card",
		TopicContact: "prox/contact",
	}

	client := mqtt.NewClient(cfg)
	fmt.Printf("Got connection\n")

	bits, _ := card.ParseBits("0 01101011 0111101001101001 1")
	c := card.Decode(bits)

	for i := 0; i < 100; i++ {
		fmt.Printf("Publishing %s\n", c)
		if err := mqtt.PublishCard(client, cfg.TopicCard, c); err != nil {
			fmt.Printf("publish failed: %s\n", err)
		}
		time.Sleep(time.Second)
	}
}
