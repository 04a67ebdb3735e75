package main

// Hand-run tool: dump contact sensor transitions on a pin.

import (
	"log"
	"time"

	"github.com/stianeikeland/go-rpio/v4"

	"doorworks/prox/sensor"
)

func main() {
	pin_num := 6

	pin := rpio.Pin(pin_num)
	if err := rpio.Open(); err != nil {
		log.Fatal(err)
	}
	defer rpio.Close()
	pin.Input()
	pin.PullUp()

	settle := 300 * time.Millisecond
	for s := range sensor.ListenContact(pin, settle) {
		log.Printf("%t", s)
	}
}
