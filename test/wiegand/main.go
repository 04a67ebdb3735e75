package main

// Hand-run tool: dump every card scanned on D0/D1 to the log.

import (
	"context"
	"log"

	"github.com/warthog618/gpiod"

	"doorworks/prox/wiegand"
)

func main() {
	chip, err := gpiod.NewChip("gpiochip0")
	if err != nil {
		log.Fatal(err)
	}
	defer chip.Close()

	d0 := 17
	d1 := 18
	log.Printf("D0=%d D1=%d...", d0, d1)
	cards, err := wiegand.ListenCards(context.Background(), chip, d0, d1, wiegand.Config{})
	if err != nil {
		log.Fatal(err)
	}
	log.Printf("Waiting")

	for c := range cards {
		log.Printf("Main loop: Scanned card: %+v", c)
	}
}
