package main

// Hand-run tool: decode bit strings given as arguments, e.g.
//
//   decode "0 01101011 0111101001101001 1"

import (
	"fmt"
	"log"
	"os"

	"doorworks/prox/card"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("usage: decode BITSTRING...")
	}

	for _, arg := range os.Args[1:] {
		bits, err := card.ParseBits(arg)
		if err != nil {
			log.Fatal(err)
		}
		c := card.Decode(bits)
		fmt.Printf("%s  format=%s facility=%d number=%d parity_ok=%t\n",
			c.BitString(), c.Format, c.Facility, c.Number, c.ParityOK)
	}
}
