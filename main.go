package main

import (
	"log"

	"github.com/costrisk/costrisk/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Fatalf("Error: %v", err)
	}
}
