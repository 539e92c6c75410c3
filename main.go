package main

import (
	"log"

	"github.com/jobscout-dev/jobscout/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
