package main

import (
	"github.com/BioHazard786/Warpchat/cmd"
	"github.com/BioHazard786/Warpchat/internal/logging"
)

func main() {
	// Initialize logging
	logging.Init()
	cmd.Execute()
}
