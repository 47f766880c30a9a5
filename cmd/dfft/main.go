package main

import (
	"os"

	internal "github.com/ZanzyTHEbar/dfft/dfft"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		logger := internal.GetLogger()
		logger.Error().Err(err).Msg("dfft failed")
		os.Exit(1)
	}
}
