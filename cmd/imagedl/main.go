package main

import (
	"os"

	"imagedl/pkg/config"
)

func main() {
	// Arguments from the persistent config file act as if they were typed
	// before the real command line, so explicit flags win.
	args := os.Args[1:]
	if !contains(args, "--ignore-config") {
		if fileArgs, err := config.LoadArgsFile(config.DefaultArgsFile()); err == nil {
			args = append(fileArgs, args...)
		}
	}

	rootCmd.SetArgs(args)
	Execute()
}

func contains(args []string, flag string) bool {
	for _, a := range args {
		if a == flag {
			return true
		}
	}
	return false
}
