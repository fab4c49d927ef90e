package main

import "os"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1) // systemd or a monitor marks the panel as down
	}
}
