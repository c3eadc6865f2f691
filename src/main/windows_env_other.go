//go:build !windows

package main

import (
	"log"

	"github.com/kbinani/screenshot"
)

func enableDPIAwareness() {}

func logMonitorConfiguration() {
	n := screenshot.NumActiveDisplays()
	log.Printf("MONITOR: Detected %d displays", n)
	if n > 0 {
		b := screenshot.GetDisplayBounds(0)
		log.Printf("MONITOR: Primary screen - w:%d h:%d", b.Dx(), b.Dy())
	}
}
