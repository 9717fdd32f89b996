//go:build windows
// +build windows

package signals

import (
	"os"
	"os/signal"
)

func init() {
	signal.Notify(sigChan, os.Interrupt)
}

// Handle blocks dispatching signals to registered handlers until StopHandle
// closes the channel. Windows has no SIGHUP; reload handlers never fire.
func Handle() {
	for {
		sig, ok := <-sigChan
		if !ok {
			return
		}
		if sig == os.Interrupt {
			handleInterrupted()
		}
	}
}
