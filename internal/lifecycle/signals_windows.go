//go:build windows

package lifecycle

import (
	"os"
	"syscall"
)

// platformSignals adds Windows CTRL_BREAK so a service supervisor
// sending a break event triggers the same ordered shutdown path.
func platformSignals() []os.Signal { return []os.Signal{syscall.SIGBREAK} }
