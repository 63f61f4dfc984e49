//go:build unix

package lifecycle

import "os"

// platformSignals returns no additional signals on Unix; interrupt
// and terminate are already installed by notifySignals.
func platformSignals() []os.Signal { return nil }
