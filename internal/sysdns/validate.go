package sysdns

import (
	"fmt"
	"regexp"
)

// validInterfaceName matches the conservative character class allowed
// in a network interface/service name before it is interpolated into a
// subprocess argument list. Covers Windows adapter names ("Ethernet 2",
// "Wi-Fi"), macOS service names ("Wi-Fi", "USB 10/100/1000 LAN"), and
// Linux device names ("eth0", "wlan0").
var validInterfaceName = regexp.MustCompile(`^[a-zA-Z0-9 ._/\-]{1,128}$`)

// validateInterfaceName rejects anything that is not plain
// alphanumerics, spaces, and a small set of punctuation, before the
// name is ever passed to exec.Command. This is required even though
// exec.Command never invokes a shell, because a malformed name could
// still be misinterpreted as a flag by the target utility.
func validateInterfaceName(name string) error {
	if !validInterfaceName.MatchString(name) {
		return fmt.Errorf("invalid interface name: %q", name)
	}
	return nil
}
