//go:build darwin

package sysdns

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// darwinBackend drives macOS's networksetup(8) against the first
// enabled Wi-Fi service, else the first enabled Ethernet service, else
// the first enabled service. Grounded on the networksetup
// invocation shape used throughout the legacy DNS manager.
type darwinBackend struct{}

func newPlatformBackend() Backend { return &darwinBackend{} }

func (b *darwinBackend) Platform() string { return "darwin" }

func (b *darwinBackend) DetectInterface() (string, error) {
	out, err := runNetworksetup("-listallnetworkservices")
	if err != nil {
		return "", err
	}
	lines := strings.Split(out, "\n")
	var active []string
	for _, line := range lines[1:] {
		svc := strings.TrimSpace(line)
		if svc == "" || strings.HasPrefix(svc, "*") {
			continue
		}
		enabled, err := runNetworksetup("-getnetworkserviceenabled", svc)
		if err != nil {
			continue
		}
		if strings.TrimSpace(enabled) != "Disabled" {
			active = append(active, svc)
		}
	}
	for _, want := range []string{"wi-fi", "ethernet"} {
		for _, svc := range active {
			if strings.Contains(strings.ToLower(svc), want) {
				return svc, nil
			}
		}
	}
	if len(active) > 0 {
		return active[0], nil
	}
	return "", fmt.Errorf("no active network service found")
}

func (b *darwinBackend) ReadResolvers(iface string) (ResolverState, error) {
	out, err := runNetworksetup("-getdnsservers", iface)
	if err != nil {
		return ResolverState{}, err
	}
	out = strings.TrimSpace(out)
	if strings.Contains(out, "There aren't any DNS Servers") {
		return ResolverState{IsDHCP: true}, nil
	}
	var servers []string
	for _, line := range strings.Split(out, "\n") {
		if s := strings.TrimSpace(line); s != "" {
			servers = append(servers, s)
		}
	}
	return ResolverState{Resolvers: servers}, nil
}

func (b *darwinBackend) SetResolvers(iface, primary, secondary string) error {
	_, err := runNetworksetup("-setdnsservers", iface, primary, secondary)
	return err
}

func (b *darwinBackend) RestoreAutomatic(iface string) error {
	_, err := runNetworksetup("-setdnsservers", iface, "Empty")
	return err
}

func (b *darwinBackend) RestoreExplicit(iface string, resolvers []string) error {
	if len(resolvers) == 0 {
		return b.RestoreAutomatic(iface)
	}
	args := append([]string{"-setdnsservers", iface}, resolvers...)
	_, err := runNetworksetup(args...)
	return err
}

func (b *darwinBackend) RestoreRawConfig(iface, raw string) error {
	return fmt.Errorf("darwin backend does not support raw config restore")
}

func runNetworksetup(args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), subprocessTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "networksetup", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		if strings.Contains(string(out), "you must be root") || strings.Contains(string(out), "not privileged") {
			return "", &PermissionDeniedError{Op: strings.Join(args, " "), Err: err}
		}
		return "", fmt.Errorf("networksetup %s: %w: %s", strings.Join(args, " "), err, string(out))
	}
	return string(out), nil
}
