//go:build linux

package sysdns

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

const (
	resolvConfPath  = "/etc/resolv.conf"
	markerBeginLine = "# sinkguard-managed-begin"
	markerEndLine   = "# sinkguard-managed-end"

	resolvedDropinDir  = "/etc/systemd/resolved.conf.d"
	resolvedDropinFile = resolvedDropinDir + "/90-sinkguard.conf"
)

// linuxBackend prefers a systemd-resolved drop-in file, restarting the
// daemon to apply it, and falls back to direct marker-delimited
// editing of /etc/resolv.conf when resolvectl/systemd-resolved is not
// present. The drop-in is removed (not edited) on restore, so
// relinquishing control is unconditional; the marker block lets the
// resolv.conf fallback remove exactly what Configure added.
type linuxBackend struct{}

func newPlatformBackend() Backend { return &linuxBackend{} }

func (b *linuxBackend) Platform() string { return "linux" }

func (b *linuxBackend) DetectInterface() (string, error) {
	out, err := runLinuxCmd("ip", "route", "show", "default")
	if err == nil {
		fields := strings.Fields(out)
		for i, f := range fields {
			if f == "dev" && i+1 < len(fields) {
				return fields[i+1], nil
			}
		}
	}
	return "default", nil
}

func (b *linuxBackend) ReadResolvers(iface string) (ResolverState, error) {
	if hasResolvectl() {
		out, err := runLinuxCmd("resolvectl", "status", iface)
		if err == nil {
			var servers []string
			for _, line := range strings.Split(out, "\n") {
				line = strings.TrimSpace(line)
				if strings.HasPrefix(line, "DNS Servers:") {
					servers = append(servers, strings.Fields(strings.TrimPrefix(line, "DNS Servers:"))...)
				}
			}
			if len(servers) == 0 {
				return ResolverState{IsDHCP: true}, nil
			}
			return ResolverState{Resolvers: servers}, nil
		}
	}

	raw, err := os.ReadFile(resolvConfPath)
	if err != nil {
		return ResolverState{}, err
	}
	var servers []string
	for _, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "nameserver ") {
			servers = append(servers, strings.TrimSpace(strings.TrimPrefix(line, "nameserver")))
		}
	}
	if len(servers) == 0 {
		return ResolverState{RawConfig: string(raw)}, nil
	}
	return ResolverState{Resolvers: servers, RawConfig: string(raw)}, nil
}

func (b *linuxBackend) SetResolvers(iface, primary, secondary string) error {
	if hasResolvectl() {
		if err := writeResolvedDropin(primary, secondary); err == nil {
			if _, err := runLinuxCmd("systemctl", "restart", "systemd-resolved"); err == nil {
				return nil
			}
		}
	}
	return writeMarkerBlock(primary, secondary)
}

func (b *linuxBackend) RestoreAutomatic(iface string) error {
	if _, err := os.Stat(resolvedDropinFile); err == nil {
		if err := os.Remove(resolvedDropinFile); err != nil {
			return err
		}
		_, err := runLinuxCmd("systemctl", "restart", "systemd-resolved")
		return err
	}
	return removeMarkerBlock()
}

func (b *linuxBackend) RestoreExplicit(iface string, resolvers []string) error {
	if len(resolvers) == 0 {
		return b.RestoreAutomatic(iface)
	}
	if hasResolvectl() {
		if err := writeResolvedDropin(resolvers...); err == nil {
			if _, err := runLinuxCmd("systemctl", "restart", "systemd-resolved"); err == nil {
				return nil
			}
		}
	}
	return writeMarkerBlock(resolvers...)
}

func (b *linuxBackend) RestoreRawConfig(iface, raw string) error {
	return os.WriteFile(resolvConfPath, []byte(raw), 0644)
}

func hasResolvectl() bool {
	_, err := exec.LookPath("resolvectl")
	return err == nil
}

func runLinuxCmd(name string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), subprocessTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		if strings.Contains(string(out), "Permission denied") {
			return "", &PermissionDeniedError{Op: name + " " + strings.Join(args, " "), Err: err}
		}
		return "", fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, string(out))
	}
	return string(out), nil
}

// writeResolvedDropin writes a global [Resolve] DNS= override under
// /etc/systemd/resolved.conf.d/ rather than a per-link setting, since
// sinkguard manages the default-route interface only.
func writeResolvedDropin(resolvers ...string) error {
	if err := os.MkdirAll(resolvedDropinDir, 0755); err != nil {
		return err
	}
	body := fmt.Sprintf("[Resolve]\nDNS=%s\nDomains=~.\n", strings.Join(resolvers, " "))
	return os.WriteFile(resolvedDropinFile, []byte(body), 0644)
}

// writeMarkerBlock prepends (replacing any previous) marker block of
// "nameserver" lines to /etc/resolv.conf, leaving everything outside
// the markers untouched.
func writeMarkerBlock(resolvers ...string) error {
	existing, err := os.ReadFile(resolvConfPath)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	body := stripMarkerBlock(string(existing))

	var block strings.Builder
	block.WriteString(markerBeginLine + "\n")
	for _, r := range resolvers {
		block.WriteString("nameserver " + r + "\n")
	}
	block.WriteString(markerEndLine + "\n")

	out := block.String() + body
	return os.WriteFile(resolvConfPath, []byte(out), 0644)
}

func removeMarkerBlock() error {
	existing, err := os.ReadFile(resolvConfPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return os.WriteFile(resolvConfPath, []byte(stripMarkerBlock(string(existing))), 0644)
}

func stripMarkerBlock(content string) string {
	lines := strings.Split(content, "\n")
	var out []string
	inBlock := false
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == markerBeginLine {
			inBlock = true
			continue
		}
		if trimmed == markerEndLine {
			inBlock = false
			continue
		}
		if inBlock {
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}
