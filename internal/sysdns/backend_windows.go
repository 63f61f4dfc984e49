//go:build windows

package sysdns

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// windowsBackend drives netsh(1) against a named interface. Interface
// names reach exec.Command only after validateInterfaceName, since
// netsh's own argument parsing is permissive enough that a crafted
// name could be read back as a flag.
type windowsBackend struct{}

func newPlatformBackend() Backend { return &windowsBackend{} }

func (b *windowsBackend) Platform() string { return "win32" }

func (b *windowsBackend) DetectInterface() (string, error) {
	out, err := runNetsh("interface", "show", "interface")
	if err != nil {
		return "", err
	}
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 4 {
			continue
		}
		if fields[0] == "Enabled" && fields[1] == "Connected" {
			return strings.Join(fields[3:], " "), nil
		}
	}
	return "", fmt.Errorf("no connected interface found")
}

func (b *windowsBackend) ReadResolvers(iface string) (ResolverState, error) {
	if err := validateInterfaceName(iface); err != nil {
		return ResolverState{}, err
	}
	out, err := runNetsh("interface", "ip", "show", "dns", fmt.Sprintf("name=%s", iface))
	if err != nil {
		return ResolverState{}, err
	}
	if strings.Contains(out, "DHCP") {
		return ResolverState{IsDHCP: true}, nil
	}
	var servers []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if ip := lastFieldIfIP(line); ip != "" {
			servers = append(servers, ip)
		}
	}
	if len(servers) == 0 {
		return ResolverState{IsDHCP: true}, nil
	}
	return ResolverState{Resolvers: servers}, nil
}

func (b *windowsBackend) SetResolvers(iface, primary, secondary string) error {
	if err := validateInterfaceName(iface); err != nil {
		return err
	}
	if _, err := runNetsh("interface", "ip", "set", "dns", fmt.Sprintf("name=%s", iface), "static", primary); err != nil {
		return err
	}
	_, err := runNetsh("interface", "ip", "add", "dns", fmt.Sprintf("name=%s", iface), secondary, "index=2")
	return err
}

func (b *windowsBackend) RestoreAutomatic(iface string) error {
	if err := validateInterfaceName(iface); err != nil {
		return err
	}
	_, err := runNetsh("interface", "ip", "set", "dns", fmt.Sprintf("name=%s", iface), "source=dhcp")
	return err
}

func (b *windowsBackend) RestoreExplicit(iface string, resolvers []string) error {
	if len(resolvers) == 0 {
		return b.RestoreAutomatic(iface)
	}
	if err := validateInterfaceName(iface); err != nil {
		return err
	}
	if _, err := runNetsh("interface", "ip", "set", "dns", fmt.Sprintf("name=%s", iface), "static", resolvers[0]); err != nil {
		return err
	}
	for i, r := range resolvers[1:] {
		if _, err := runNetsh("interface", "ip", "add", "dns", fmt.Sprintf("name=%s", iface), r, fmt.Sprintf("index=%d", i+2)); err != nil {
			return err
		}
	}
	return nil
}

func (b *windowsBackend) RestoreRawConfig(iface, raw string) error {
	return fmt.Errorf("windows backend does not support raw config restore")
}

// ProbeDHCP satisfies the optional DHCPProber interface: rather than
// falling back to the bare "dhcp" sentinel, the Configurator asks
// Windows what DHCP actually handed out for this adapter so Restore
// can reapply those addresses explicitly even if DHCP is unreachable
// at restore time.
func (b *windowsBackend) ProbeDHCP(iface string) ([]string, error) {
	out, err := runCmdPlain("ipconfig", "/all")
	if err != nil {
		return nil, err
	}
	section := extractAdapterSection(out, iface)
	if section == "" {
		return nil, fmt.Errorf("adapter %q not found in ipconfig output", iface)
	}
	var servers []string
	inDNS := false
	for _, line := range strings.Split(section, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "DNS Servers") {
			inDNS = true
			if ip := lastFieldIfIP(trimmed); ip != "" {
				servers = append(servers, ip)
			}
			continue
		}
		if inDNS {
			if ip := lastFieldIfIP(trimmed); ip != "" {
				servers = append(servers, ip)
				continue
			}
			inDNS = false
		}
	}
	if len(servers) == 0 {
		return nil, fmt.Errorf("no DHCP-assigned DNS servers found for %q", iface)
	}
	return servers, nil
}

func extractAdapterSection(ipconfigOutput, iface string) string {
	blocks := strings.Split(ipconfigOutput, "\r\n\r\n")
	for _, block := range blocks {
		if strings.Contains(block, iface) {
			return block
		}
	}
	return ""
}

func lastFieldIfIP(line string) string {
	idx := strings.LastIndex(line, ":")
	candidate := line
	if idx >= 0 {
		candidate = line[idx+1:]
	}
	candidate = strings.TrimSpace(candidate)
	if candidate == "" {
		return ""
	}
	for _, r := range candidate {
		if (r < '0' || r > '9') && r != '.' && r != ':' {
			return ""
		}
	}
	return candidate
}

func runNetsh(args ...string) (string, error) {
	return runCmdPlain("netsh", args...)
}

func runCmdPlain(name string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), subprocessTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		if strings.Contains(string(out), "Access is denied") {
			return "", &PermissionDeniedError{Op: name + " " + strings.Join(args, " "), Err: err}
		}
		return "", fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, string(out))
	}
	return string(out), nil
}
