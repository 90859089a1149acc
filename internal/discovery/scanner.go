// Package discovery locates the capture device on the local network after
// it leaves its setup access point. The scan is best effort: a candidate
// sweep of the local subnet followed by a health probe.
package discovery

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"
)

type Scanner struct {
	httpClient *http.Client
	// sweepLimit caps how many subnet addresses are probed.
	sweepLimit int
}

func NewScanner() *Scanner {
	return &Scanner{
		httpClient: &http.Client{Timeout: 1 * time.Second},
		sweepLimit: 20,
	}
}

// FindDevice resolves the device's current LAN address. It first asks the
// device's previous address for its new IP, then sweeps subnet candidates
// and probes each one's health endpoint.
func (s *Scanner) FindDevice(ctx context.Context, previousIP string) (string, error) {
	// The device may still answer on its old address long enough to report
	// where it moved to.
	if ip, ok := s.askDevice(ctx, previousIP); ok {
		return ip, nil
	}

	candidates, err := s.Candidates()
	if err != nil {
		return "", err
	}
	for _, ip := range candidates {
		if s.probe(ctx, ip) {
			return ip, nil
		}
	}
	return "", fmt.Errorf("device not found among %d candidates", len(candidates))
}

func (s *Scanner) askDevice(ctx context.Context, ip string) (string, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+ip+"/ip", nil)
	if err != nil {
		return "", false
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", false
	}
	buf := make([]byte, 64)
	n, _ := resp.Body.Read(buf)
	reported := strings.TrimSpace(string(buf[:n]))
	if net.ParseIP(reported) == nil {
		return "", false
	}
	return reported, true
}

// Candidates lists subnet addresses worth probing, derived from the first
// private IPv4 interface assuming a /24. The gateway address is skipped.
func (s *Scanner) Candidates() ([]string, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil, fmt.Errorf("failed to list interfaces: %w", err)
	}

	var local net.IP
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok {
			continue
		}
		ip := ipNet.IP.To4()
		if ip == nil || ip.IsLoopback() {
			continue
		}
		if ip.IsPrivate() {
			local = ip
			break
		}
	}
	if local == nil {
		return nil, fmt.Errorf("no private IPv4 interface found")
	}

	prefix := fmt.Sprintf("%d.%d.%d.", local[0], local[1], local[2])
	candidates := make([]string, 0, s.sweepLimit)
	for i := 2; i <= s.sweepLimit; i++ {
		candidates = append(candidates, fmt.Sprintf("%s%d", prefix, i))
	}
	return candidates, nil
}

func (s *Scanner) probe(ctx context.Context, ip string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+ip+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
