package dns

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

const (
	localTimeout  = 1 * time.Second
	remoteTimeout = 2 * time.Second
)

var ErrNoAddress = errors.New("no IP addresses found")

// publicDNS are raced when the system resolver cannot resolve the relay
// host, which happens on some captive or filtered networks.
var publicDNS = []string{
	"1.1.1.1",                // Cloudflare
	"1.0.0.1",                // Cloudflare
	"[2606:4700:4700::1111]", // Cloudflare
	"8.8.8.8",                // Google
	"8.8.4.4",                // Google
	"[2001:4860:4860::8888]", // Google
	"9.9.9.9",                // Quad9
	"149.112.112.112",        // Quad9
	"208.67.222.222",         // Cisco OpenDNS
	"208.67.220.220",         // Cisco OpenDNS
}

// lookupFunc resolves host through one resolver. server is empty for the
// system resolver.
type lookupFunc func(ctx context.Context, host, server string) ([]string, error)

// Resolver resolves the relay host with a public DNS fallback.
type Resolver struct {
	servers []string
	lookup  lookupFunc
}

var defaultResolver = &Resolver{servers: publicDNS, lookup: netLookup}

// Lookup resolves host with the default resolver.
func Lookup(ctx context.Context, host string) (string, error) {
	return defaultResolver.Lookup(ctx, host)
}

// Lookup returns one address for host, preferring IPv4. IP literals are
// returned unchanged. The system resolver is tried first; on failure the
// public servers are raced and the first answer wins.
func (r *Resolver) Lookup(ctx context.Context, host string) (string, error) {
	if ip := net.ParseIP(host); ip != nil {
		return host, nil
	}

	localCtx, cancel := context.WithTimeout(ctx, localTimeout)
	ips, err := r.lookup(localCtx, host, "")
	cancel()
	if err == nil && len(ips) > 0 {
		return preferIPv4(ips), nil
	}

	return r.race(ctx, host)
}

func (r *Resolver) race(parent context.Context, host string) (string, error) {
	if len(r.servers) == 0 {
		return "", fmt.Errorf("resolve %s: %w", host, ErrNoAddress)
	}

	type result struct {
		ips []string
		err error
	}

	ctx, cancel := context.WithTimeout(parent, remoteTimeout)
	defer cancel()

	results := make(chan result, len(r.servers))
	for _, server := range r.servers {
		go func(server string) {
			ips, err := r.lookup(ctx, host, server)
			results <- result{ips: ips, err: err}
		}(server)
	}

	var lastErr error
	for range r.servers {
		select {
		case res := <-results:
			if res.err == nil && len(res.ips) > 0 {
				return preferIPv4(res.ips), nil
			}
			lastErr = res.err
		case <-ctx.Done():
			return "", fmt.Errorf("resolve %s: public DNS race: %w", host, ctx.Err())
		}
	}

	if lastErr == nil {
		lastErr = ErrNoAddress
	}
	return "", fmt.Errorf("resolve %s: all %d public DNS servers failed: %w", host, len(r.servers), lastErr)
}

// netLookup uses the system resolver, or forces queries to server:53.
func netLookup(ctx context.Context, host, server string) ([]string, error) {
	r := &net.Resolver{}
	if server != "" {
		r.PreferGo = true
		r.Dial = func(ctx context.Context, network, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, network, net.JoinHostPort(trimBrackets(server), "53"))
		}
	}
	return r.LookupHost(ctx, host)
}

func trimBrackets(server string) string {
	if len(server) > 1 && server[0] == '[' && server[len(server)-1] == ']' {
		return server[1 : len(server)-1]
	}
	return server
}

func preferIPv4(ips []string) string {
	for _, ip := range ips {
		if net.ParseIP(ip).To4() != nil {
			return ip
		}
	}
	return ips[0]
}
