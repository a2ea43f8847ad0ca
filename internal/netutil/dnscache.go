// Package netutil provides the outbound HTTP plumbing shared by the executor:
// a DNS-caching dialer so repeated recovery calls do not hammer the resolver.
package netutil

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/dnscache"
	"github.com/rs/zerolog/log"
)

var (
	// Global DNS resolver with caching
	globalResolver     *dnscache.Resolver
	globalResolverOnce sync.Once
	resolverMutex      sync.RWMutex
	resolverRefreshTTL = 5 * time.Minute
)

// GetDNSResolver returns the global DNS resolver instance with caching.
func GetDNSResolver() *dnscache.Resolver {
	globalResolverOnce.Do(func() {
		resolverMutex.RLock()
		ttl := resolverRefreshTTL
		resolverMutex.RUnlock()
		initDNSResolver(ttl)
	})
	return globalResolver
}

func initDNSResolver(ttl time.Duration) {
	log.Debug().Dur("ttl", ttl).Msg("Initializing DNS resolver cache")
	globalResolver = &dnscache.Resolver{}

	// Periodic refresh keeps entries from going stale; unused ones are dropped.
	go func() {
		ticker := time.NewTicker(ttl)
		defer ticker.Stop()
		for range ticker.C {
			globalResolver.Refresh(true)
		}
	}()
}

// SetDNSCacheTTL updates the refresh interval. It only takes effect before
// the resolver is first used.
func SetDNSCacheTTL(ttl time.Duration) {
	resolverMutex.Lock()
	defer resolverMutex.Unlock()

	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	resolverRefreshTTL = ttl
}

// DialContextWithCache dials address, resolving its host through the cache.
// Each resolved address is tried in turn.
func DialContextWithCache(ctx context.Context, network, address string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(address)
	if err != nil {
		return nil, err
	}

	ips, err := GetDNSResolver().LookupHost(ctx, host)
	if err != nil {
		return nil, err
	}
	if len(ips) == 0 {
		return nil, &net.DNSError{Err: "no IP addresses found", Name: host}
	}

	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	var errs []error
	for _, ip := range ips {
		conn, err := dialer.DialContext(ctx, network, net.JoinHostPort(ip, port))
		if err == nil {
			return conn, nil
		}
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
	}
	return nil, errors.Join(errs...)
}

// NewTransport returns a transport that dials through the DNS cache.
func NewTransport() *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.DialContext = DialContextWithCache
	return t
}
