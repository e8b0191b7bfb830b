package util

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/errors"
)

var (
	sharedClient     *http.Client
	sharedClientOnce sync.Once

	// fastClient is tuned for quick API requests with shorter timeouts
	fastClient     *http.Client
	fastClientOnce sync.Once
)

// httpClientConfig holds configuration for creating pooled HTTP clients
type httpClientConfig struct {
	timeout             time.Duration
	maxIdleConns        int
	maxIdleConnsPerHost int
	maxConnsPerHost     int
	idleConnTimeout     time.Duration
	tlsHandshakeTimeout time.Duration
	expectContinue      time.Duration
	keepAlive           time.Duration
	dialTimeout         time.Duration
}

func defaultConfig() httpClientConfig {
	return httpClientConfig{
		timeout:             30 * time.Second,
		maxIdleConns:        100,
		maxIdleConnsPerHost: 10,
		maxConnsPerHost:     30,
		idleConnTimeout:     120 * time.Second,
		tlsHandshakeTimeout: 5 * time.Second,
		expectContinue:      1 * time.Second,
		keepAlive:           30 * time.Second,
		dialTimeout:         5 * time.Second,
	}
}

func fastConfig() httpClientConfig {
	return httpClientConfig{
		timeout:             15 * time.Second,
		maxIdleConns:        100,
		maxIdleConnsPerHost: 20,
		maxConnsPerHost:     30,
		idleConnTimeout:     90 * time.Second,
		tlsHandshakeTimeout: 5 * time.Second,
		expectContinue:      500 * time.Millisecond,
		keepAlive:           30 * time.Second,
		dialTimeout:         5 * time.Second,
	}
}

// IsDisallowedIP checks if the given IP is disallowed for outbound dials:
// multicast, unspecified, loopback and private ranges are rejected.
func IsDisallowedIP(hostIP string) bool {
	ip := net.ParseIP(hostIP)
	return ip.IsMulticast() || ip.IsUnspecified() || ip.IsLoopback() || ip.IsPrivate()
}

func checkDisallowedIP(conn net.Conn) error {
	ip, _, _ := net.SplitHostPort(conn.RemoteAddr().String())
	if IsDisallowedIP(ip) {
		conn.Close()
		return errors.New("ip address is not allowed")
	}
	return nil
}

func createTransport(cfg httpClientConfig) *http.Transport {
	dialer := &net.Dialer{
		Timeout:   cfg.dialTimeout,
		KeepAlive: cfg.keepAlive,
	}
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			conn, err := dialer.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			if err := checkDisallowedIP(conn); err != nil {
				return nil, err
			}
			return conn, nil
		},
		MaxIdleConns:          cfg.maxIdleConns,
		MaxIdleConnsPerHost:   cfg.maxIdleConnsPerHost,
		MaxConnsPerHost:       cfg.maxConnsPerHost,
		IdleConnTimeout:       cfg.idleConnTimeout,
		TLSHandshakeTimeout:   cfg.tlsHandshakeTimeout,
		ExpectContinueTimeout: cfg.expectContinue,
		ForceAttemptHTTP2:     true,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	}
}

// GetSharedClient returns the shared HTTP client with connection pooling.
// Use it for anything that may carry a response body worth streaming.
func GetSharedClient() *http.Client {
	sharedClientOnce.Do(func() {
		cfg := defaultConfig()
		sharedClient = &http.Client{
			Transport: createTransport(cfg),
			Timeout:   cfg.timeout,
		}
	})
	return sharedClient
}

// GetFastClient returns an HTTP client tuned for lightweight API calls.
func GetFastClient() *http.Client {
	fastClientOnce.Do(func() {
		cfg := fastConfig()
		fastClient = &http.Client{
			Transport: createTransport(cfg),
			Timeout:   cfg.timeout,
		}
	})
	return fastClient
}
