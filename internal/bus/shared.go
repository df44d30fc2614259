package bus

import (
	"github.com/nikicat/mcewatch/internal/eventloop"
	"github.com/nikicat/mcewatch/internal/mce"
	"github.com/nikicat/mcewatch/internal/shared"
)

// proxyKey identifies a shared proxy. A proxy delivers every signal on its
// own loop, so callers on different loops never share one.
type proxyKey struct {
	address string
	loop    *eventloop.Loop
}

// proxies holds one proxy per bus address and event loop. Every entity
// instance holds a reference; the last Release closes the bus connection.
var proxies = shared.NewRegistry[proxyKey, *Proxy]()

// Acquire returns the proxy for cfg.Address and cfg.Loop, opening it on first
// use. Later callers with the same address and loop share it.
func Acquire(cfg Config) (*Proxy, error) {
	p, _, err := proxies.Acquire(proxyKey{cfg.Address, cfg.Loop}, func() (*Proxy, error) {
		return Open(cfg)
	}, func(p *Proxy) {
		p.closeOnLoop()
	})
	return p, err
}

// Dialer returns an mce.Dialer that hands every entity instance a
// reference to the shared proxy for cfg.Address and cfg.Loop.
func Dialer(cfg Config) mce.Dialer {
	return func() (mce.Connection, error) {
		p, err := Acquire(cfg)
		if err != nil {
			return nil, err
		}
		return p, nil
	}
}

// Release drops a reference taken by Acquire.
func (p *Proxy) Release() {
	if _, err := proxies.Release(proxyKey{p.cfg.Address, p.cfg.Loop}); err != nil {
		p.log.Warn("release of dead proxy", "error", err)
	}
}

// closeOnLoop closes the proxy from whichever goroutine dropped the last
// reference.
func (p *Proxy) closeOnLoop() {
	p.cancel()
	p.loop.Post(func() { p.Close() })
}
