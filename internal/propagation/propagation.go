// Package propagation waits for a DNS-01 challenge record to become visible
// through recursive DNS.
package propagation

import (
	"context"
	"slices"
	"time"

	"github.com/go-logr/logr"
)

// DefaultInterval is the pause between two TXT queries.
const DefaultInterval = 10 * time.Second

// Lookuper resolves the TXT values published for a name.
type Lookuper interface {
	LookupTXT(ctx context.Context, name string) ([]string, error)
}

// LookupFunc adapts a function to Lookuper.
type LookupFunc func(ctx context.Context, name string) ([]string, error)

func (f LookupFunc) LookupTXT(ctx context.Context, name string) ([]string, error) {
	return f(ctx, name)
}

// Gate blocks until a challenge token is observable in DNS.
type Gate struct {
	Lookup   Lookuper
	Interval time.Duration
	Log      logr.Logger

	// Sleep waits between polls; nil uses a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Await polls TXT records for name until one of them equals token. Lookup
// errors count as not yet propagated. There is no retry limit; only ctx ends
// the wait early. It returns the number of queries made.
func (g *Gate) Await(ctx context.Context, name, token string) (int, error) {
	sleep := g.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	for attempt := 1; ; attempt++ {
		values, err := g.Lookup.LookupTXT(ctx, name)
		if err != nil {
			g.Log.V(1).Info("TXT query failed, retrying", "name", name, "error", err.Error())
		} else if slices.Contains(values, token) {
			g.Log.V(1).Info("challenge propagated", "name", name, "attempts", attempt)
			return attempt, nil
		}

		g.Log.Info("DNS not propagated, waiting", "name", name, "interval", g.Interval.String())
		if err := sleep(ctx, g.Interval); err != nil {
			return attempt, err
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
