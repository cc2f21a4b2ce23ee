package hook

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-logr/logr"

	"github.com/g0dsCookie/dehydrated-cloudflare/internal/dns"
	"github.com/g0dsCookie/dehydrated-cloudflare/internal/zonecache"
)

// ErrZoneNotFound is returned when no suffix of a domain is a zone at the provider.
var ErrZoneNotFound = errors.New("no zone found")

// ZoneResolver finds the provider zone owning a domain.
type ZoneResolver struct {
	DNS   dns.Provider
	Cache *zonecache.Cache
	Log   logr.Logger
}

// Resolve walks the domain's suffixes, most specific first, and returns the id
// of the first one that is a zone. Cached answers, positive or negative, skip
// the provider call; fresh answers are cached.
func (r *ZoneResolver) Resolve(ctx context.Context, domain string) (string, error) {
	for candidate := range dns.Candidates(domain) {
		id, status := r.Cache.Lookup(candidate)
		switch status {
		case zonecache.Found:
			r.Log.V(1).Info("using cached zone id", "domain", domain, "zone", candidate, "id", id)
			return id, nil
		case zonecache.Absent:
			continue
		}

		zones, err := r.DNS.FindZones(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("looking up zone %s: %w", candidate, err)
		}
		if len(zones) == 0 {
			r.Log.V(1).Info("zone not found", "domain", domain, "zone", candidate)
			r.Cache.Store(candidate, "")
			continue
		}
		if len(zones) > 1 {
			r.Log.Info("found multiple zones, using the first", "zone", candidate, "count", len(zones))
		}

		r.Log.V(1).Info("found zone id", "domain", domain, "zone", candidate, "id", zones[0].ID)
		r.Cache.Store(candidate, zones[0].ID)
		return zones[0].ID, nil
	}
	return "", fmt.Errorf("%w for domain %s", ErrZoneNotFound, domain)
}
