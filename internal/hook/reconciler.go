package hook

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"

	"github.com/g0dsCookie/dehydrated-cloudflare/internal/dns"
)

// ChallengeTTL is the TTL, in seconds, of created challenge records.
const ChallengeTTL = 120

// RecordReconciler keeps challenge TXT records in the requested state. A
// record is identified by name and content, so concurrent challenges for the
// same name never touch each other's records.
type RecordReconciler struct {
	DNS dns.Provider
	Log logr.Logger
}

func (r *RecordReconciler) find(ctx context.Context, zoneID, name, token string) (dns.Record, bool, error) {
	records, err := r.DNS.FindRecords(ctx, zoneID, "TXT", name, token)
	if err != nil {
		return dns.Record{}, false, fmt.Errorf("looking up TXT record %s: %w", name, err)
	}
	if len(records) == 0 {
		r.Log.V(1).Info("TXT record not found", "name", name, "content", token)
		return dns.Record{}, false, nil
	}
	if len(records) > 1 {
		r.Log.Info("found multiple TXT records, using the first", "name", name, "content", token, "count", len(records))
	}
	return records[0], true, nil
}

// Ensure creates the TXT record unless it already exists. It reports whether
// a record was created.
func (r *RecordReconciler) Ensure(ctx context.Context, zoneID, name, token string) (bool, error) {
	if _, ok, err := r.find(ctx, zoneID, name, token); err != nil {
		return false, err
	} else if ok {
		r.Log.V(1).Info("TXT record already exists, skipping creation", "name", name)
		return false, nil
	}

	rec, err := r.DNS.CreateRecord(ctx, zoneID, dns.Record{
		Name:    name,
		Type:    "TXT",
		Content: token,
		TTL:     ChallengeTTL,
	})
	if err != nil {
		return false, fmt.Errorf("creating TXT record %s: %w", name, err)
	}

	r.Log.V(1).Info("created TXT record", "name", name, "id", rec.ID)
	return true, nil
}

// Remove deletes the TXT record if it exists. It reports whether a record was
// deleted.
func (r *RecordReconciler) Remove(ctx context.Context, zoneID, name, token string) (bool, error) {
	rec, ok, err := r.find(ctx, zoneID, name, token)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	if err := r.DNS.DeleteRecord(ctx, zoneID, rec.ID); err != nil {
		return false, fmt.Errorf("deleting TXT record %s: %w", name, err)
	}

	r.Log.Info("deleted TXT record", "name", name, "id", rec.ID)
	return true, nil
}
