package dns

import (
	"context"
	"fmt"
	"strings"
)

// Zone is a provider-hosted DNS zone.
type Zone struct {
	ID   string
	Name string
}

// Record represents a DNS record as stored by the provider.
type Record struct {
	ID      string // provider-assigned, empty until created
	Name    string // FQDN without trailing dot, e.g. "_acme-challenge.app.example.com"
	Type    string // "TXT"
	Content string
	TTL     int // seconds
}

// Provider is the interface that DNS providers must implement.
//
// Lookups return an empty slice, not an error, when nothing matches.
type Provider interface {
	FindZones(ctx context.Context, name string) ([]Zone, error)
	FindRecords(ctx context.Context, zoneID, recordType, name, content string) ([]Record, error)
	CreateRecord(ctx context.Context, zoneID string, record Record) (Record, error)
	DeleteRecord(ctx context.Context, zoneID, recordID string) error
}

// APIError is returned by providers when the remote API rejected a request,
// as opposed to a transport failure.
type APIError struct {
	Provider   string
	StatusCode int
	Messages   []string
}

func (e *APIError) Error() string {
	msg := strings.Join(e.Messages, "; ")
	if msg == "" {
		msg = "no error details"
	}
	return fmt.Sprintf("%s: API returned status %d: %s", e.Provider, e.StatusCode, msg)
}
