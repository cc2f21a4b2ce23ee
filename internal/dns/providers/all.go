// Package providers imports all DNS provider packages to trigger their init() registration.
package providers

import (
	_ "github.com/g0dsCookie/dehydrated-cloudflare/internal/dns/cloudflare"
)
