package propagation

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/miekg/dns"
)

// ResolvConf is the system resolver configuration read when no servers are
// configured.
var ResolvConf = "/etc/resolv.conf"

// Resolver queries TXT records from a fixed list of recursive name servers.
type Resolver struct {
	Servers []string // host:port

	udp *dns.Client
	tcp *dns.Client
}

// NewResolver returns a Resolver for the given servers. Entries may omit the
// port, in which case 53 is used. With no servers, the system resolvers from
// /etc/resolv.conf are used.
func NewResolver(servers []string) (*Resolver, error) {
	var addrs []string
	for _, s := range servers {
		if s = strings.TrimSpace(s); s != "" {
			addrs = append(addrs, serverAddr(s))
		}
	}

	if len(addrs) == 0 {
		cfg, err := dns.ClientConfigFromFile(ResolvConf)
		if err != nil {
			return nil, fmt.Errorf("reading system resolver config: %w", err)
		}
		for _, s := range cfg.Servers {
			addrs = append(addrs, net.JoinHostPort(s, cfg.Port))
		}
		if len(addrs) == 0 {
			return nil, fmt.Errorf("no name servers in %s", ResolvConf)
		}
	}

	return &Resolver{
		Servers: addrs,
		udp:     &dns.Client{Net: "udp"},
		tcp:     &dns.Client{Net: "tcp"},
	}, nil
}

func serverAddr(s string) string {
	if ip := net.ParseIP(strings.Trim(s, "[]")); ip != nil {
		return net.JoinHostPort(ip.String(), "53")
	}
	if _, _, err := net.SplitHostPort(s); err == nil {
		return s
	}
	return net.JoinHostPort(s, "53")
}

// LookupTXT returns every character-string of every TXT record for name.
// Servers are tried in order until one answers; NXDOMAIN is an error.
func (r *Resolver) LookupTXT(ctx context.Context, name string) ([]string, error) {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(name), dns.TypeTXT)

	var errs []error
	for _, server := range r.Servers {
		in, _, err := r.udp.ExchangeContext(ctx, m, server)
		if err == nil && in.Truncated {
			in, _, err = r.tcp.ExchangeContext(ctx, m, server)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", server, err))
			continue
		}

		switch in.Rcode {
		case dns.RcodeSuccess:
			var values []string
			for _, rr := range in.Answer {
				if txt, ok := rr.(*dns.TXT); ok {
					values = append(values, txt.Txt...)
				}
			}
			return values, nil
		case dns.RcodeNameError:
			return nil, fmt.Errorf("%s: %s: NXDOMAIN", server, name)
		default:
			errs = append(errs, fmt.Errorf("%s: %s: %s", server, name, dns.RcodeToString[in.Rcode]))
		}
	}
	return nil, errors.Join(errs...)
}
