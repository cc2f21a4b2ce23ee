// Package hook implements the dehydrated DNS-01 hook actions.
package hook

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-logr/logr"

	"github.com/g0dsCookie/dehydrated-cloudflare/internal/dns"
	"github.com/g0dsCookie/dehydrated-cloudflare/internal/zonecache"
)

// Action is a hook action this program handles.
type Action int

const (
	DeployChallenge Action = iota + 1
	CleanChallenge
)

func (a Action) String() string {
	switch a {
	case DeployChallenge:
		return "deploy_challenge"
	case CleanChallenge:
		return "clean_challenge"
	default:
		return fmt.Sprintf("Action(%d)", int(a))
	}
}

// ParseAction maps a dehydrated action name to an Action. Every other hook
// event (startup_hook, deploy_cert, ...) is reported as not handled.
func ParseAction(name string) (Action, bool) {
	switch name {
	case "deploy_challenge":
		return DeployChallenge, true
	case "clean_challenge":
		return CleanChallenge, true
	}
	return 0, false
}

// Challenge is one (domain, token file, token) argument triple. The token
// file is part of the calling convention but never read.
type Challenge struct {
	Domain        string
	TokenFilename string
	Token         string
}

// ParseChallenges splits hook arguments into triples. dehydrated passes
// several triples at once when HOOK_CHAIN is enabled.
func ParseChallenges(args []string) ([]Challenge, error) {
	if len(args) == 0 || len(args)%3 != 0 {
		return nil, fmt.Errorf("expected <domain> <token-filename> <token-value> triples, got %d arguments", len(args))
	}
	challenges := make([]Challenge, 0, len(args)/3)
	for i := 0; i < len(args); i += 3 {
		challenges = append(challenges, Challenge{
			Domain:        args[i],
			TokenFilename: args[i+1],
			Token:         args[i+2],
		})
	}
	return challenges, nil
}

// Awaiter blocks until a challenge token is visible in DNS.
type Awaiter interface {
	Await(ctx context.Context, name, token string) (int, error)
}

// Hook runs hook actions against a DNS provider.
type Hook struct {
	Cache     *zonecache.Cache
	CachePath string
	Zones     *ZoneResolver
	Records   *RecordReconciler
	Gate      Awaiter
	Log       logr.Logger
}

// New wires a Hook from its collaborators.
func New(provider dns.Provider, cache *zonecache.Cache, cachePath string, gate Awaiter, log logr.Logger) *Hook {
	return &Hook{
		Cache:     cache,
		CachePath: cachePath,
		Zones:     &ZoneResolver{DNS: provider, Cache: cache, Log: log.WithName("zones")},
		Records:   &RecordReconciler{DNS: provider, Log: log.WithName("records")},
		Gate:      gate,
		Log:       log,
	}
}

// Result summarizes one hook invocation.
type Result struct {
	Action   Action
	Handled  bool
	Domains  int
	Failures []error
}

// Err joins all failures, or returns nil when every domain succeeded.
func (r *Result) Err() error {
	return errors.Join(r.Failures...)
}

// Run dispatches the named action. Unknown actions are ignored. Failures of
// individual domains are logged and collected in the result, not returned;
// the remaining domains are still processed.
func (h *Hook) Run(ctx context.Context, name string, args []string) *Result {
	action, ok := ParseAction(name)
	if !ok {
		h.Log.V(1).Info("unknown action, ignoring", "action", name)
		return &Result{}
	}

	res := &Result{Action: action, Handled: true}
	challenges, err := ParseChallenges(args)
	if err != nil {
		h.Log.Error(err, "invalid arguments", "action", action.String())
		res.Failures = append(res.Failures, err)
		return res
	}

	h.Log.V(1).Info("hook executing", "action", action.String())

	if err := h.Cache.Load(h.CachePath); err != nil {
		h.Log.Error(err, "unable to load cache, starting empty", "path", h.CachePath)
	}

	handle := h.handler(action)
	for _, c := range challenges {
		res.Domains++
		if err := handle(ctx, c); err != nil {
			h.Log.Error(err, "action failed", "action", action.String(), "domain", c.Domain)
			res.Failures = append(res.Failures, fmt.Errorf("%s %s: %w", action, c.Domain, err))
		}
	}

	if err := h.Cache.Save(h.CachePath); err != nil {
		h.Log.Error(err, "unable to save cache", "path", h.CachePath)
		res.Failures = append(res.Failures, err)
	}
	return res
}

func (h *Hook) handler(a Action) func(context.Context, Challenge) error {
	switch a {
	case DeployChallenge:
		return h.deploy
	case CleanChallenge:
		return h.clean
	}
	panic(fmt.Sprintf("hook: no handler for %v", a))
}

func (h *Hook) deploy(ctx context.Context, c Challenge) error {
	h.Log.V(1).Info("deploying challenge", "domain", c.Domain, "token", c.Token)

	zoneID, err := h.Zones.Resolve(ctx, c.Domain)
	if err != nil {
		return err
	}

	name := dns.ChallengeName(c.Domain)
	if _, err := h.Records.Ensure(ctx, zoneID, name, c.Token); err != nil {
		return err
	}

	// An existing record may come from a run that stopped before propagation.
	if _, err := h.Gate.Await(ctx, name, c.Token); err != nil {
		return fmt.Errorf("waiting for %s: %w", name, err)
	}
	h.Log.Info("challenge deployed", "name", name)
	return nil
}

func (h *Hook) clean(ctx context.Context, c Challenge) error {
	h.Log.V(1).Info("cleaning challenge", "domain", c.Domain, "token", c.Token)

	zoneID, err := h.Zones.Resolve(ctx, c.Domain)
	if err != nil {
		return err
	}

	name := dns.ChallengeName(c.Domain)
	deleted, err := h.Records.Remove(ctx, zoneID, name, c.Token)
	if err != nil {
		return err
	}
	if !deleted {
		h.Log.V(1).Info("no TXT record found", "domain", c.Domain)
	}
	return nil
}
