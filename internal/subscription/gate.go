// Package subscription tracks, per client, whether premium features are unlocked.
package subscription

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/digkill/ghola/internal/lemonsqueezy"
)

type State int

const (
	StateUnchecked State = iota
	StateChecking
	StatePremium
	StateFree
)

func (s State) String() string {
	switch s {
	case StateChecking:
		return "checking"
	case StatePremium:
		return "premium"
	case StateFree:
		return "free"
	default:
		return "unchecked"
	}
}

var (
	ErrEmailRequired      = errors.New("email is required")
	ErrLicenseKeyRequired = errors.New("license key is required")
	ErrLicenseCheck       = errors.New("license check failed")
	ErrLicensesDisabled   = errors.New("license validation is not configured")
)

type Checker interface {
	HasActiveSubscription(ctx context.Context, email string) (bool, error)
}

type LicenseValidator interface {
	ValidateLicense(ctx context.Context, licenseKey string) (lemonsqueezy.LicenseResult, error)
}

type Resolution struct {
	Email     string
	IsPremium bool
}

// Outcome is what the shell shows after a check. CheckoutURL is set when the email has no subscription.
type Outcome struct {
	State       State
	Email       string
	CheckoutURL string
	Message     string
}

func (o Outcome) IsPremium() bool {
	return o.State == StatePremium
}

type Options struct {
	Checker     Checker
	Licenses    LicenseValidator
	Cache       EmailCache
	CheckoutURL string
	OnResolve   func(key string, r Resolution)
	Logger      *slog.Logger
}

type entry struct {
	state    State
	email    string
	licensed bool
}

type Gate struct {
	checker     Checker
	licenses    LicenseValidator
	cache       EmailCache
	checkoutURL string
	onResolve   func(key string, r Resolution)
	log         *slog.Logger

	mu      sync.Mutex
	entries map[string]*entry
}

func NewGate(opts Options) *Gate {
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	cache := opts.Cache
	if cache == nil {
		cache = NewMemoryEmailCache()
	}
	return &Gate{
		checker:     opts.Checker,
		licenses:    opts.Licenses,
		cache:       cache,
		checkoutURL: opts.CheckoutURL,
		onResolve:   opts.OnResolve,
		log:         log,
		entries:     make(map[string]*entry),
	}
}

func (g *Gate) State(key string) State {
	g.mu.Lock()
	defer g.mu.Unlock()
	if e, ok := g.entries[key]; ok {
		return e.state
	}
	return StateUnchecked
}

func (g *Gate) IsPremium(key string) bool {
	return g.State(key) == StatePremium
}

// Email returns the email the client last submitted, if any.
func (g *Gate) Email(ctx context.Context, key string) string {
	g.mu.Lock()
	e, ok := g.entries[key]
	g.mu.Unlock()
	if ok && e.email != "" {
		return e.email
	}
	email, err := g.cache.GetEmail(ctx, key)
	if err != nil {
		g.log.Warn("read cached email", "key", key, "err", err)
		return ""
	}
	return email
}

// Restore re-checks a returning client with its cached email. Without one the state stays unchecked.
func (g *Gate) Restore(ctx context.Context, key string) (Outcome, error) {
	g.mu.Lock()
	if e, ok := g.entries[key]; ok && e.licensed {
		g.mu.Unlock()
		return Outcome{State: StatePremium, Email: e.email}, nil
	}
	g.mu.Unlock()

	email, err := g.cache.GetEmail(ctx, key)
	if err != nil {
		g.log.Warn("read cached email", "key", key, "err", err)
	}
	if email == "" {
		return Outcome{State: g.State(key)}, nil
	}
	return g.check(ctx, key, email)
}

// Submit caches email and checks it. On a miss the outcome carries the checkout link;
// the tier only changes on a later check.
func (g *Gate) Submit(ctx context.Context, key, email string) (Outcome, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return Outcome{State: g.State(key)}, ErrEmailRequired
	}
	if err := g.cache.SetEmail(ctx, key, email); err != nil {
		g.log.Warn("cache email", "key", key, "err", err)
	}

	out, err := g.check(ctx, key, email)
	if err == nil && !out.IsPremium() {
		out.CheckoutURL = lemonsqueezy.CheckoutURL(g.checkoutURL, email)
	}
	return out, err
}

// ActivateLicense unlocks premium for key when the license is valid or already activated.
func (g *Gate) ActivateLicense(ctx context.Context, key, licenseKey string) (Outcome, error) {
	licenseKey = strings.TrimSpace(licenseKey)
	if licenseKey == "" {
		return Outcome{State: g.State(key)}, ErrLicenseKeyRequired
	}
	if g.licenses == nil {
		return Outcome{State: g.State(key)}, ErrLicensesDisabled
	}

	res, err := g.licenses.ValidateLicense(ctx, licenseKey)
	if err != nil {
		g.log.Error("validate license", "key", key, "err", err)
		return Outcome{State: g.State(key)}, fmt.Errorf("%w: %v", ErrLicenseCheck, err)
	}
	if !res.OK() {
		msg := res.Error
		if msg == "" {
			msg = "Invalid license key"
		}
		return Outcome{State: g.State(key), Message: msg}, nil
	}

	g.mu.Lock()
	e := g.entry(key)
	e.state = StatePremium
	e.licensed = true
	email := e.email
	g.mu.Unlock()

	g.resolve(key, Resolution{Email: email, IsPremium: true})
	return Outcome{State: StatePremium, Email: email}, nil
}

func (g *Gate) check(ctx context.Context, key, email string) (Outcome, error) {
	g.mu.Lock()
	e := g.entry(key)
	e.state = StateChecking
	e.email = email
	g.mu.Unlock()

	premium := false
	var checkErr error
	if g.checker != nil {
		premium, checkErr = g.checker.HasActiveSubscription(ctx, email)
		if checkErr != nil {
			g.log.Error("subscription check failed", "key", key, "err", checkErr)
			premium = false
		}
	}

	state := StateFree
	if premium {
		state = StatePremium
	}
	g.mu.Lock()
	e.state = state
	g.mu.Unlock()

	g.resolve(key, Resolution{Email: email, IsPremium: premium})

	out := Outcome{State: state, Email: email}
	if checkErr != nil {
		return out, fmt.Errorf("check subscription: %w", checkErr)
	}
	return out, nil
}

// entry must be called with mu held.
func (g *Gate) entry(key string) *entry {
	e, ok := g.entries[key]
	if !ok {
		e = &entry{}
		g.entries[key] = e
	}
	return e
}

func (g *Gate) resolve(key string, r Resolution) {
	if g.onResolve != nil {
		g.onResolve(key, r)
	}
}
