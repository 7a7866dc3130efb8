// Package guard decides, for every navigation, whether the current identity
// may land on the target route or must be sent elsewhere.
package guard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/projtrack/projtrack/internal/session"
)

// Kind is the outcome of a before-navigation check.
type Kind int

const (
	// Allow lets the navigation proceed.
	Allow Kind = iota
	// Redirect sends the navigation to Decision.To instead.
	Redirect
	// Superseded means a newer navigation started while this one waited.
	// Nothing should be applied.
	Superseded
)

func (k Kind) String() string {
	switch k {
	case Redirect:
		return "redirect"
	case Superseded:
		return "superseded"
	default:
		return "allow"
	}
}

// Redirect reasons.
const (
	ReasonAuthenticated   = "already_authenticated"
	ReasonSessionInvalid  = "session_invalid"
	ReasonRoleForbidden   = "role_forbidden"
	ReasonNewerNavigation = "newer_navigation"
	ReasonCancelled       = "cancelled"
)

// Decision is what BeforeEach tells the caller to do.
type Decision struct {
	Kind   Kind
	To     string
	Reason string
}

// ErrRedirectLoop is returned by Navigate when redirects do not settle.
var ErrRedirectLoop = errors.New("guard: redirect loop")

const maxRedirects = 5

// SessionChecker revalidates the session with the backend.
// session.Lifecycle satisfies it.
type SessionChecker interface {
	CheckAuth(ctx context.Context) bool
}

// Recorder counts guard decisions.
type Recorder interface {
	RecordGuardDecision(kind, reason string)
}

// Guard evaluates navigations against a route table.
type Guard struct {
	cfg      *Config
	ident    *session.Context
	checker  SessionChecker
	logger   *slog.Logger
	recorder Recorder

	checks singleflight.Group
	seq    atomic.Uint64
}

// Option configures a Guard.
type Option func(*Guard)

// WithLogger sets the navigation logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Guard) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithRecorder sets the decision recorder.
func WithRecorder(r Recorder) Option {
	return func(g *Guard) { g.recorder = r }
}

// New builds a guard reading identity from ident and revalidating through checker.
func New(cfg *Config, ident *session.Context, checker SessionChecker, opts ...Option) (*Guard, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.roles == nil {
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("guard: %w", err)
		}
	}
	if ident == nil || checker == nil {
		return nil, errors.New("guard: identity context and session checker are required")
	}
	g := &Guard{
		cfg:     cfg,
		ident:   ident,
		checker: checker,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Config returns the route table in use.
func (g *Guard) Config() *Config { return g.cfg }

// BeforeEach decides whether navigation to target may proceed.
func (g *Guard) BeforeEach(ctx context.Context, target string) Decision {
	n := g.seq.Add(1)
	d := g.decide(ctx, n, routePath(target))
	g.record(d)
	return d
}

func (g *Guard) decide(ctx context.Context, n uint64, path string) Decision {
	if path == g.cfg.LoginRoute {
		if g.ident.HasIdentity() {
			return g.redirect(g.cfg.DefaultRoute, ReasonAuthenticated)
		}
		return Decision{Kind: Allow}
	}

	if !g.cfg.IsProtected(path) {
		return Decision{Kind: Allow}
	}

	if !g.ident.Verified() {
		ok, err := g.checkSession(ctx)
		if err != nil {
			return Decision{Kind: Superseded, Reason: ReasonCancelled}
		}
		if g.seq.Load() != n {
			return Decision{Kind: Superseded, Reason: ReasonNewerNavigation}
		}
		if !ok {
			return g.redirect(g.cfg.LoginRoute, ReasonSessionInvalid)
		}
	}

	ident := g.ident.Identity()
	if ident == nil {
		return g.redirect(g.cfg.LoginRoute, ReasonSessionInvalid)
	}
	if !g.cfg.Allows(ident.Role, path) {
		return g.redirect(g.cfg.DefaultRoute, ReasonRoleForbidden)
	}
	return Decision{Kind: Allow}
}

// checkSession shares one backend check among overlapping navigations.
// The shared call outlives any single caller's cancellation.
func (g *Guard) checkSession(ctx context.Context) (bool, error) {
	ch := g.checks.DoChan("check", func() (any, error) {
		return g.checker.CheckAuth(context.WithoutCancel(ctx)), nil
	})
	select {
	case res := <-ch:
		ok, _ := res.Val.(bool)
		return ok, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func (g *Guard) redirect(to, reason string) Decision {
	return Decision{Kind: Redirect, To: to, Reason: reason}
}

func (g *Guard) record(d Decision) {
	if g.recorder != nil {
		g.recorder.RecordGuardDecision(d.Kind.String(), d.Reason)
	}
}

// AfterEach logs a completed navigation. It has no say in the outcome.
func (g *Guard) AfterEach(from, to string) {
	g.logger.Info("navigation", slog.String("from", from), slog.String("to", to))
}

// Navigate runs BeforeEach, follows redirects, then AfterEach. It returns
// the route the navigation settled on. A superseded navigation returns
// from unchanged with ok == false.
func (g *Guard) Navigate(ctx context.Context, from, to string) (string, bool, error) {
	target := to
	for hop := 0; hop <= maxRedirects; hop++ {
		d := g.BeforeEach(ctx, target)
		switch d.Kind {
		case Allow:
			g.AfterEach(from, target)
			return target, true, nil
		case Superseded:
			g.logger.Debug("navigation superseded", slog.String("to", target), slog.String("reason", d.Reason))
			return from, false, nil
		}
		g.logger.Debug("navigation redirected",
			slog.String("to", target), slog.String("redirect", d.To), slog.String("reason", d.Reason))
		target = d.To
	}
	return from, false, fmt.Errorf("%w: %s", ErrRedirectLoop, to)
}

// routePath drops query and fragment from a route.
func routePath(target string) string {
	u, err := url.Parse(target)
	if err != nil || u.Path == "" {
		return target
	}
	return u.Path
}
