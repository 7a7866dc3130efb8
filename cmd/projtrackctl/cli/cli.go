// Package cli implements the projtrackctl commands.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/projtrack/projtrack/internal/app"
	"github.com/projtrack/projtrack/internal/client"
	"github.com/projtrack/projtrack/internal/guard"
	"github.com/projtrack/projtrack/internal/session"
)

// Exit codes.
const (
	ExitSuccess         = 0
	ExitFailure         = 1
	ExitUsage           = 2
	ExitUnauthenticated = 3
	ExitForbidden       = 4
)

// Options carries everything a command run needs besides its arguments.
type Options struct {
	Config     *app.ClientConfig
	HTTPClient *http.Client
	Logger     *slog.Logger
	Stdin      io.Reader
	Stdout     io.Writer
	Stderr     io.Writer
}

const usage = `usage: projtrackctl <command> [flags]

commands:
  login     -username NAME [-password PASS]   sign in (password read from stdin when omitted)
  logout                                      sign out and forget the local session
  whoami    [-verify]                         show the signed-in user
  check                                       revalidate the session with the server
  navigate  [-from ROUTE] ROUTE               run the route guard and print where navigation lands
  projects  [-json]                           list visible projects
  modules   [-json] PROJECT_ID                list a project's modules and whether you may update them
  assigned  [-json] [USER_ID]                 list modules assigned to you or to USER_ID
  progress  [-notes TEXT] MODULE_ID PERCENT   set a module's progress
  users     [-json]                           list users (managers only)
`

// Run executes one command and returns the process exit code.
func Run(ctx context.Context, args []string, opts Options) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		_, _ = fmt.Fprint(opts.Stderr, usage)
		return ExitUsage
	}

	cmd, ok := commands[args[0]]
	if !ok {
		_, _ = fmt.Fprintf(opts.Stderr, "projtrackctl: unknown command %q\n\n%s", args[0], usage)
		return ExitUsage
	}

	env, err := newEnv(opts)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "projtrackctl: %v\n", err)
		return ExitFailure
	}
	code := cmd(ctx, env, args[1:])
	env.saveCookies()
	return code
}

// env is the per-run wiring shared by all commands.
type env struct {
	cfg       *app.ClientConfig
	api       *client.Client
	lifecycle *session.Lifecycle
	guard     *guard.Guard
	cookies   cookieFile
	logger    *slog.Logger
	stdin     io.Reader
	stdout    io.Writer
	stderr    io.Writer
	dropped   bool
}

func newEnv(opts Options) (*env, error) {
	cfg := opts.Config
	if cfg == nil {
		loaded, err := app.LoadClientConfig()
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}
	logger := opts.Logger
	if logger == nil {
		logger = app.NewClientLogger(cfg, opts.Stderr)
	}

	var clientOpts []client.Option
	if opts.HTTPClient != nil {
		clientOpts = append(clientOpts, client.WithHTTPClient(opts.HTTPClient))
	}
	clientOpts = append(clientOpts, client.WithTimeout(cfg.Timeout), client.WithLogger(logger))
	api, err := client.New(cfg.APIURL, clientOpts...)
	if err != nil {
		return nil, err
	}

	cookies := cookieFile{path: cfg.CookieFile()}
	saved, err := cookies.load()
	if err != nil {
		logger.Warn("ignoring saved cookies", slog.Any("error", err))
	}
	if len(saved) > 0 {
		api.SetCookies(saved)
	}

	lifecycle := session.NewLifecycle(api, session.NewFileStore(cfg.UserFile()),
		session.WithLogger(logger), session.WithRequestTimeout(cfg.Timeout))
	lifecycle.Restore(context.Background())

	routes := guard.DefaultConfig()
	if cfg.RoutesFile != "" {
		routes, err = guard.LoadConfig(cfg.RoutesFile)
		if err != nil {
			return nil, err
		}
	}
	g, err := guard.New(routes, lifecycle.Context(), lifecycle, guard.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	return &env{
		cfg:       cfg,
		api:       api,
		lifecycle: lifecycle,
		guard:     g,
		cookies:   cookies,
		logger:    logger,
		stdin:     opts.Stdin,
		stdout:    opts.Stdout,
		stderr:    opts.Stderr,
	}, nil
}

func (e *env) saveCookies() {
	var err error
	if e.dropped || !e.lifecycle.Context().HasIdentity() {
		err = e.cookies.clear()
	} else {
		err = e.cookies.save(e.api.Cookies())
	}
	if err != nil {
		e.logger.Warn("persist cookies", slog.Any("error", err))
	}
}

func (e *env) failf(code int, format string, args ...any) int {
	_, _ = fmt.Fprintf(e.stderr, format+"\n", args...)
	return code
}

// enter runs the route guard for route and reports a non-zero exit code when
// the navigation did not land there.
func (e *env) enter(ctx context.Context, route string) int {
	settled, ok, err := e.guard.Navigate(ctx, "/", route)
	if err != nil {
		return e.failf(ExitFailure, "navigate %s: %v", route, err)
	}
	if !ok {
		return e.failf(ExitFailure, "navigate %s: cancelled", route)
	}
	if settled == route {
		return ExitSuccess
	}
	if settled == e.guard.Config().LoginRoute {
		return e.failf(ExitUnauthenticated, "not logged in: run projtrackctl login")
	}
	return e.failf(ExitForbidden, "permission denied: %s is not available to your role", route)
}

// apiFailure maps a client error to a message and exit code. A 401 means the
// server no longer knows the session, so the local identity goes too.
func (e *env) apiFailure(ctx context.Context, op string, err error) int {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusUnauthorized:
			e.dropped = true
			e.lifecycle.Invalidate(ctx)
			return e.failf(ExitUnauthenticated, "%s: %s", op, apiErr.UserMessage())
		case http.StatusForbidden:
			return e.failf(ExitForbidden, "%s: %s", op, apiErr.UserMessage())
		}
		return e.failf(ExitFailure, "%s: %s", op, apiErr.UserMessage())
	}
	var transportErr *client.TransportError
	if errors.As(err, &transportErr) {
		return e.failf(ExitFailure, "%s: %s", op, transportErr.UserMessage())
	}
	return e.failf(ExitFailure, "%s: %v", op, err)
}
