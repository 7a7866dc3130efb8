package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/projtrack/projtrack/internal/access"
	"github.com/projtrack/projtrack/internal/session"
)

type command func(ctx context.Context, e *env, args []string) int

var commands = map[string]command{
	"login":    runLogin,
	"logout":   runLogout,
	"whoami":   runWhoami,
	"check":    runCheck,
	"navigate": runNavigate,
	"projects": runProjects,
	"modules":  runModules,
	"assigned": runAssigned,
	"progress": runProgress,
	"users":    runUsers,
}

func newFlagSet(name string, e *env) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(e.stderr)
	return fs
}

func runLogin(ctx context.Context, e *env, args []string) int {
	fs := newFlagSet("login", e)
	username := fs.String("username", "", "username or display name")
	password := fs.String("password", "", "password (read from stdin when empty)")
	if err := fs.Parse(args); err != nil {
		return ExitUsage
	}
	name := strings.TrimSpace(*username)
	if name == "" && fs.NArg() > 0 {
		name = strings.TrimSpace(fs.Arg(0))
	}
	if name == "" {
		return e.failf(ExitUsage, "login: -username is required")
	}
	secret := *password
	if secret == "" {
		line, err := bufio.NewReader(e.stdin).ReadString('\n')
		if err != nil && err != io.EOF {
			return e.failf(ExitFailure, "login: read password: %v", err)
		}
		secret = strings.TrimRight(line, "\r\n")
	}
	if secret == "" {
		return e.failf(ExitUsage, "login: password is required")
	}

	ident, err := e.lifecycle.Login(ctx, name, secret)
	if err != nil {
		var authErr *session.AuthenticationError
		if errors.As(err, &authErr) {
			return e.failf(ExitUnauthenticated, "login: %s", authErr.Message)
		}
		return e.failf(ExitFailure, "login: %v", err)
	}
	_, _ = fmt.Fprintf(e.stdout, "signed in as %s (%s)\n", ident.Name, ident.Role)
	return ExitSuccess
}

func runLogout(ctx context.Context, e *env, args []string) int {
	if err := newFlagSet("logout", e).Parse(args); err != nil {
		return ExitUsage
	}
	e.lifecycle.Logout(ctx)
	e.dropped = true
	_, _ = fmt.Fprintln(e.stdout, "signed out")
	return ExitSuccess
}

func runWhoami(ctx context.Context, e *env, args []string) int {
	fs := newFlagSet("whoami", e)
	verify := fs.Bool("verify", false, "confirm the session with the server first")
	if err := fs.Parse(args); err != nil {
		return ExitUsage
	}
	if *verify {
		e.lifecycle.CheckAuth(ctx)
	}
	snap := e.lifecycle.Context().Snapshot()
	if snap.Identity == nil {
		return e.failf(ExitUnauthenticated, "not logged in")
	}
	_, _ = fmt.Fprintf(e.stdout, "%s (id %d, %s, %s)\n", snap.Identity.Name, snap.Identity.ID, snap.Identity.Role, snap.State)
	return ExitSuccess
}

func runCheck(ctx context.Context, e *env, args []string) int {
	if err := newFlagSet("check", e).Parse(args); err != nil {
		return ExitUsage
	}
	if !e.lifecycle.CheckAuth(ctx) {
		e.dropped = true
		return e.failf(ExitUnauthenticated, "session is not valid")
	}
	ident := e.lifecycle.Context().Identity()
	_, _ = fmt.Fprintf(e.stdout, "authenticated as %s (%s)\n", ident.Name, ident.Role)
	return ExitSuccess
}

func runNavigate(ctx context.Context, e *env, args []string) int {
	fs := newFlagSet("navigate", e)
	from := fs.String("from", "/", "route the navigation starts from")
	if err := fs.Parse(args); err != nil {
		return ExitUsage
	}
	if fs.NArg() != 1 {
		return e.failf(ExitUsage, "navigate: exactly one route is required")
	}
	settled, ok, err := e.guard.Navigate(ctx, *from, fs.Arg(0))
	if err != nil {
		return e.failf(ExitFailure, "navigate: %v", err)
	}
	if !ok {
		return e.failf(ExitFailure, "navigate: superseded, staying on %s", settled)
	}
	_, _ = fmt.Fprintln(e.stdout, settled)
	return ExitSuccess
}

func runProjects(ctx context.Context, e *env, args []string) int {
	fs := newFlagSet("projects", e)
	asJSON := fs.Bool("json", false, "print JSON")
	if err := fs.Parse(args); err != nil {
		return ExitUsage
	}
	if code := e.enter(ctx, "/projects"); code != ExitSuccess {
		return code
	}
	list, err := e.api.Projects(ctx)
	if err != nil {
		return e.apiFailure(ctx, "projects", err)
	}
	if *asJSON {
		return e.writeJSON(list)
	}
	tw := tabwriter.NewWriter(e.stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tNAME\tSTATUS\tPROGRESS\tMEMBERS")
	for _, p := range list {
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%d%%\t%d\n", p.ID, p.Name, p.Status, p.Progress, len(p.Members))
	}
	_ = tw.Flush()
	return ExitSuccess
}

func runModules(ctx context.Context, e *env, args []string) int {
	fs := newFlagSet("modules", e)
	asJSON := fs.Bool("json", false, "print JSON")
	if err := fs.Parse(args); err != nil {
		return ExitUsage
	}
	if fs.NArg() != 1 {
		return e.failf(ExitUsage, "modules: a project id is required")
	}
	projectID, err := parseID(fs.Arg(0))
	if err != nil {
		return e.failf(ExitUsage, "modules: %v", err)
	}
	if code := e.enter(ctx, "/projects"); code != ExitSuccess {
		return code
	}

	project, err := e.api.Project(ctx, projectID)
	if err != nil {
		return e.apiFailure(ctx, "modules", err)
	}
	list, err := e.api.ProjectModules(ctx, projectID)
	if err != nil {
		return e.apiFailure(ctx, "modules", err)
	}

	ident := e.lifecycle.Context().Identity()
	scope := project.Access()
	for i := range list {
		list[i].CanUpdate = access.CanUpdateModule(ident, list[i].Access(), scope)
	}
	if *asJSON {
		return e.writeJSON(list)
	}
	tw := tabwriter.NewWriter(e.stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tNAME\tSTATUS\tPROGRESS\tASSIGNEE\tUPDATE")
	for _, r := range list {
		assignee := "-"
		if r.AssignedTo != nil {
			assignee = r.AssignedTo.Name
		}
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%d%%\t%s\t%s\n", r.ID, r.Name, r.Status, r.Progress, assignee, yesNo(r.CanUpdate))
	}
	_ = tw.Flush()
	return ExitSuccess
}

func runAssigned(ctx context.Context, e *env, args []string) int {
	fs := newFlagSet("assigned", e)
	asJSON := fs.Bool("json", false, "print JSON")
	if err := fs.Parse(args); err != nil {
		return ExitUsage
	}
	if fs.NArg() > 1 {
		return e.failf(ExitUsage, "assigned: at most one user id")
	}
	if code := e.enter(ctx, "/projects"); code != ExitSuccess {
		return code
	}
	userID := e.lifecycle.Context().Identity().ID
	if fs.NArg() == 1 {
		id, err := parseID(fs.Arg(0))
		if err != nil {
			return e.failf(ExitUsage, "assigned: %v", err)
		}
		userID = id
	}

	list, err := e.api.UserModules(ctx, userID)
	if err != nil {
		return e.apiFailure(ctx, "assigned", err)
	}
	if *asJSON {
		return e.writeJSON(list)
	}
	tw := tabwriter.NewWriter(e.stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tPROJECT\tNAME\tSTATUS\tPROGRESS\tUPDATE")
	for _, m := range list {
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d%%\t%s\n", m.ID, m.ProjectName, m.Name, m.Status, m.Progress, yesNo(m.CanUpdate))
	}
	_ = tw.Flush()
	return ExitSuccess
}

func runProgress(ctx context.Context, e *env, args []string) int {
	fs := newFlagSet("progress", e)
	notes := fs.String("notes", "", "note stored with the progress record")
	if err := fs.Parse(args); err != nil {
		return ExitUsage
	}
	if fs.NArg() != 2 {
		return e.failf(ExitUsage, "progress: MODULE_ID and PERCENT are required")
	}
	moduleID, err := parseID(fs.Arg(0))
	if err != nil {
		return e.failf(ExitUsage, "progress: %v", err)
	}
	percent, err := strconv.Atoi(fs.Arg(1))
	if err != nil || percent < 0 || percent > 100 {
		return e.failf(ExitUsage, "progress: percent must be a whole number between 0 and 100")
	}
	if code := e.enter(ctx, "/projects"); code != ExitSuccess {
		return code
	}

	module, err := e.api.Module(ctx, moduleID)
	if err != nil {
		return e.apiFailure(ctx, "progress", err)
	}
	project, err := e.api.Project(ctx, module.ProjectID)
	if err != nil {
		return e.apiFailure(ctx, "progress", err)
	}
	if !access.CanUpdateModule(e.lifecycle.Context().Identity(), module.Access(), project.Access()) {
		return e.failf(ExitForbidden, "progress: permission denied")
	}

	updated, err := e.api.UpdateModuleProgress(ctx, moduleID, percent, *notes)
	if err != nil {
		return e.apiFailure(ctx, "progress", err)
	}
	_, _ = fmt.Fprintf(e.stdout, "module %d is now %d%% (%s)\n", updated.ID, updated.Progress, updated.Status)
	return ExitSuccess
}

func runUsers(ctx context.Context, e *env, args []string) int {
	fs := newFlagSet("users", e)
	asJSON := fs.Bool("json", false, "print JSON")
	if err := fs.Parse(args); err != nil {
		return ExitUsage
	}
	if code := e.enter(ctx, "/users"); code != ExitSuccess {
		return code
	}
	list, err := e.api.Users(ctx)
	if err != nil {
		return e.apiFailure(ctx, "users", err)
	}
	if *asJSON {
		return e.writeJSON(list)
	}
	tw := tabwriter.NewWriter(e.stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tUSERNAME\tNAME\tROLE\tPOSITION")
	for _, u := range list {
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", u.ID, u.Username, u.Name, u.Role, u.Position)
	}
	_ = tw.Flush()
	return ExitSuccess
}

func (e *env) writeJSON(v any) int {
	enc := json.NewEncoder(e.stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return e.failf(ExitFailure, "encode json: %v", err)
	}
	return ExitSuccess
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return id, nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
