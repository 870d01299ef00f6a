package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/minmer/recreatio-sub002/internal/client/client"
	"github.com/minmer/recreatio-sub002/internal/common"
)

var errUsage = errors.New("invalid usage")

type command struct {
	help string
	run  func(a *App, ctx context.Context, args []string) error
}

var commandOrder = []string{"register", "login", "logout", "passwd", "secure", "roles", "verify", "export"}

var commands map[string]command

func init() {
	commands = map[string]command{
		"register": {"register <login> [display name]", (*App).register},
		"login":    {"login [-secure] <login>", (*App).login},
		"logout":   {"end the current session", (*App).logout},
		"passwd":   {"change the password; every session ends", (*App).passwd},
		"secure":   {"secure on|off for later logins", (*App).secure},
		"roles":    {"list roles reachable from the account", (*App).roles},
		"verify":   {"verify [-role id] [auth|key|business ...]", (*App).verify},
		"export":   {"export <auth|key|business> to the data dir", (*App).export},
	}
}

func newFlagSet(name string, w io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(w)
	return fs
}

func (a *App) loginID(args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	return GetSimpleText(a.reader, "Enter login", a.out)
}

// newPassword reads a password twice and checks both match.
func (a *App) newPassword(prompt string) ([]byte, error) {
	pw, err := getPassword(prompt, a.out)
	if err != nil {
		return nil, err
	}
	again, err := getPassword("Repeat", a.out)
	if err != nil {
		common.WipeByteArray(pw)
		return nil, err
	}
	defer common.WipeByteArray(again)
	if string(pw) != string(again) {
		common.WipeByteArray(pw)
		return nil, errors.New("passwords do not match")
	}
	return pw, nil
}

func (a *App) register(ctx context.Context, args []string) error {
	loginID, err := a.loginID(args)
	if err != nil {
		return err
	}
	name := strings.Join(args[min(1, len(args)):], " ")

	pw, err := a.newPassword("Password")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(pw)

	id, err := a.svc.Register(ctx, loginID, name, pw)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Registered account %s\n", id)
	return nil
}

func (a *App) login(ctx context.Context, args []string) error {
	fs := newFlagSet("login", a.out)
	secure := fs.Bool("secure", false, "keep the master key off the server cache")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	loginID, err := a.loginID(fs.Args())
	if err != nil {
		return err
	}
	pw, err := getPassword("Password", a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(pw)

	resp, err := a.svc.Login(ctx, loginID, pw, *secure)
	if err != nil {
		return err
	}
	mode := "normal"
	if resp.SecureMode {
		mode = "secure"
	}
	fmt.Fprintf(a.out, "Logged in (%s session %s)\n", mode, resp.SessionID)
	return nil
}

func (a *App) logout(ctx context.Context, _ []string) error {
	if err := a.svc.Logout(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Logged out")
	return nil
}

func (a *App) passwd(ctx context.Context, _ []string) error {
	old, err := getPassword("Current password", a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(old)

	pw, err := a.newPassword("New password")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(pw)

	if err := a.svc.ChangePassword(ctx, old, pw); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Password changed. Log in again.")
	return nil
}

func (a *App) secure(ctx context.Context, args []string) error {
	if len(args) != 1 || (args[0] != "on" && args[0] != "off") {
		return errUsage
	}
	pw, err := a.sessionPassword(ctx)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(pw)

	if err := a.svc.SetSecureMode(ctx, pw, args[0] == "on"); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Secure mode %s\n", args[0])
	return nil
}

func (a *App) roles(ctx context.Context, _ []string) error {
	pw, err := a.sessionPassword(ctx)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(pw)

	roles, err := a.svc.Roles(ctx, pw)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ROLE\tKIND\tLABEL\tRELATIONSHIP\tWRITE\tFIELDS")
	for _, r := range roles {
		keys := make([]string, 0, len(r.Fields))
		for k := range r.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fields := make([]string, 0, len(keys))
		for _, k := range keys {
			fields = append(fields, k+"="+r.Fields[k])
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\t%s\n", r.RoleID, r.RoleKind, r.Label, r.Relationship, r.CanWrite, strings.Join(fields, ","))
	}
	return tw.Flush()
}

func (a *App) verify(ctx context.Context, args []string) error {
	fs := newFlagSet("verify", a.out)
	roleID := fs.String("role", "", "also check signatures made by this role")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	pw, err := a.sessionPassword(ctx)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(pw)

	sums, err := a.svc.Verify(ctx, pw, fs.Args(), *roleID)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CHAIN\tTOTAL\tUNSIGNED\tHASH\tPREV\tSIG OK\tSIG MISSING\tSIG BAD\tROLE SIGNED\tROLE BAD")
	broken := false
	for _, s := range sums {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\t%d\t%d\t%d\t%d\n", s.Chain, s.Total, s.Unsigned,
			s.HashMismatches, s.PreviousHashMismatches, s.SignaturesVerified, s.SignaturesMissing,
			s.SignaturesInvalid, s.RoleSignedEntries, s.RoleInvalidSignatures)
		if s.HashMismatches+s.PreviousHashMismatches+s.SignaturesInvalid+s.RoleInvalidSignatures > 0 {
			broken = true
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if broken {
		return errors.New("ledger verification found tampered entries")
	}
	return nil
}

func (a *App) export(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	pw, err := a.sessionPassword(ctx)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(pw)

	res, err := a.svc.Export(ctx, pw, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Exported %d entries to %s\n", res.Entries, res.Key)
	if res.Path != "" {
		fmt.Fprintf(a.out, "Saved %s\n", res.Path)
	}
	return nil
}

// Describe turns client errors into messages for the terminal.
func Describe(err error) string {
	switch {
	case errors.Is(err, client.ErrNoSession):
		return "not logged in; run login first"
	case errors.Is(err, client.ErrUnauthorized):
		return "session expired or credentials rejected; run login"
	case errors.Is(err, client.ErrSecretNeeded):
		return "this session needs the password"
	case errors.Is(err, client.ErrUnavailable):
		return "server unavailable"
	case errors.Is(err, client.ErrForbidden):
		return "permission denied"
	}
	return err.Error()
}
