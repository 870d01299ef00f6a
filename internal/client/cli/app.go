package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/minmer/recreatio-sub002/internal/api"
	"github.com/minmer/recreatio-sub002/internal/client/client"
	"github.com/minmer/recreatio-sub002/internal/client/config"
	"github.com/minmer/recreatio-sub002/internal/client/repositories/metadata"
	"github.com/minmer/recreatio-sub002/internal/client/services"
	"github.com/minmer/recreatio-sub002/internal/filex"
)

// sessionService is what the commands need from services.SessionService.
type sessionService interface {
	Register(ctx context.Context, loginID, displayName string, password []byte) (string, error)
	Login(ctx context.Context, loginID string, password []byte, secure bool) (*api.LoginResponse, error)
	Logout(ctx context.Context) error
	NeedsPassword(ctx context.Context) (bool, error)
	ChangePassword(ctx context.Context, oldPassword, newPassword []byte) error
	SetSecureMode(ctx context.Context, password []byte, enabled bool) error
	Roles(ctx context.Context, password []byte) ([]api.RoleView, error)
	Verify(ctx context.Context, password []byte, chains []string, roleID string) ([]*api.LedgerSummary, error)
	Export(ctx context.Context, password []byte, chain string) (*services.ExportResult, error)
	Close() error
}

var _ sessionService = (*services.SessionService)(nil)

// getPassword is swapped in tests.
var getPassword = GetPassword

type App struct {
	config *config.Config
	svc    sessionService
	reader *bufio.Reader
	out    io.Writer
}

// NewApp opens the local database under the data directory and connects to
// the server.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	dir, err := filex.EnsureDir(c.DataDir, "")
	if err != nil {
		return nil, err
	}

	db, err := client.InitDatabase(ctx, filepath.Join(dir, "cli.db"))
	if err != nil {
		return nil, fmt.Errorf("error initializing database: %w", err)
	}

	apiClient, err := client.NewVaultClient(c.ServerEndpointAddr)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	svc := services.NewSessionService(apiClient, metadata.NewSessionStore(db), dir)
	return &App{
		config: c,
		svc:    &closingService{SessionService: svc, db: db},
		reader: bufio.NewReader(os.Stdin),
		out:    os.Stdout,
	}, nil
}

// closingService also closes the local database.
type closingService struct {
	*services.SessionService
	db interface{ Close() error }
}

func (s *closingService) Close() error {
	return errors.Join(s.SessionService.Close(), s.db.Close())
}

// Run executes one subcommand. args[0] names it.
func (a *App) Run(ctx context.Context, args []string) error {
	defer a.svc.Close()

	if len(args) == 0 {
		a.usage()
		return errUsage
	}

	cmd, ok := commands[args[0]]
	if !ok {
		a.usage()
		return fmt.Errorf("unknown command %q", args[0])
	}

	if a.config != nil && a.config.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.config.RequestTimeout)
		defer cancel()
	}
	return cmd.run(a, ctx, args[1:])
}

func (a *App) usage() {
	fmt.Fprintln(a.out, "usage: recreatio [-a addr] [-t seconds] [-d dir] <command> [args]")
	fmt.Fprintln(a.out, "commands:")
	for _, name := range commandOrder {
		fmt.Fprintf(a.out, "  %-9s %s\n", name, commands[name].help)
	}
}

// sessionPassword asks for the password only when the stored session is a
// secure one.
func (a *App) sessionPassword(ctx context.Context) ([]byte, error) {
	need, err := a.svc.NeedsPassword(ctx)
	if err != nil || !need {
		return nil, err
	}
	return getPassword("Password", a.out)
}
