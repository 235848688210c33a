// Command gatectl administers the gate's user directory and generates
// deployment secrets.
//
//	gatectl seed
//	gatectl useradd [--role clerk] [--password pw] <username>
//	gatectl passwd [--password pw] <username>
//	gatectl setstatus <username> <active|inactive|suspended>
//	gatectl list
//
// Users commands read GATE_DATABASE_FILE and GATE_PEPPER_FILE, or --database
// and --pepper. A password is generated and printed when none is given.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/aussiebroadwan/rostergate/internal/gate/app"
	"github.com/aussiebroadwan/rostergate/internal/gate/domain"
	"github.com/aussiebroadwan/rostergate/internal/gate/store"
	"github.com/aussiebroadwan/rostergate/internal/gate/store/drivers/sqlite"
	"github.com/aussiebroadwan/rostergate/pkg/cryptox"
	"github.com/aussiebroadwan/rostergate/pkg/idx"
	"github.com/spf13/pflag"
)

var errUsage = errors.New("usage: gatectl <seed|useradd|passwd|setstatus|list> [flags] [args]")

func main() {
	if err := app.LoadDotEnv(".env"); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := run(context.Background(), os.Args[1:], os.Getenv, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "gatectl:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, getenv func(string) string, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	cmd, args := args[0], args[1:]

	if cmd == "seed" {
		seed, err := cryptox.GenerateToken(cryptox.TokenSize256)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, seed)
		return err
	}

	cfg := app.ConfigFromEnv(getenv)
	fs := pflag.NewFlagSet("gatectl "+cmd, pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVarP(&cfg.DatabaseFile, "database", "d", cfg.DatabaseFile, "SQLite database file")
	fs.StringVar(&cfg.PepperFile, "pepper", cfg.PepperFile, "Password pepper file")
	role := fs.String("role", "clerk", "Role of the new user")
	password := fs.String("password", "", "Password (generated when empty)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	c, err := open(cfg)
	if err != nil {
		return err
	}
	defer c.close()

	switch cmd {
	case "useradd":
		if fs.NArg() != 1 {
			return errUsage
		}
		return c.useradd(ctx, out, fs.Arg(0), *role, *password)
	case "passwd":
		if fs.NArg() != 1 {
			return errUsage
		}
		return c.passwd(ctx, out, fs.Arg(0), *password)
	case "setstatus":
		if fs.NArg() != 2 {
			return errUsage
		}
		return c.setstatus(ctx, out, fs.Arg(0), fs.Arg(1))
	case "list":
		return c.list(ctx, out)
	default:
		return errUsage
	}
}

type ctl struct {
	store  *sqlite.Store
	hasher cryptox.Hasher
}

func open(cfg app.Config) (*ctl, error) {
	pepper, err := cryptox.LoadOrCreateSecretFile(cfg.PepperFile)
	if err != nil {
		return nil, fmt.Errorf("load pepper: %w", err)
	}

	st, err := sqlite.NewStore("file:" + cfg.DatabaseFile)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := st.ApplyMigrations(); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	return &ctl{store: st, hasher: cryptox.Hasher{Pepper: pepper}}, nil
}

func (c *ctl) close() { _ = c.store.Close() }

// password returns pw, or a generated one which is also printed.
func (c *ctl) password(out io.Writer, pw string) (string, error) {
	if pw != "" {
		return pw, nil
	}
	pw, err := cryptox.GeneratePassword()
	if err != nil {
		return "", err
	}
	fmt.Fprintf(out, "generated password: %s\n", pw)
	return pw, nil
}

func (c *ctl) useradd(ctx context.Context, out io.Writer, username, role, pw string) error {
	pw, err := c.password(out, pw)
	if err != nil {
		return err
	}
	hash, err := c.hasher.Hash(pw)
	if err != nil {
		return err
	}

	u := domain.User{
		ID:           idx.New().String(),
		Username:     username,
		PasswordHash: hash,
		Role:         role,
		Status:       domain.StatusActive,
	}
	if err := c.store.Users().CreateUser(ctx, u); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return fmt.Errorf("user %q already exists", username)
		}
		return err
	}

	fmt.Fprintf(out, "created user %s (%s)\n", username, u.ID)
	return nil
}

func (c *ctl) passwd(ctx context.Context, out io.Writer, username, pw string) error {
	u, err := c.lookup(ctx, username)
	if err != nil {
		return err
	}
	pw, err = c.password(out, pw)
	if err != nil {
		return err
	}
	hash, err := c.hasher.Hash(pw)
	if err != nil {
		return err
	}

	// A new password ends the current session.
	err = c.store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Users().UpdatePasswordHash(ctx, u.ID, hash); err != nil {
			return err
		}
		if err := tx.RefreshCredentials().DeleteRefreshCredential(ctx, u.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "password updated for %s\n", username)
	return nil
}

func (c *ctl) setstatus(ctx context.Context, out io.Writer, username, status string) error {
	st, err := domain.ParseUserStatus(status)
	if err != nil {
		return fmt.Errorf("%w: %q", err, status)
	}
	u, err := c.lookup(ctx, username)
	if err != nil {
		return err
	}
	if err := c.store.Users().UpdateStatus(ctx, u.ID, st); err != nil {
		return err
	}

	fmt.Fprintf(out, "%s is now %s\n", username, st)
	return nil
}

func (c *ctl) list(ctx context.Context, out io.Writer) error {
	users, err := c.store.Users().ListUsers(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tUSERNAME\tROLE\tSTATUS")
	for _, u := range users {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", u.ID, u.Username, u.Role, u.Status)
	}
	return tw.Flush()
}

func (c *ctl) lookup(ctx context.Context, username string) (domain.User, error) {
	u, err := c.store.Users().GetUserByUsername(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		return domain.User{}, fmt.Errorf("user %q not found", username)
	}
	return u, err
}
