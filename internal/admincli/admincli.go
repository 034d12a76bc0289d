// Package admincli implements authctl, the operator tool for provisioning
// admin accounts and clearing lockouts. Admins cannot self-register, so this
// is the only way to create one.
package admincli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/mail"

	"github.com/prashikshan/portal-auth/internal/common"
	"github.com/prashikshan/portal-auth/internal/flagx"
	"github.com/prashikshan/portal-auth/internal/server/models"
	"github.com/prashikshan/portal-auth/internal/server/password"
	"github.com/prashikshan/portal-auth/internal/server/repositories/users"
)

const (
	minPasswordLength = 8
	maxPasswordLength = 72

	generatedPasswordBytes = 12
)

const usage = `usage: authctl <command> [flags]

commands:
  create-admin -email <email> -name <name> [-generate]
  unlock       -email <email>
  verify       -email <email>
`

var ErrUsage = errors.New("invalid usage")

type App struct {
	users  users.Repository
	hasher password.Hasher
	out    io.Writer
}

func NewApp(u users.Repository, h password.Hasher, out io.Writer) *App {
	return &App{users: u, hasher: h, out: out}
}

// Run dispatches args[0] as a subcommand. Flags that belong to the server
// configuration (such as -d) are ignored here.
func (a *App) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		fmt.Fprint(a.out, usage)
		return ErrUsage
	}

	cmd, rest := args[0], flagx.FilterArgs(args[1:], []string{"-email", "-name", "-generate"})

	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(a.out)
	email := fs.String("email", "", "account email")
	name := fs.String("name", "", "display name")
	generate := fs.Bool("generate", false, "generate a random password instead of prompting")
	if err := fs.Parse(rest); err != nil {
		return ErrUsage
	}

	switch cmd {
	case "create-admin":
		return a.CreateAdmin(ctx, *email, *name, *generate)
	case "unlock":
		return a.Unlock(ctx, *email)
	case "verify":
		return a.Verify(ctx, *email)
	case "help", "-h", "--help":
		fmt.Fprint(a.out, usage)
		return nil
	default:
		fmt.Fprint(a.out, usage)
		return fmt.Errorf("%w: unknown command %q", ErrUsage, cmd)
	}
}

// CreateAdmin inserts an active, verified admin account.
func (a *App) CreateAdmin(ctx context.Context, email, name string, generate bool) error {
	email = models.NormalizeEmail(email)
	if _, err := mail.ParseAddress(email); err != nil || email == "" {
		return fmt.Errorf("%w: a valid -email is required", ErrUsage)
	}
	if name == "" {
		return fmt.Errorf("%w: -name is required", ErrUsage)
	}

	pw, err := a.newPassword(generate)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(pw)

	hash, err := a.hasher.Hash(string(pw))
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	user, err := a.users.Create(ctx, &models.User{
		Email:        email,
		PasswordHash: hash,
		Name:         name,
		Role:         models.RoleAdmin,
	})
	if err != nil {
		if errors.Is(err, common.ErrorAlreadyExists) {
			return common.ErrEmailAlreadyExists
		}
		return err
	}
	if err := a.users.SetVerified(ctx, user.ID, true); err != nil {
		return err
	}

	fmt.Fprintf(a.out, "admin %s created (id %s)\n", user.Email, user.ID)
	if generate {
		fmt.Fprintf(a.out, "password: %s\n", pw)
	}
	return nil
}

// Unlock clears the failed login counter and any active lock.
func (a *App) Unlock(ctx context.Context, email string) error {
	user, err := a.lookup(ctx, email)
	if err != nil {
		return err
	}
	if err := a.users.ResetFailedAttempts(ctx, user.ID); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s unlocked\n", user.Email)
	return nil
}

func (a *App) Verify(ctx context.Context, email string) error {
	user, err := a.lookup(ctx, email)
	if err != nil {
		return err
	}
	if err := a.users.SetVerified(ctx, user.ID, true); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s verified\n", user.Email)
	return nil
}

func (a *App) lookup(ctx context.Context, email string) (*models.User, error) {
	email = models.NormalizeEmail(email)
	if email == "" {
		return nil, fmt.Errorf("%w: -email is required", ErrUsage)
	}
	user, err := a.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, fmt.Errorf("no user with email %s", email)
		}
		return nil, err
	}
	return user, nil
}

func (a *App) newPassword(generate bool) ([]byte, error) {
	if generate {
		s, err := common.MakeRandHexString(generatedPasswordBytes)
		if err != nil {
			return nil, err
		}
		return []byte(s), nil
	}

	pw, err := getPassword(a.out, "Enter password: ")
	if err != nil {
		return nil, err
	}
	confirm, err := getPassword(a.out, "Repeat password: ")
	if err != nil {
		common.WipeByteArray(pw)
		return nil, err
	}
	defer common.WipeByteArray(confirm)

	switch {
	case string(pw) != string(confirm):
		common.WipeByteArray(pw)
		return nil, errors.New("passwords do not match")
	case len(pw) < minPasswordLength || len(pw) > maxPasswordLength:
		common.WipeByteArray(pw)
		return nil, fmt.Errorf("password must be %d to %d bytes long", minPasswordLength, maxPasswordLength)
	}
	return pw, nil
}
