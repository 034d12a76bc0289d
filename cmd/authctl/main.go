// Command authctl provisions admin accounts and clears lockouts directly
// against the auth database.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"

	"github.com/prashikshan/portal-auth/internal/admincli"
	"github.com/prashikshan/portal-auth/internal/server/config"
	"github.com/prashikshan/portal-auth/internal/server/password"
	"github.com/prashikshan/portal-auth/internal/server/repositories/repomanager"
)

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "authctl:", err)
		if errors.Is(err, admincli.ErrUsage) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	cfg, err := config.LoadConfig(args)
	if err != nil {
		return err
	}

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	defer db.Close()

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}

	hasher, err := password.NewMulti(cfg.PasswordAlgorithm, cfg.BcryptCost)
	if err != nil {
		return err
	}

	return admincli.NewApp(rm.Users(db), hasher, os.Stdout).Run(ctx, args)
}
