package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/sahana-project/ewaste-api/config"
	"github.com/sahana-project/ewaste-api/internal/auth"
	"github.com/sahana-project/ewaste-api/internal/db"
	"github.com/sahana-project/ewaste-api/internal/logger"
	"github.com/sahana-project/ewaste-api/internal/services"
	"github.com/sahana-project/ewaste-api/internal/store"
	"github.com/spf13/cobra"
)

var seedAdminFlags struct {
	name     string
	email    string
	password string
}

// seedAdminCmd creates the first admin account. Admins cannot sign up.
var seedAdminCmd = &cobra.Command{
	Use:   "seed-admin",
	Short: "Create an admin account if it does not exist yet",
	Long: `Creates an admin account. Values default to SEED_ADMIN_NAME,
SEED_ADMIN_EMAIL and SEED_ADMIN_PASSWORD. Running it again for the same
email is a no-op.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if seedAdminFlags.email == "" || seedAdminFlags.password == "" {
			return errors.New("admin email and password are required")
		}

		cfg := config.LoadConfig()
		log := logger.Setup(cfg.LogLevel)
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		conn, err := db.Open(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer conn.Close()

		tokens, err := auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
		if err != nil {
			return err
		}
		accounts := services.NewAccountService(store.NewAccountRepository(conn), tokens, nil, log)

		admin, created, err := accounts.SeedAdmin(cmd.Context(), seedAdminFlags.name, seedAdminFlags.email, seedAdminFlags.password)
		if err != nil {
			return fmt.Errorf("seed admin: %w", err)
		}
		if !created {
			log.Info("admin already exists", "account_id", admin.ID, "email", admin.Email)
			return nil
		}
		log.Info("admin created, change the password after first login", "account_id", admin.ID, "email", admin.Email)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(seedAdminCmd)
	flags := seedAdminCmd.Flags()
	flags.StringVar(&seedAdminFlags.name, "name", envOr("SEED_ADMIN_NAME", "Admin User"), "admin display name")
	flags.StringVar(&seedAdminFlags.email, "email", os.Getenv("SEED_ADMIN_EMAIL"), "admin email")
	flags.StringVar(&seedAdminFlags.password, "password", os.Getenv("SEED_ADMIN_PASSWORD"), "admin password")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
