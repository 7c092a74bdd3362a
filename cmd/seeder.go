package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/frahmantamala/sss-portal/internal/auth"
	authpg "github.com/frahmantamala/sss-portal/internal/auth/postgres"
	"github.com/frahmantamala/sss-portal/internal/profile"
	profilepg "github.com/frahmantamala/sss-portal/internal/profile/postgres"
)

type seedUser struct {
	email  string
	role   profile.Role
	grants []string
}

var seedUsers = []seedUser{
	{email: "admin@sss.local", role: profile.RoleAdministrator},
	{email: "operator@sss.local", role: profile.RoleOperator, grants: []string{
		"attendance.view", "attendance.create", "attendance.edit",
		"visitorsManagement.view", "visitorsManagement.create",
	}},
	{email: "user@sss.local", role: profile.RoleUser, grants: []string{
		"stakeholder.view", "stakeholder.create", "reports.view",
	}},
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with sample data",
	Long:  `Seed the database with sample accounts for development and testing purposes.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		db, err := initDB(cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to init db: %w", err)
		}
		defer db.Close()

		gdb, err := initGorm(db)
		if err != nil {
			return err
		}

		if clearData {
			for _, table := range []string{"activity_logs", "profiles", "accounts"} {
				if err := gdb.Exec("DELETE FROM " + table).Error; err != nil {
					return fmt.Errorf("failed to clear %s: %w", table, err)
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Cleared accounts, profiles and activity logs")
		}

		stores := newAccountStores(gdb, cfg.Security.BCryptCost)
		password := "password"
		for _, u := range seedUsers {
			grants, err := parseGrants(u.grants)
			if err != nil {
				return err
			}
			p, err := createUser(cmd.Context(), stores, u.email, password, u.role, grants)
			if errors.Is(err, auth.ErrAccountExists) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s already exists; skipping\n", u.email)
				continue
			}
			if err != nil {
				return fmt.Errorf("failed to seed %s: %w", u.email, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Seeded %s user: %s\n", p.Role, p.Email)
		}
		return nil
	},
}

func newAccountStores(gdb *gorm.DB, bcryptCost int) accountStores {
	return accountStores{
		accounts: authpg.NewDirectory(gdb, bcryptCost),
		profiles: profilepg.NewStore(gdb),
	}
}
