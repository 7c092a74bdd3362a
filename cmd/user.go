package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/frahmantamala/sss-portal/internal/auth"
	"github.com/frahmantamala/sss-portal/internal/permission"
	"github.com/frahmantamala/sss-portal/internal/profile"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage portal accounts",
}

var (
	userEmail    string
	userPassword string
	userRole     string
	userGrants   []string
)

var userCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an account and its profile",
	Long:  `Create credentials and a profile directly, for bootstrapping the first administrator.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		role, ok := profile.ParseRole(userRole)
		if !ok {
			return fmt.Errorf("unknown role %q", userRole)
		}
		grants, err := parseGrants(userGrants)
		if err != nil {
			return err
		}

		cfg, err := loadConfig(configPath)
		if err != nil {
			return err
		}
		db, err := initDB(cfg.Database)
		if err != nil {
			return err
		}
		defer db.Close()
		gdb, err := initGorm(db)
		if err != nil {
			return err
		}

		p, err := createUser(cmd.Context(), newAccountStores(gdb, cfg.Security.BCryptCost), userEmail, userPassword, role, grants)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "created %s (%s) uid=%s\n", p.Email, p.Role, p.UID)
		return nil
	},
}

func init() {
	userCreateCmd.Flags().StringVar(&userEmail, "email", "", "account email")
	userCreateCmd.Flags().StringVar(&userPassword, "password", "", "initial password, at least 6 characters")
	userCreateCmd.Flags().StringVar(&userRole, "role", string(profile.RoleUser), "USER, OPERATOR or ADMINISTRATOR")
	userCreateCmd.Flags().StringSliceVar(&userGrants, "grant", nil, "module.action pairs to allow, e.g. attendance.view")
	_ = userCreateCmd.MarkFlagRequired("email")
	_ = userCreateCmd.MarkFlagRequired("password")

	userCmd.AddCommand(userCreateCmd)
}

// parseGrants turns module.action pairs into a grant table on top of the
// all-denied default.
func parseGrants(pairs []string) (permission.Grants, error) {
	grants := permission.DefaultGrants()
	for _, raw := range pairs {
		moduleName, actionName, ok := strings.Cut(strings.TrimSpace(raw), ".")
		if !ok {
			return nil, fmt.Errorf("grant %q: want module.action", raw)
		}
		m, ok := permission.ParseModule(moduleName)
		if !ok {
			return nil, fmt.Errorf("grant %q: unknown module", raw)
		}
		a, ok := permission.ParseAction(actionName)
		if !ok || !m.Supports(a) {
			return nil, fmt.Errorf("grant %q: unknown action", raw)
		}
		grants.Set(m, a, true)
	}
	return grants, nil
}

type accountStores struct {
	accounts profile.Accounts
	profiles profile.Store
}

// createUser registers credentials and writes the matching profile. Accounts
// made here skip the first-login flow.
func createUser(ctx context.Context, stores accountStores, email, password string, role profile.Role, grants permission.Grants) (*profile.Profile, error) {
	if len(password) < 6 {
		return nil, errors.New("password must be at least 6 characters")
	}
	uid, err := stores.accounts.CreateAccount(ctx, email, password)
	if err != nil {
		if errors.Is(err, auth.ErrAccountExists) {
			return nil, fmt.Errorf("%s: %w", email, err)
		}
		return nil, fmt.Errorf("create account: %w", err)
	}

	p := profile.NewDefault(uid, strings.ToLower(strings.TrimSpace(email)), time.Now().UTC())
	p.Role = role
	p.Permissions = grants
	p.IsFirstLogin = false
	p.UpdatedBy = "cli"

	if err := stores.profiles.Create(ctx, p); err != nil {
		if derr := stores.accounts.DeleteAccount(ctx, uid); derr != nil {
			return nil, fmt.Errorf("create profile: %w (account %s left behind: %v)", err, uid, derr)
		}
		return nil, fmt.Errorf("create profile: %w", err)
	}
	return p, nil
}
