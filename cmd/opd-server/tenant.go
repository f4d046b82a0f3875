package main

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/opd/opd/internal/domain/account"
	"github.com/opd/opd/internal/platform/ratelimit"
	"github.com/opd/opd/internal/platform/validate"
)

// adminPasswordEnv supplies the admin password to `tenant create` without
// putting it on the command line.
const adminPasswordEnv = "OPD_ADMIN_PASSWORD"

func tenantCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Manage hospitals",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a hospital together with its first admin account",
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := registrationFromFlags(cmd)
			if err != nil {
				return err
			}
			return withServices(cmd.Context(), func(ctx context.Context, s *services) error {
				session, err := s.account.Register(ctx, req)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created hospital %q (%s)\n", session.Account.Tenant.Name, session.Account.TenantID)
				fmt.Fprintf(cmd.OutOrStdout(), "Admin account %s (%s)\n", session.Account.Email, session.Account.ID)
				return nil
			})
		},
	}
	createCmd.Flags().String("name", "", "Hospital name")
	createCmd.Flags().String("email", "", "Hospital contact email")
	createCmd.Flags().String("phone", "", "Hospital phone")
	createCmd.Flags().String("address", "", "Hospital address")
	createCmd.Flags().String("admin-name", "", "Admin full name")
	createCmd.Flags().String("admin-email", "", "Admin login email")
	createCmd.Flags().String("admin-password", "", "Admin password (or set "+adminPasswordEnv+")")
	cmd.AddCommand(createCmd)

	cmd.AddCommand(setActiveCmd("deactivate", "Lock every account of a hospital out", false))
	cmd.AddCommand(setActiveCmd("activate", "Re-enable a deactivated hospital", true))
	return cmd
}

func setActiveCmd(use, short string, active bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <tenant-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid tenant id %q", args[0])
			}
			return withServices(cmd.Context(), func(ctx context.Context, s *services) error {
				t, err := s.tenant.SetActive(ctx, id, active)
				if err != nil {
					return err
				}
				state := "inactive"
				if t.Active {
					state = "active"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Hospital %q (%s) is now %s\n", t.Name, t.ID, state)
				return nil
			})
		},
	}
}

func registrationFromFlags(cmd *cobra.Command) (account.RegisterRequest, error) {
	flags := cmd.Flags()
	get := func(name string) string {
		v, _ := flags.GetString(name)
		return v
	}
	req := account.RegisterRequest{
		HospitalName:    get("name"),
		HospitalEmail:   get("email"),
		HospitalPhone:   get("phone"),
		HospitalAddress: get("address"),
		AdminName:       get("admin-name"),
		AdminEmail:      get("admin-email"),
		AdminPassword:   get("admin-password"),
	}
	if req.AdminPassword == "" {
		req.AdminPassword = os.Getenv(adminPasswordEnv)
	}
	if err := validate.New().Validate(&req); err != nil {
		return req, err
	}
	return req, nil
}

func withServices(ctx context.Context, fn func(context.Context, *services) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, pool, err := connect(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := cfg.Validate(); err != nil {
		return err
	}
	verifier, err := newVerifier(cfg)
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Env, cfg.LogLevel)
	return fn(ctx, newServices(pool, verifier, ratelimit.NewMemory(ratelimit.MemoryConfig{}), logger, cfg))
}
