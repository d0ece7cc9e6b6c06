package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/cliniccloud/cliniccloud/internal/domain/billing"
	"github.com/cliniccloud/cliniccloud/internal/domain/plan"
	"github.com/cliniccloud/cliniccloud/internal/domain/tenant"
	"github.com/cliniccloud/cliniccloud/internal/platform/db"
	"github.com/cliniccloud/cliniccloud/internal/platform/sandbox"
	"github.com/cliniccloud/cliniccloud/migrations"
)

// withApp runs fn against a fully wired app backed by the configured
// database.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	pool, err := openPool(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	d, cleanup, err := buildDeps(cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	a, err := newApp(cfg, pgRepos(pool), d, logger)
	if err != nil {
		return err
	}
	return fn(ctx, a)
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			pool, err := openPool(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			count, err := db.NewMigrator(pool, migrations.FS).Up(cmd.Context())
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			pool, err := openPool(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, migrations.FS).Status(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "VERSION\tNAME\tSTATUS\tAPPLIED AT")
			for _, s := range statuses {
				status, appliedAt := "pending", ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", s.Version, s.Name, status, appliedAt)
			}
			return w.Flush()
		},
	})
	return cmd
}

func tenantCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Manage tenants",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a tenant on a fresh free trial",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			spec, _ := cmd.Flags().GetString("specialization")
			if strings.TrimSpace(name) == "" {
				return fmt.Errorf("--name is required")
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				t, err := a.tenants.Create(ctx, operator, tenant.CreateInput{Name: name, Specialization: spec})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created tenant %s (%s), trial ends %s\n",
					t.Name, t.ID, t.TrialEndedAt.Format("2006-01-02"))
				return nil
			})
		},
	}
	createCmd.Flags().String("name", "", "Clinic name")
	createCmd.Flags().String("specialization", "", "Business configuration profile")
	cmd.AddCommand(createCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List tenants with plan and trial status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				items, total, err := a.tenants.List(ctx, operator, 1000, 0)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tNAME\tPLAN\tACTIVE\tTRIAL ENDS")
				for _, t := range items {
					trial := "-"
					if t.TrialEndedAt != nil {
						trial = t.TrialEndedAt.Format("2006-01-02")
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\n", t.ID, t.Name, t.Plan, t.IsActive, trial)
				}
				fmt.Fprintf(w, "\n%d tenant(s)\n", total)
				return w.Flush()
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "deactivate <tenant-id>",
		Short: "Deactivate a tenant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid tenant id: %w", err)
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if err := a.tenants.SetActive(ctx, operator, id, false); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Tenant %s deactivated.\n", id)
				return nil
			})
		},
	})
	return cmd
}

func userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage users",
	}
	adminCmd := &cobra.Command{
		Use:   "create-platform-admin",
		Short: "Create a platform operator account",
		RunE: func(cmd *cobra.Command, args []string) error {
			username, _ := cmd.Flags().GetString("username")
			email, _ := cmd.Flags().GetString("email")
			password, _ := cmd.Flags().GetString("password")
			return withApp(cmd, func(ctx context.Context, a *app) error {
				u, err := a.accounts.CreatePlatformAdmin(ctx, username, email, password)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created platform admin %s (%s)\n", u.Username, u.ID)
				return nil
			})
		},
	}
	adminCmd.Flags().String("username", "", "Login name")
	adminCmd.Flags().String("email", "", "Contact address")
	adminCmd.Flags().String("password", "", "Initial password")
	cmd.AddCommand(adminCmd)
	return cmd
}

func jobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Run background jobs once",
	}
	run := &cobra.Command{
		Use:       "run <job>",
		Short:     "Run one job: trial-weekly, trial-daily, plan-mix or invoices-overdue",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"trial-weekly", "trial-daily", "plan-mix", "invoices-overdue"},
		RunE: func(cmd *cobra.Command, args []string) error {
			job := args[0]
			return withApp(cmd, func(ctx context.Context, a *app) error {
				out := cmd.OutOrStdout()
				switch job {
				case "trial-weekly":
					n, err := a.sweeper.WeeklyTrialReminders(ctx)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "Sent %d weekly trial reminder(s).\n", n)
				case "trial-daily":
					n, err := a.sweeper.DailyTrialReminders(ctx)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "Sent %d daily trial reminder(s).\n", n)
				case "plan-mix":
					counts, err := a.sweeper.PlanMix(ctx)
					if err != nil {
						return err
					}
					for _, d := range plan.All() {
						fmt.Fprintf(out, "%-14s %d\n", d.Plan, counts[d.Plan])
					}
				case "invoices-overdue":
					n, err := a.invoices.MarkOverdue(ctx)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "Marked %d invoice(s) overdue.\n", n)
				default:
					return fmt.Errorf("unknown job %q", job)
				}
				return nil
			})
		},
	}
	cmd.AddCommand(run)
	return cmd
}

func billingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "billing",
		Short: "Billing operator tools",
	}
	link := &cobra.Command{
		Use:   "link-subscription",
		Short: "Attach an existing provider subscription to a tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			rawID, _ := cmd.Flags().GetString("tenant")
			customer, _ := cmd.Flags().GetString("customer")
			sub, _ := cmd.Flags().GetString("subscription")
			p, _ := cmd.Flags().GetString("plan")
			id, err := uuid.Parse(rawID)
			if err != nil {
				return fmt.Errorf("invalid --tenant: %w", err)
			}
			if customer == "" || sub == "" {
				return fmt.Errorf("--customer and --subscription are required")
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				t, err := billing.LinkSubscription(ctx, a.repos.tenants, id, customer, sub, plan.Plan(p))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Tenant %s is now on %s.\n", t.Name, t.Plan)
				return nil
			})
		},
	}
	link.Flags().String("tenant", "", "Tenant id")
	link.Flags().String("customer", "", "Provider customer id")
	link.Flags().String("subscription", "", "Provider subscription id")
	link.Flags().String("plan", string(plan.Starter), "Paid plan key")
	cmd.AddCommand(link)
	return cmd
}

func seedCmd() *cobra.Command {
	cfg := sandbox.DefaultSeedConfig()
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Generate demo patients, appointments and clinical data for a tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			rawID, _ := cmd.Flags().GetString("tenant")
			id, err := uuid.Parse(rawID)
			if err != nil {
				return fmt.Errorf("invalid --tenant: %w", err)
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				res, err := a.seeder().Run(ctx, tenantAdmin(id), cfg)
				if res != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d patient(s), %d appointment(s), %d record(s), %d lab result(s), %d referral(s).\n",
						res.Patients, res.Appointments, res.Records, res.Labs, res.Referrals)
				}
				return err
			})
		},
	}
	cmd.Flags().String("tenant", "", "Tenant id")
	cmd.Flags().IntVar(&cfg.Patients, "patients", cfg.Patients, "Patients to create")
	cmd.Flags().IntVar(&cfg.AppointmentsPerPatient, "appointments", cfg.AppointmentsPerPatient, "Upcoming appointments per patient")
	cmd.Flags().IntVar(&cfg.RecordsPerPatient, "records", cfg.RecordsPerPatient, "Clinical records per patient")
	cmd.Flags().IntVar(&cfg.LabsPerPatient, "labs", cfg.LabsPerPatient, "Lab results per patient")
	cmd.Flags().Int64Var(&cfg.Seed, "seed", 0, "Random seed; 0 picks one from the clock")
	return cmd
}
