package cli

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/hackgods/doctor-appointment-scheduling/internal/identity"
)

func newMigrateCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the schema to the configured store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Opening the store applies the embedded migrations.
			a, err := app.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			fmt.Fprintf(cmd.OutOrStdout(), "migrations applied (%s)\n", app.Config.StoreDriver)
			return nil
		},
	}
}

func newTokenCmd(app *App) *cobra.Command {
	var (
		user string
		role string
		ttl  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for a patient, doctor or admin",
		Long: `Mint a signed bearer token with the configured JWT secret.

Examples:
  schedctl token --role admin
  schedctl token --role patient --user 6f1c... --ttl 2h`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := identity.ParseRole(role)
			if err != nil {
				return err
			}

			id := uuid.New()
			if user != "" {
				if id, err = uuid.Parse(user); err != nil {
					return fmt.Errorf("--user must be a UUID: %w", err)
				}
			}

			tokens := identity.NewTokens([]byte(app.Config.JWTSecret), app.Config.JWTIssuer)
			tok, err := tokens.Issue(identity.Principal{UserID: id, Role: r}, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "user ID (random when empty)")
	cmd.Flags().StringVar(&role, "role", string(identity.RolePatient), "patient, doctor or admin")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}

func newDatesCmd(app *App) *cobra.Command {
	var (
		doctor string
		start  string
		days   int
	)

	cmd := &cobra.Command{
		Use:   "dates",
		Short: "List a doctor's candidate dates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			dates, err := a.Service.GetCandidateDates(cmd.Context(), doctor, start, days)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, d := range dates {
				mark := "-"
				if d.Selectable {
					mark = "x"
				}
				fmt.Fprintf(out, "[%s] %s %s\n", mark, d.Date, d.Weekday)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&doctor, "doctor", "", "doctor ID")
	cmd.Flags().StringVar(&start, "start", "", "first date of the window (default tomorrow)")
	cmd.Flags().IntVar(&days, "days", 0, "window length in days (default LOOKAHEAD_DAYS)")
	_ = cmd.MarkFlagRequired("doctor")
	return cmd
}

func newSlotsCmd(app *App) *cobra.Command {
	var doctor, date string

	cmd := &cobra.Command{
		Use:   "slots",
		Short: "List a doctor's free slots on one date",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			slots, err := a.Service.GetAvailableSlots(cmd.Context(), doctor, date)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(slots) == 0 {
				fmt.Fprintln(out, "no free slots")
				return nil
			}
			for _, s := range slots {
				fmt.Fprintln(out, s)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&doctor, "doctor", "", "doctor ID")
	cmd.Flags().StringVar(&date, "date", "", "date (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("doctor")
	_ = cmd.MarkFlagRequired("date")
	return cmd
}

func newExpireCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "expire",
		Short: "Cancel pending appointments whose confirmation window has passed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.Service.ExpirePendingAppointments(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "expired %d appointment(s)\n", n)
			return nil
		},
	}
}

func newCancelCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <appointment-id>",
		Short: "Cancel an appointment as an administrator",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("appointment id must be a UUID: %w", err)
			}

			a, err := app.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := identity.WithPrincipal(cmd.Context(), identity.Principal{Role: identity.RoleAdmin})
			appt, err := a.Service.CancelAppointment(ctx, id)
			if err != nil {
				return err
			}
			if a.SlotCache != nil {
				if err := a.SlotCache.Invalidate(ctx, appt.DoctorID, appt.Date); err != nil {
					app.Log.Warn().Err(err).Msg("slot cache invalidation failed")
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "appointment %s is %s\n", appt.ID, appt.Status)
			return nil
		},
	}
}
