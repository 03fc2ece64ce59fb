// Package cli is the schedctl operator command line.
package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/hackgods/doctor-appointment-scheduling/internal/bootstrap"
	"github.com/hackgods/doctor-appointment-scheduling/internal/config"
)

// App carries what every command needs. Store-backed commands open the
// dependencies on demand so token minting works without a database.
type App struct {
	Config config.Config
	Log    zerolog.Logger
}

func (a *App) open(ctx context.Context) (*bootstrap.App, error) {
	return bootstrap.Open(ctx, a.Config, a.Log)
}

type commandContextKey struct{}

type commandContext struct {
	correlationID uuid.UUID
	startedAt     time.Time
}

// NewRootCmd builds the schedctl command tree.
func NewRootCmd(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:   "schedctl",
		Short: "Operate the appointment scheduling service",
		Long: `schedctl runs maintenance tasks against the appointment store:
schema migrations, token minting for testing, availability lookups and
the pending-appointment expiry sweep.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			info := commandContext{correlationID: uuid.New(), startedAt: time.Now()}
			cmd.SetContext(context.WithValue(cmd.Context(), commandContextKey{}, info))
			app.Log.Debug().
				Str("command", cmd.CommandPath()).
				Str("correlation_id", info.correlationID.String()).
				Msg("command start")
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			info, ok := cmd.Context().Value(commandContextKey{}).(commandContext)
			if !ok {
				return
			}
			app.Log.Debug().
				Str("command", cmd.CommandPath()).
				Str("correlation_id", info.correlationID.String()).
				Int64("duration_ms", time.Since(info.startedAt).Milliseconds()).
				Msg("command end")
		},
	}

	root.AddCommand(
		newMigrateCmd(app),
		newTokenCmd(app),
		newDatesCmd(app),
		newSlotsCmd(app),
		newExpireCmd(app),
		newCancelCmd(app),
	)
	return root
}

// Execute runs the command tree and exits non-zero on error.
func Execute(app *App) {
	root := NewRootCmd(app)
	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
