package cli

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/mrlokans/library/internal/circulation"
	"github.com/mrlokans/library/internal/config"
	"github.com/mrlokans/library/internal/database"
)

// ReconcileCommand recomputes every book's status and reservation count from
// the reservation ledger, the same job the maintenance scheduler runs nightly.
type ReconcileCommand struct {
	cfg *config.Config
}

func NewReconcileCommand(cfg *config.Config) *ReconcileCommand {
	return &ReconcileCommand{cfg: cfg}
}

func (cmd *ReconcileCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("reconcile", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s reconcile\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Repair book status and reservation counts in the configured database.\n")
	}
	return fs.Parse(args)
}

func (cmd *ReconcileCommand) Run() error {
	db, err := database.NewDatabase(cmd.cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	clock, err := circulation.LoadClock(cmd.cfg.Circulation.TimeZone)
	if err != nil {
		return err
	}

	service := circulation.NewService(db.DB, clock, cmd.cfg.Circulation.LoanDays)
	result, err := service.Reconcile(context.Background())
	if err != nil {
		return err
	}

	fmt.Printf("Checked %d books, fixed %d\n", result.Checked, result.Fixed)
	return nil
}
