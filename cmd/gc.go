package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var gcCmd = &cobra.Command{
	Use:   "gc",
	Short: "Run one cleanup pass",
	Long: `Expire upload sessions past their deadline and delete backing objects
that no resource references any more.`,
	RunE: runGC,
}

func runGC(cmd *cobra.Command, args []string) error {
	a, err := bootstrap(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := a.services.Cleanup.RunOnce(cmd.Context())
	fmt.Fprintf(cmd.OutOrStdout(), "expired sessions: %d, collected objects: %d\n", report.ExpiredSessions, report.CollectedObjects)
	return err
}
