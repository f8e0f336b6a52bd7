package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func NewStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the last persisted audit state without polling",
		Long: `Print the most recent persisted audit snapshot. This reads only local
state and never touches the network; use "resume" to reconcile with the
backend.`,
		Args: cobra.NoArgs,
		RunE: runStatus,
	}
}

func runStatus(cmd *cobra.Command, args []string) error {
	st, err := buildStack()
	if err != nil {
		return err
	}

	ok, err := st.controller.Restore()
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}
	if !ok {
		fmt.Println("No audit state found.")
		return nil
	}

	run := st.controller.State()
	printRun(run)
	printFindings(run)
	if !run.Status.IsTerminal() {
		fmt.Println("Audit was still running when last observed; 'auditwatch resume' reconciles it.")
	}
	return nil
}
