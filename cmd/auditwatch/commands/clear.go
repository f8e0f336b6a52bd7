package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func NewClearCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Discard the persisted audit state",
		Long: `Remove the locally persisted audit snapshot and reset to a clean slate.
There is no server-side cancel: an audit already running on the backend runs
to completion regardless.`,
		Args: cobra.NoArgs,
		RunE: runClear,
	}
}

func runClear(cmd *cobra.Command, args []string) error {
	st, err := buildStack()
	if err != nil {
		return err
	}
	if err := st.controller.ClearResults(); err != nil {
		return fmt.Errorf("clear results: %w", err)
	}
	fmt.Println("Audit state cleared.")
	return nil
}
