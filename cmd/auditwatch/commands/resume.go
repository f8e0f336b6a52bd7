package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func NewResumeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "resume",
		Short: "Resume supervising a previously started audit",
		Long: `Restore the last persisted audit snapshot, reconcile it against the
backend with a single poll, and resume watching if the audit is still running.
Snapshots older than one hour are discarded.`,
		Args: cobra.NoArgs,
		RunE: runResume,
	}
}

func runResume(cmd *cobra.Command, args []string) error {
	st, err := buildStack()
	if err != nil {
		return err
	}

	ok, err := st.controller.Restore()
	if err != nil {
		return fmt.Errorf("restore snapshot: %w", err)
	}
	if !ok {
		fmt.Println("No resumable audit found.")
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logrus.Info("Interrupted; resume again to continue watching")
		cancel()
	}()

	handle, err := st.controller.Reconcile(ctx)
	if err != nil {
		return fmt.Errorf("reconcile: %w", err)
	}
	if handle == nil {
		// The audit finished while we were away.
		run := st.controller.State()
		printRun(run)
		printFindings(run)
		return nil
	}

	run := st.controller.State()
	fmt.Printf("Resumed audit #%d for %s\n\n", run.AuditID, run.TargetURL)
	return watch(ctx, st.controller, handle)
}
