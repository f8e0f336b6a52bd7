package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/opticini/auditwatch/internal/orchestration"
	"github.com/opticini/auditwatch/internal/preflight"
	"github.com/opticini/auditwatch/pkg/models"
	"github.com/opticini/auditwatch/pkg/utils"
)

func NewStartCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start [target]",
		Short: "Start a security audit and supervise it to completion",
		Long: `Start a full security audit against the target URL and poll the backend
until every scan reaches a terminal state. Interrupting with Ctrl-C leaves the
audit running server-side; "auditwatch resume" picks it up again.`,
		Args: cobra.ExactArgs(1),
		RunE: runStart,
	}

	cmd.Flags().Bool("no-preflight", false, "Skip local DNS validation of the target")
	cmd.Flags().Bool("no-watch", false, "Start the audit and exit without watching progress")
	_ = viper.BindPFlag("start.no_preflight", cmd.Flags().Lookup("no-preflight"))
	_ = viper.BindPFlag("start.no_watch", cmd.Flags().Lookup("no-watch"))

	return cmd
}

func runStart(cmd *cobra.Command, args []string) error {
	target, err := utils.NormalizeTargetURL(args[0])
	if err != nil {
		return err
	}

	st, err := buildStack()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logrus.Info("Interrupted; audit keeps running server-side, resume with 'auditwatch resume'")
		cancel()
	}()

	if viper.GetBool("preflight.enabled") && !viper.GetBool("start.no_preflight") {
		checker := preflight.NewChecker(
			viper.GetStringSlice("preflight.dns_servers"),
			viper.GetDuration("preflight.timeout"),
			logrus.StandardLogger(),
		)
		if err := checker.Check(ctx, target); err != nil {
			return fmt.Errorf("preflight: %w", err)
		}
	}

	if addr := viper.GetString("metrics_addr"); addr != "" {
		go func() {
			if err := st.metrics.StartServerWithContext(ctx, addr); err != nil {
				logrus.Warnf("Metrics server stopped: %v", err)
			}
		}()
	}

	handle, err := st.controller.StartAudit(ctx, target)
	if err != nil {
		return fmt.Errorf("start audit: %w", err)
	}

	run := st.controller.State()
	fmt.Printf("Audit #%d started for %s (%d scans)\n\n", run.AuditID, run.TargetURL, run.Aggregates.TotalScans)

	if viper.GetBool("start.no_watch") {
		handle.Cancel()
		fmt.Println("Not watching; run 'auditwatch resume' to supervise it.")
		return nil
	}

	return watch(ctx, st.controller, handle)
}

// watch prints progress once per interval until the polling loop exits, then
// renders the final state.
func watch(ctx context.Context, controller *orchestration.Controller, handle *orchestration.PollHandle) error {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-handle.Done():
			run := controller.State()
			printRun(run)
			printFindings(run)
			switch {
			case controller.LostContact():
				return fmt.Errorf("lost contact with the backend; the audit may still be running server-side")
			case run.Status == models.AuditFailed:
				fmt.Println("Audit failed server-side; findings reported before the failure are shown above.")
			case run.Status == models.AuditCompleted:
				fmt.Println("Audit completed.")
			}
			return nil
		case <-ctx.Done():
			handle.Cancel()
			<-handle.Done()
			return nil
		case <-ticker.C:
			run := controller.State()
			fmt.Printf("  %d/%d scans complete, %d findings so far\n",
				run.Aggregates.CompletedScans, run.Aggregates.TotalScans, run.Aggregates.TotalFindings)
		}
	}
}
