package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func NewVersionCommand(version, commit, buildDate string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("AuditWatch %s\n", version)
			fmt.Printf("Commit: %s\n", commit)
			fmt.Printf("Built:  %s\n", buildDate)

			if !viper.GetBool("version.check") {
				return nil
			}
			return checkServerVersion(version)
		},
	}

	cmd.Flags().Bool("check", false, "Check this build against the backend's minimum supported client version")
	_ = viper.BindPFlag("version.check", cmd.Flags().Lookup("check"))

	return cmd
}

func checkServerVersion(version string) error {
	st, err := buildStack()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sv, err := st.client.ServerVersion(ctx)
	if err != nil {
		return fmt.Errorf("version check: %w", err)
	}
	fmt.Printf("Server: %s\n", sv.Version)
	if sv.MinClient == "" {
		return nil
	}

	mine, err := semver.NewVersion(version)
	if err != nil {
		return fmt.Errorf("parse own version %q: %w", version, err)
	}
	min, err := semver.NewVersion(sv.MinClient)
	if err != nil {
		return fmt.Errorf("parse server minimum %q: %w", sv.MinClient, err)
	}
	if mine.LessThan(min) {
		return fmt.Errorf("this build (%s) is older than the backend's minimum supported client (%s); please upgrade", version, sv.MinClient)
	}
	fmt.Println("Client version is supported.")
	return nil
}
