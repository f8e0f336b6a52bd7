package commands

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func NewLoginCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store backend credentials",
		Long: `Store an access/refresh token pair in the local encrypted keystore.
Tokens are issued by the PageRodeo web application (Account > API access).
AuditWatch refreshes the access token automatically; when the refresh token
itself expires, run login again.`,
		Args: cobra.NoArgs,
		RunE: runLogin,
	}

	cmd.Flags().String("access", "", "Access token (prompted for when omitted)")
	cmd.Flags().String("refresh", "", "Refresh token (prompted for when omitted)")
	_ = viper.BindPFlag("login.access", cmd.Flags().Lookup("access"))
	_ = viper.BindPFlag("login.refresh", cmd.Flags().Lookup("refresh"))

	return cmd
}

func runLogin(cmd *cobra.Command, args []string) error {
	access := strings.TrimSpace(viper.GetString("login.access"))
	refresh := strings.TrimSpace(viper.GetString("login.refresh"))

	reader := bufio.NewReader(os.Stdin)
	var err error
	if access == "" {
		if access, err = promptToken(reader, "Access token"); err != nil {
			return err
		}
	}
	if refresh == "" {
		if refresh, err = promptToken(reader, "Refresh token"); err != nil {
			return err
		}
	}
	if access == "" || refresh == "" {
		return fmt.Errorf("both tokens are required")
	}

	st, err := buildStack()
	if err != nil {
		return err
	}
	if err := st.session.SetCredentials(access, refresh); err != nil {
		return fmt.Errorf("store credentials: %w", err)
	}

	fmt.Println("Credentials stored.")
	return nil
}

func promptToken(reader *bufio.Reader, label string) (string, error) {
	fmt.Printf("%s: ", label)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("read %s: %w", strings.ToLower(label), err)
	}
	return strings.TrimSpace(line), nil
}
