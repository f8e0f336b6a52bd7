package commands

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

func NewConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage AuditWatch configuration",
		Long: `Inspect and edit the AuditWatch configuration file
($HOME/.auditwatch/config.yaml).`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write a configuration file with default values",
		Args:  cobra.NoArgs,
		RunE:  runConfigInit,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Args:  cobra.NoArgs,
		RunE:  runConfigShow,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Long: `Set a configuration value in the config file.
Supports dotted keys (e.g. "preflight.timeout") and basic type parsing:
booleans, integers, durations for keys containing timeout|interval, and
comma-separated string lists.`,
		Args: cobra.ExactArgs(2),
		RunE: runConfigSet,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "get <key>",
		Short: "Get a configuration value",
		Args:  cobra.ExactArgs(1),
		RunE:  runConfigGet,
	})
	return cmd
}

func configFilePath() (string, error) {
	if cfg := viper.GetString("config"); cfg != "" {
		return cfg, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".auditwatch", "config.yaml"), nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path, err := configFilePath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		logrus.Warnf("Configuration file already exists: %s", path)
		ok, err := confirmOverwrite()
		if err != nil {
			return err
		}
		if !ok {
			logrus.Info("Configuration initialization cancelled")
			return nil
		}
	}

	dataDir := viper.GetString("data_directory")
	if home, err := os.UserHomeDir(); err == nil && dataDir == "" {
		dataDir = filepath.Join(home, ".auditwatch", "data")
	}
	defaults := map[string]interface{}{
		"api_url":                  "https://api.pagerodeo.com",
		"data_directory":           dataDir,
		"log_level":                "info",
		"log_format":               "text",
		"poll_interval":            "2s",
		"max_consecutive_failures": 0,
		"metrics_addr":             "",
		"preflight": map[string]interface{}{
			"enabled":     true,
			"dns_servers": []string{"1.1.1.1:53", "8.8.8.8:53"},
			"timeout":     "5s",
		},
	}

	if err := writeYAMLFile(path, defaults); err != nil {
		return fmt.Errorf("write configuration file: %w", err)
	}
	logrus.Infof("Configuration initialized: %s", path)
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "API URL:\t%s\n", viper.GetString("api_url"))
	fmt.Fprintf(w, "Data Directory:\t%s\n", viper.GetString("data_directory"))
	fmt.Fprintf(w, "Log Level:\t%s\n", viper.GetString("log_level"))
	fmt.Fprintf(w, "Log Format:\t%s\n", viper.GetString("log_format"))
	fmt.Fprintf(w, "Poll Interval:\t%s\n", viper.GetString("poll_interval"))
	fmt.Fprintf(w, "Max Consecutive Failures:\t%d\n", viper.GetInt("max_consecutive_failures"))
	fmt.Fprintf(w, "Metrics Address:\t%s\n", viper.GetString("metrics_addr"))
	fmt.Fprintf(w, "Preflight Enabled:\t%t\n", viper.GetBool("preflight.enabled"))
	fmt.Fprintf(w, "Preflight DNS Servers:\t%v\n", viper.GetStringSlice("preflight.dns_servers"))
	fmt.Fprintf(w, "Preflight Timeout:\t%s\n", viper.GetString("preflight.timeout"))
	return w.Flush()
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key := strings.TrimSpace(args[0])
	path, err := configFilePath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	cfg := map[string]interface{}{}
	if b, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("read configuration: %w", err)
	}

	val := parseValueForKey(key, args[1])
	setNested(cfg, strings.Split(key, "."), val)

	if err := writeYAMLFile(path, cfg); err != nil {
		return fmt.Errorf("write configuration file: %w", err)
	}
	logrus.Infof("Set %s = %v in %s", key, val, path)
	return nil
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	key := strings.TrimSpace(args[0])
	val := viper.Get(key)
	if val == nil {
		fmt.Printf("%s = <nil>\n", key)
		return nil
	}
	fmt.Printf("%s = %v\n", key, val)
	return nil
}

func writeYAMLFile(path string, v interface{}) error {
	out, err := yaml.Marshal(v)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, out, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func setNested(dst map[string]interface{}, keys []string, val interface{}) {
	if len(keys) == 0 {
		return
	}
	if len(keys) == 1 {
		dst[keys[0]] = val
		return
	}
	child, ok := dst[keys[0]].(map[string]interface{})
	if !ok {
		child = map[string]interface{}{}
	}
	setNested(child, keys[1:], val)
	dst[keys[0]] = child
}

func parseValueForKey(key, s string) interface{} {
	trim := strings.TrimSpace(s)

	if strings.Contains(trim, ",") {
		parts := strings.Split(trim, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if t := strings.TrimSpace(p); t != "" {
				out = append(out, t)
			}
		}
		return out
	}
	if b, err := strconv.ParseBool(trim); err == nil {
		return b
	}
	if i, err := strconv.Atoi(trim); err == nil {
		return i
	}
	lk := strings.ToLower(key)
	if strings.Contains(lk, "timeout") || strings.Contains(lk, "interval") {
		if d, err := time.ParseDuration(trim); err == nil {
			return d.String()
		}
	}
	return trim
}

func confirmOverwrite() (bool, error) {
	fmt.Print("Configuration file already exists. Overwrite? (y/N): ")
	reader := bufio.NewReader(os.Stdin)
	resp, err := reader.ReadString('\n')
	if err != nil {
		return false, err
	}
	resp = strings.TrimSpace(resp)
	return resp == "y" || resp == "Y", nil
}
