package commands

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/opticini/auditwatch/internal/api"
	"github.com/opticini/auditwatch/internal/orchestration"
	"github.com/opticini/auditwatch/internal/session"
	"github.com/opticini/auditwatch/internal/statestore"
	"github.com/opticini/auditwatch/pkg/utils"
)

// stack wires the full client together from viper config: keystore, session,
// API client, durable store, controller.
type stack struct {
	session    *session.Session
	client     *api.Client
	store      *statestore.Store
	controller *orchestration.Controller
	metrics    *utils.MetricsCollector
}

func buildStack() (*stack, error) {
	logger := logrus.StandardLogger()
	dataDir := viper.GetString("data_directory")
	baseURL := viper.GetString("api_url")
	if baseURL == "" {
		return nil, fmt.Errorf("api_url is not configured")
	}

	passphrase := utils.GetEnv("AUDITWATCH_KEYSTORE_PASSPHRASE", "auditwatch-local")
	keystore, err := session.NewFileKeystore(filepath.Join(dataDir, "keystore"), passphrase, logger)
	if err != nil {
		return nil, fmt.Errorf("open keystore: %w", err)
	}

	sess := session.New(baseURL, keystore, api.NewHTTPClient(30*time.Second), logger)
	client := api.NewClient(baseURL, sess, logger)

	store, err := statestore.New(filepath.Join(dataDir, "state"), logger)
	if err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}

	metrics := utils.NewMetricsCollector(false)
	controller := orchestration.NewController(client, store, orchestration.Config{
		PollInterval:           viper.GetDuration("poll_interval"),
		MaxConsecutiveFailures: viper.GetInt("max_consecutive_failures"),
	}, metrics, logger)

	return &stack{
		session:    sess,
		client:     client,
		store:      store,
		controller: controller,
		metrics:    metrics,
	}, nil
}
