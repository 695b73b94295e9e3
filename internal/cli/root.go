// Package cli реализует orderctl: команды для работы с API заказов из терминала.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/vladislavdragonenkov/orderdesk/internal/client"
	"github.com/vladislavdragonenkov/orderdesk/internal/version"
)

const (
	envAPIURL       = "ORDERDESK_API_URL"
	envKafkaBrokers = "ORDERDESK_KAFKA_BROKERS"
	defaultAPIURL   = "http://localhost:8000"
)

type rootOptions struct {
	apiURL   string
	timeout  time.Duration
	json     bool
	logLevel string
}

func (o *rootOptions) newClient() (*client.Client, error) {
	c, err := client.NewClient(o.apiURL,
		client.WithHTTPClient(&http.Client{Timeout: o.timeout}),
		client.WithLogger(log.WithField("component", "orderctl")),
	)
	if err != nil {
		return nil, err
	}
	log.WithField("api", c.BaseURL()).Debug("api client ready")
	return c, nil
}

// write печатает v как JSON при --json, иначе результат render.
func (o *rootOptions) write(w io.Writer, v any, render func() string) error {
	if o.json {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	_, err := fmt.Fprint(w, render())
	return err
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "orderctl",
		Short:         "Manage orders through the order API",
		Version:       version.Current().String(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			level, err := log.ParseLevel(opts.logLevel)
			if err != nil {
				return fmt.Errorf("invalid --log-level: %w", err)
			}
			log.SetLevel(level)
			return nil
		},
	}

	apiURL := strings.TrimSpace(os.Getenv(envAPIURL))
	if apiURL == "" {
		apiURL = defaultAPIURL
	}
	cmd.PersistentFlags().StringVar(&opts.apiURL, "api", apiURL, "order API base URL (env "+envAPIURL+")")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", client.DefaultTimeout, "HTTP request timeout")
	cmd.PersistentFlags().BoolVar(&opts.json, "json", false, "print JSON instead of tables")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "error", "log level for diagnostics")

	cmd.AddCommand(newOrdersCmd(opts))
	cmd.AddCommand(newProductsCmd(opts))
	cmd.AddCommand(newEventsCmd(opts))
	return cmd
}

// Execute запускает orderctl; SIGINT/SIGTERM отменяют контекст команды.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := newRootCmd()
	err := cmd.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprint(cmd.ErrOrStderr(), RenderError(err))
	}
	return err
}
