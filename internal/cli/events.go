package cli

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/vladislavdragonenkov/orderdesk/internal/messaging/kafka"
)

func newEventsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Inspect order events published to Kafka",
	}
	cmd.AddCommand(newEventsTailCmd(opts))
	return cmd
}

func newEventsTailCmd(opts *rootOptions) *cobra.Command {
	var (
		brokers    string
		topic      string
		group      string
		fromOldest bool
	)

	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Print order events as they are published",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			list := splitBrokers(brokers)
			if len(list) == 0 {
				return errors.New("no kafka brokers: set --brokers or " + envKafkaBrokers)
			}

			logger := log.WithField("component", "orderctl-events")
			consumer, err := kafka.NewConsumer(list, kafka.ConsumerConfig{
				GroupID:    group,
				Topics:     []string{topic},
				FromOldest: fromOldest,
				MaxRetries: 1,
			}, newEventPrinter(cmd.OutOrStdout(), opts), logger)
			if err != nil {
				return err
			}
			return consumer.Run(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&brokers, "brokers", os.Getenv(envKafkaBrokers), "comma-separated Kafka brokers (env "+envKafkaBrokers+")")
	cmd.Flags().StringVar(&topic, "topic", kafka.TopicOrderEvents, "topic with order events")
	cmd.Flags().StringVar(&group, "group", "orderctl", "consumer group id")
	cmd.Flags().BoolVar(&fromOldest, "from-oldest", false, "start from the oldest retained event")
	return cmd
}

// newEventPrinter печатает каждое событие. Нераспознанные записи consumer пропускает сам:
// у orderctl нет DLQ.
func newEventPrinter(w io.Writer, opts *rootOptions) kafka.EventHandler {
	var mu sync.Mutex
	return func(_ context.Context, ev kafka.Event) error {
		env := &ev.Envelope
		mu.Lock()
		defer mu.Unlock()
		return opts.write(w, env, func() string { return RenderEvent(env) })
	}
}

func splitBrokers(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
