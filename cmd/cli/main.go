package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/marcelsud/webhook-dispatch/apikey"
	"github.com/marcelsud/webhook-dispatch/config"
	"github.com/marcelsud/webhook-dispatch/storage"
	"github.com/marcelsud/webhook-dispatch/webhook"
	"github.com/marcelsud/webhook-dispatch/webhook/breaker"
	"github.com/marcelsud/webhook-dispatch/webhook/executor"
	"github.com/marcelsud/webhook-dispatch/webhook/queue"
	"github.com/rs/zerolog"
)

/* cli - one-shot admin commands against the configured store
 * Usage:
 *   cli create-key <name> [permission...]
 *   cli trigger <event> [json-data]
 *   cli process
 *   cli dead-letters
 *   cli retry <dead-letter-id>
 * Only useful with STORE_DRIVER=redis, a memory store dies with the process
 */

const usage = "usage: cli create-key <name> [permission...] | trigger <event> [json-data] | process | dead-letters | retry <id>"

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	if err := run(os.Args[1], os.Args[2:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(command string, args []string) error {
	cfg, err := config.GetConfig()
	if err != nil {
		return err
	}
	ctx := context.Background()
	store, err := storage.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close(ctx)

	logger := zerolog.New(os.Stderr).With().Timestamp().Str("service", "webhook-dispatch-cli").Logger()
	keyFunc, err := queue.NewKeyFunc(cfg.BreakerKey)
	if err != nil {
		return err
	}
	q := queue.New(store, executor.New(cfg.DeliveryTimeout), breaker.New(breaker.Config{
		Threshold:   cfg.BreakerThreshold,
		Window:      cfg.BreakerWindow,
		Cooldown:    cfg.BreakerCooldown,
		MaxCooldown: cfg.BreakerMaxCooldown,
	}), queue.Config{
		BaseBackoff:       cfg.RetryBaseBackoff,
		MaxBackoff:        cfg.RetryMaxBackoff,
		Jitter:            cfg.RetryJitter,
		DefaultMaxRetries: cfg.DefaultMaxRetries,
		Concurrency:       cfg.QueueConcurrency,
		BatchSize:         cfg.QueueBatchSize,
		ClaimLease:        cfg.QueueClaimLease,
		BreakerKey:        keyFunc,
	}, logger)
	svc := webhook.NewService(store, q)
	svc.IdempotencyTTL = cfg.IdempotencyTTL

	switch command {
	case "create-key":
		if len(args) < 1 {
			return fmt.Errorf("create-key needs a name\n%s", usage)
		}
		key, value, err := apikey.NewService(store).Create(ctx, apikey.CreateInput{
			Name:        args[0],
			Permissions: args[1:],
		})
		if err != nil {
			return err
		}
		fmt.Printf("id:          %s\n", key.ID)
		fmt.Printf("permissions: %s\n", strings.Join(key.Permissions, ","))
		fmt.Printf("key:         %s\n", value)
		fmt.Println("store the key now, it cannot be shown again")

	case "trigger":
		if len(args) < 1 {
			return fmt.Errorf("trigger needs an event\n%s", usage)
		}
		var data json.RawMessage
		if len(args) > 1 {
			data = json.RawMessage(args[1])
		}
		result, err := svc.Trigger(ctx, args[0], data, webhook.TriggerOptions{})
		if err != nil {
			return err
		}
		fmt.Printf("triggered=%d queued=%d duplicate=%t key=%s\n",
			result.Triggered, result.Queued, result.Duplicate, result.IdempotencyKey)

	case "process":
		result, err := q.ProcessReady(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("claimed=%d succeeded=%d retried=%d dead_lettered=%d errors=%d\n",
			result.Claimed, result.Succeeded, result.Retried, result.DeadLettered, result.Errors)

	case "dead-letters":
		snapshot, err := svc.Queue(ctx)
		if err != nil {
			return err
		}
		for _, dl := range snapshot.DeadLetters {
			fmt.Printf("%s  webhook=%s  event=%s  attempts=%d  reason=%q\n",
				dl.ID, dl.WebhookID, dl.Event, len(dl.DeliveryAttempts), dl.FailureReason)
		}
		fmt.Printf("%d dead letters, %d pending\n", snapshot.Stats.DeadLetters, snapshot.Stats.Pending)

	case "retry":
		if len(args) < 1 {
			return fmt.Errorf("retry needs a dead letter id\n%s", usage)
		}
		item, err := svc.RetryDeadLetter(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("requeued as %s for webhook %s\n", item.ID, item.WebhookID)

	default:
		return fmt.Errorf("unknown command %q\n%s", command, usage)
	}
	return nil
}
