package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"sleeplog-backend/internal/database"
	"sleeplog-backend/internal/docstore"
	"sleeplog-backend/internal/logging"
	"sleeplog-backend/internal/notify"
	"sleeplog-backend/internal/push"
	"sleeplog-backend/internal/repository"
	"sleeplog-backend/internal/services"
	"sleeplog-backend/internal/sleep"
)

type options struct {
	dataDir      string
	redisURL     string
	sleepLogPath string
	databaseURL  string
}

func main() {
	godotenv.Load()
	logging.Setup(os.Getenv("ENV"), "warn")

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:          "sleepctl",
		Short:        "Maintenance commands for the sleep log backend",
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.dataDir, "data-dir", envOr("DATA_DIR", "./data"), "directory of the file document store")
	rootCmd.PersistentFlags().StringVar(&opts.redisURL, "redis-url", os.Getenv("REDIS_URL"), "use the Redis document store at this URL")
	rootCmd.PersistentFlags().StringVar(&opts.sleepLogPath, "sleep-log", envOr("SLEEP_LOG_PATH", "./data/sleep-entries.json"), "file ledger path")
	rootCmd.PersistentFlags().StringVar(&opts.databaseURL, "database-url", "", "read the ledger from PostgreSQL instead of the file")

	rootCmd.AddCommand(vapidKeysCmd())
	rootCmd.AddCommand(migrateNotificationsCmd(opts))
	rootCmd.AddCommand(subscriptionsCmd(opts))
	rootCmd.AddCommand(statsCmd(opts))

	return rootCmd
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// documents opens the named document in the configured store. The returned
// func releases the Redis client, if any.
func (o *options) documents(name string) (docstore.Store, func(), error) {
	if o.redisURL == "" {
		return docstore.NewFileStore(filepath.Join(o.dataDir, name+".json")), func() {}, nil
	}
	opt, err := redis.ParseURL(o.redisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opt)
	return docstore.NewRedisStore(client, "sleeplog:"+name), func() { client.Close() }, nil
}

func (o *options) ledger() (repository.EntryLedger, func(), error) {
	if o.databaseURL == "" {
		return repository.NewDocumentLedger(docstore.NewFileStore(o.sleepLogPath)), func() {}, nil
	}
	pool, err := database.NewPostgresPool(o.databaseURL)
	if err != nil {
		return nil, nil, err
	}
	return repository.NewPostgresLedger(pool), pool.Close, nil
}

func vapidKeysCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "vapid-keys",
		Short: "Generate a VAPID key pair for web push",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			keys, err := services.GenerateVAPIDKeys()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "VAPID_PUBLIC_KEY=%s\n", keys.PublicKey)
			fmt.Fprintf(out, "VAPID_PRIVATE_KEY=%s\n", keys.PrivateKey)
			return nil
		},
	}
}

func migrateNotificationsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate-notifications",
		Short: "Assign ids to notification history records that lack one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, closeFn, err := opts.documents("notification-history")
			if err != nil {
				return err
			}
			defer closeFn()

			n, err := notify.NewHistory(doc).AssignMissingIDs(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Assigned ids to %d notification(s)\n", n)
			return nil
		},
	}
}

func subscriptionsCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "subscriptions",
		Short: "Inspect and prune push subscriptions",
	}

	open := func() (*push.Store, func(), error) {
		doc, closeFn, err := opts.documents("push-subscriptions")
		if err != nil {
			return nil, nil, err
		}
		return push.NewStore(doc, 0), closeFn, nil
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List subscriptions, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeFn, err := open()
			if err != nil {
				return err
			}
			defer closeFn()

			subs := store.List(cmd.Context())
			if len(subs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No subscriptions.")
				return nil
			}
			for i, s := range subs {
				fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\n", i, s.Endpoint)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "remove [index]",
		Short: "Remove the subscription at index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			i, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid index %q", args[0])
			}
			store, closeFn, err := open()
			if err != nil {
				return err
			}
			defer closeFn()

			if n := len(store.List(cmd.Context())); i < 0 || i >= n {
				return fmt.Errorf("index %d out of range (%d subscriptions)", i, n)
			}
			if err := store.RemoveByIndex(cmd.Context(), i); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed subscription %d\n", i)
			return nil
		},
	})

	return cmd
}

func statsCmd(opts *options) *cobra.Command {
	var count int

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print sleep statistics over the most recent entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ledger, closeFn, err := opts.ledger()
			if err != nil {
				return err
			}
			defer closeFn()

			entries, err := ledger.ReadRecent(cmd.Context(), count)
			if err != nil {
				return err
			}
			st, err := services.GetSleepStats(entries)
			fmt.Fprintln(cmd.OutOrStdout(), sleep.FormatStats(st, err))
			fmt.Fprintln(cmd.OutOrStdout(), sleep.FormatHistory(entries))
			return nil
		},
	}

	cmd.Flags().IntVarP(&count, "count", "n", 20, "number of recent entries")
	return cmd
}
