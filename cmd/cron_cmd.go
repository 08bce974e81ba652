package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nlbuilder/forgehost/internal/config"
	"github.com/nlbuilder/forgehost/internal/store"
	"github.com/nlbuilder/forgehost/internal/store/cache"
	"github.com/nlbuilder/forgehost/internal/store/file"
	"github.com/nlbuilder/forgehost/internal/store/pg"
)

func cronCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cron",
		Short: "Inspect and manage cron run records",
	}
	cmd.AddCommand(cronListCmd())
	cmd.AddCommand(cronDeleteCmd())
	return cmd
}

func cronListCmd() *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all cron run records",
		Run: func(cmd *cobra.Command, args []string) {
			st, closeFn := openCronStore()
			defer closeFn()
			printCronRecords(st.List(), jsonOutput)
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func cronDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete [cronId]",
		Short: "Remove a cron run record",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			st, closeFn := openCronStore()
			defer closeFn()
			if err := st.RemoveRecord(args[0]); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %s\n", err)
				os.Exit(1)
			}
			fmt.Printf("Deleted record %s\n", args[0])
		},
	}
}

// printCronRecords renders records either as indented JSON or as a
// tab-aligned table (id, thread, status, run count, last run).
func printCronRecords(recs []*store.CronRunRecord, jsonOutput bool) {
	if jsonOutput {
		data, _ := json.MarshalIndent(recs, "", "  ")
		fmt.Println(string(data))
		return
	}

	if len(recs) == 0 {
		fmt.Println("No cron records.")
		return
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "CRON ID\tTHREAD\tSTATUS\tRUNS\tLAST RUN\n")
	for _, r := range recs {
		lastRun := "never"
		if r.LastRunAt != nil {
			if t, err := time.Parse(time.RFC3339, *r.LastRunAt); err == nil {
				lastRun = t.Local().Format(time.DateTime)
			}
		}
		id := r.CronID
		if len(id) > 8 {
			id = id[:8]
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", id, r.ThreadID, r.LastRunStatus, r.RunCount, lastRun)
	}
	tw.Flush()
}

// openCronStore opens the configured record store (standalone file store,
// optionally Redis-cached in front of the managed Postgres mirror) and
// returns it with a Close func the caller must defer.
func openCronStore() (store.RecordStore, func()) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %s\n", err)
		os.Exit(1)
	}

	var st store.RecordStore
	if cfg.Database.Mode == "managed" && cfg.Database.PostgresDSN != "" {
		db, err := pg.OpenDB(cfg.Database.PostgresDSN)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error connecting to postgres: %s\n", err)
			os.Exit(1)
		}
		st = pg.NewCronStore(db)
	} else {
		opts := []file.Option{}
		if cfg.EncryptionKey != "" {
			opts = append(opts, file.WithEncryptionKey(cfg.EncryptionKey))
		}
		fileStore, err := file.Open(cfg.CronStorePath, opts...)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening store: %s\n", err)
			os.Exit(1)
		}
		st = fileStore
	}

	if cfg.Redis.Addr != "" {
		st = cache.New(st, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, 0)
	}

	return st, func() { _ = st.Close() }
}
