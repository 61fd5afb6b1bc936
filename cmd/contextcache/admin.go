package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"contextcache/internal/cag"
	"contextcache/internal/recall"
)

var (
	bootstrapOrg       string
	bootstrapEmail     string
	bootstrapUnlimited bool

	warmProjectID int64
	warmCount     int

	statsProjectID int64
	statsLimit     int
)

// migrateCmd opens the store, which applies schema and pending migrations.
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database schema and migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()
		fmt.Printf("database ready at %s\n", cfg.Database.Path)
		return nil
	},
}

// bootstrapCmd creates an organization and its first API user.
var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Create an organization and an API user, printing the key",
	RunE: func(cmd *cobra.Command, args []string) error {
		if bootstrapOrg == "" || bootstrapEmail == "" {
			return fmt.Errorf("--org and --email are required")
		}

		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		ctx := context.Background()
		org, err := st.CreateOrganization(ctx, bootstrapOrg)
		if err != nil {
			return err
		}
		apiKey := uuid.NewString()
		user, err := st.CreateUser(ctx, org.ID, bootstrapEmail, apiKey, bootstrapUnlimited)
		if err != nil {
			return err
		}

		fmt.Printf("org:     %d (%s)\n", org.ID, org.Name)
		fmt.Printf("user:    %d (%s)\n", user.ID, user.Email)
		fmt.Printf("api key: %s\n", apiKey)
		return nil
	},
}

// warmCmd preloads the CAG cache for one project and reports hit-rate
// relevant stats. Useful for measuring warm-start behavior offline; the
// server warms its own cache in process.
var warmCmd = &cobra.Command{
	Use:   "warm",
	Short: "Preload the CAG cache for a project and print the snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		if warmProjectID == 0 {
			return fmt.Errorf("--project is required")
		}

		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		cache := cag.New(cfg.Cache)
		added, err := recall.WarmProject(context.Background(), st, cache, warmProjectID, warmCount)
		if err != nil {
			return err
		}
		stats := cache.Stats()
		fmt.Printf("warmed %d chunks (cache items: %d)\n", added, stats.CacheItems)
		return nil
	},
}

// statsCmd prints recent recall timings for a project.
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show recent recall timings for a project",
	RunE: func(cmd *cobra.Command, args []string) error {
		if statsProjectID == 0 {
			return fmt.Errorf("--project is required")
		}

		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		timings, err := st.RecentRecallTimings(context.Background(), statsProjectID, statsLimit)
		if err != nil {
			return err
		}
		if len(timings) == 0 {
			fmt.Println("no recall timings recorded")
			return nil
		}

		fmt.Printf("%-20s %-14s %-10s %8s %8s %8s\n",
			"created", "served_by", "strategy", "hedge", "cag_ms", "rag_ms")
		for _, t := range timings {
			cagMS, ragMS := "-", "-"
			if t.CAGDurationMS != nil {
				cagMS = fmt.Sprint(*t.CAGDurationMS)
			}
			if t.RAGDurationMS != nil {
				ragMS = fmt.Sprint(*t.RAGDurationMS)
			}
			fmt.Printf("%-20s %-14s %-10s %8d %8s %8s\n",
				t.CreatedAt.Format("2006-01-02 15:04:05"),
				t.ServedBy, t.Strategy, t.HedgeDelayMS, cagMS, ragMS)
		}
		return nil
	},
}

func init() {
	bootstrapCmd.Flags().StringVar(&bootstrapOrg, "org", "", "organization name")
	bootstrapCmd.Flags().StringVar(&bootstrapEmail, "email", "", "user email")
	bootstrapCmd.Flags().BoolVar(&bootstrapUnlimited, "unlimited", false, "exempt the user from quotas")

	warmCmd.Flags().Int64Var(&warmProjectID, "project", 0, "project id")
	warmCmd.Flags().IntVar(&warmCount, "count", 100, "memories to load")

	statsCmd.Flags().Int64Var(&statsProjectID, "project", 0, "project id")
	statsCmd.Flags().IntVar(&statsLimit, "limit", 20, "rows to show")
}
