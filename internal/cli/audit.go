package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/valetd/valet/internal/config"
	"github.com/valetd/valet/internal/store"
)

var (
	auditUser  string
	auditLimit int
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Show recent audit log entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAudit()
	},
}

func init() {
	auditCmd.Flags().StringVar(&auditUser, "user", "", "filter by user ID")
	auditCmd.Flags().IntVar(&auditLimit, "limit", 25, "maximum entries to show")
}

func runAudit() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	st, err := store.Open(cfg.Paths.DatabaseFile)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	entries, err := st.ListAudit(auditUser, auditLimit)
	if err != nil {
		return fmt.Errorf("list audit: %w", err)
	}
	if len(entries) == 0 {
		fmt.Println("No audit entries.")
		return nil
	}

	for _, e := range entries {
		mark := color.GreenString("✓")
		if !e.Success {
			mark = color.RedString("✗")
		}
		fmt.Printf("%s %s  user=%s  %-14s  %q\n", mark, e.CreatedAt.Format("2006-01-02 15:04:05"), e.UserID, e.Action, e.Command)
		if e.Result != "" {
			result := e.Result
			if len(result) > 120 {
				result = result[:120] + "…"
			}
			fmt.Printf("    %s\n", result)
		}
	}
	return nil
}
