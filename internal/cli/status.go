package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/valetd/valet/internal/config"
	"github.com/valetd/valet/internal/intent"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		printHeader("🏷️ Valet Version")
		fmt.Printf("Version: %s\n", version)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show system status",
	Run: func(cmd *cobra.Command, args []string) {
		printHeader("📊 Valet Status")
		fmt.Printf("Version: %s\n", version)

		path, _ := config.Path()
		if _, err := os.Stat(path); err == nil {
			fmt.Println("Config:  ✓ Found (" + path + ")")
		} else {
			fmt.Println("Config:  ✗ Not found (" + path + ")")
		}

		cfg, err := config.Load()
		if err != nil {
			fmt.Println("Status:  ✗ Unable to load config:", err)
			return
		}

		if len(cfg.Security.Owners) > 0 {
			fmt.Printf("Owners:  ✓ %d configured\n", len(cfg.Security.Owners))
		} else {
			fmt.Println("Owners:  ✗ None configured")
		}

		if cfg.Telegram.Enabled {
			fmt.Println("Telegram: ✓ Enabled")
		} else {
			fmt.Println("Telegram: ✗ Disabled")
		}

		model := intent.NewOllamaClient(cfg.Model.BaseURL, cfg.Model.Name, cfg.Model.Timeout)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if model.Status(ctx) {
			fmt.Printf("Model:   ✓ %s reachable at %s\n", cfg.Model.Name, cfg.Model.BaseURL)
		} else {
			fmt.Printf("Model:   ✗ Ollama not reachable at %s\n", cfg.Model.BaseURL)
		}

		if _, err := os.Stat(cfg.Paths.DatabaseFile); err == nil {
			fmt.Println("Store:   ✓ " + cfg.Paths.DatabaseFile)
		} else {
			fmt.Println("Store:   ✗ Not created yet")
		}

		fmt.Println("Status:  Ready")
	},
}
