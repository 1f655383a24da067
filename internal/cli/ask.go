package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/valetd/valet/internal/audit"
	"github.com/valetd/valet/internal/confirm"
	"github.com/valetd/valet/internal/config"
	"github.com/valetd/valet/internal/intent"
	"github.com/valetd/valet/internal/rbac"
	"github.com/valetd/valet/internal/router"
	"github.com/valetd/valet/internal/store"
)

var askUser string

var askCmd = &cobra.Command{
	Use:   "ask [message]",
	Short: "Run a single command through the pipeline",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAsk(strings.Join(args, " "))
	},
}

func init() {
	askCmd.Flags().StringVar(&askUser, "user", "", "user ID to run as (defaults to the first owner)")
}

func runAsk(message string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	userID := askUser
	if userID == "" {
		if len(cfg.Security.Owners) == 0 {
			return fmt.Errorf("no owners configured and no --user given")
		}
		userID = cfg.Security.Owners[0]
	}

	st, err := store.Open(cfg.Paths.DatabaseFile)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	model := intent.NewOllamaClient(cfg.Model.BaseURL, cfg.Model.Name, cfg.Model.Timeout)

	registry := buildRegistry(cfg, st, model, time.Now())
	if err := registry.Validate(intent.All()); err != nil {
		return fmt.Errorf("registry: %w", err)
	}

	rt := router.New(router.Options{
		Registry:  registry,
		Resolver:  rbac.NewResolver(cfg.Security.Owners),
		Confirms:  confirm.NewStore(cfg.Security.ExtraAffirmatives...),
		Sink:      audit.NewStoreSink(st),
		Threshold: cfg.Security.ConfidenceThreshold,
	})

	ctx := context.Background()
	it := model.Query(ctx, message, nil, nil)
	out := rt.Route(ctx, userID, message, it)

	// One-shot confirmations execute immediately; the terminal prompt IS
	// the confirmation.
	if out.Kind == router.KindConfirmationRequired {
		fmt.Println(color.YellowString(out.Text))
		fmt.Print("Confirm [y/N]: ")
		var answer string
		fmt.Scanln(&answer)
		reply := "no"
		if strings.EqualFold(strings.TrimSpace(answer), "y") {
			reply = "yes"
		}
		out = rt.ResolveConfirmation(ctx, userID, reply)
	}

	switch out.Kind {
	case router.KindExecuted:
		fmt.Println(out.Text)
		if out.FilePath != "" {
			fmt.Println("File:", out.FilePath)
		}
	case router.KindDenied:
		fmt.Println(color.RedString(out.Text))
	default:
		fmt.Println(color.YellowString(out.Text))
	}
	return nil
}
