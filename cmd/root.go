// Package cmd defines the CLI commands for the linkresolver executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/giftlist/linkresolver/internal/config"
	"github.com/giftlist/linkresolver/internal/resolver"
	"github.com/giftlist/linkresolver/internal/server"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App is the part of the application the commands drive.
// Tests swap in a fake through newApp.
type App interface {
	Run(ctx context.Context) error
	Resolve(ctx context.Context, rawURL string) (resolver.Result, error)
	Close()
}

// newApp is the application factory. It's a variable so tests can replace it.
var newApp = func(cfgPath string) (App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	appInstance, err := server.Build(cfg)
	if err != nil {
		return nil, fmt.Errorf("build application: %w", err)
	}
	return appInstance, nil
}

// newRootCmd creates the root command and its subcommands.
func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "linkresolver",
		Short: "Turns Amazon product links into gift-list records.",
		Long: `linkresolver accepts an Amazon product link and returns a normalized
record with title, price, image, description and an affiliate link. It tries
the Product Advertising API across regional marketplaces, falls back to
scraping the product page, and finally to a placeholder record.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := newApp(cfgFile)
			if err != nil {
				return fmt.Errorf("failed to initialize application: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a config file (yaml, json or toml)")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newResolveCmd())
	return cmd
}

// appFromContext returns the App stored by the root command.
func appFromContext(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application not initialized")
	}
	return appInstance, nil
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	return execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr)
}

func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		return 1
	}
	return 0
}
