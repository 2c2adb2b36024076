// Package cli is the thin cobra command surface that wires flags, env
// vars and the config file together and boots the proxy. Flag parsing
// is real; flag semantics beyond feeding the Run closure are out of
// scope.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kairos-labs/gca-proxy/internal/buildinfo"
	"github.com/kairos-labs/gca-proxy/internal/config"
)

// RunFunc boots the proxy with a resolved configuration and blocks until
// the process should exit. configPath is the file backing cfg (empty if
// none was given), forwarded so the caller can hot-reload from the same
// place it loaded from. Supplied by cmd/server so this package stays
// free of the wiring it doesn't own.
type RunFunc func(cfg *config.Config, configPath string) error

// NewRootCommand builds the root command, with a single "serve"
// subcommand that calls run with the flag/env/file-resolved config.
func NewRootCommand(run RunFunc) *cobra.Command {
	root := &cobra.Command{
		Use:     "gca-proxy",
		Short:   "OpenAI-compatible proxy in front of Google's Code Assist Gemini backend",
		Version: buildinfo.Version,
	}

	root.AddCommand(newServeCommand(run))
	return root
}

func newServeCommand(run RunFunc) *cobra.Command {
	var (
		configPath string
		port       int
		project    string
		logLevel   string
		noBrowser  bool
		noSearch   bool
		noFallback bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the proxy's HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("cli: load config: %w", err)
			}

			if cmd.Flags().Changed("port") {
				cfg.Port = port
			}
			if cmd.Flags().Changed("log-level") {
				cfg.LogLevel = logLevel
			}
			if cmd.Flags().Changed("disable-browser-auth") {
				cfg.DisableBrowserAuth = noBrowser
			}
			if cmd.Flags().Changed("disable-google-search") {
				cfg.DisableGoogleSearch = noSearch
			}
			if cmd.Flags().Changed("disable-auto-model-switch") {
				cfg.DisableAutoModelSwitch = noFallback
			}

			if project != "" {
				cfg.GoogleCloudProject = project
			} else if cfg.GoogleCloudProject == "" {
				cfg.GoogleCloudProject = os.Getenv("GOOGLE_CLOUD_PROJECT")
			}

			return run(cfg, configPath)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to a YAML config file")
	cmd.Flags().IntVar(&port, "port", 8080, "HTTP listen port")
	cmd.Flags().StringVar(&project, "google-cloud-project", "", "Code Assist project id (falls back to $GOOGLE_CLOUD_PROJECT, then onboarding)")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "log level: error|warn|info|debug")
	cmd.Flags().BoolVar(&noBrowser, "disable-browser-auth", false, "disable interactive browser OAuth (token source must be supplied out of band)")
	cmd.Flags().BoolVar(&noSearch, "disable-google-search", false, "disable the Google Search grounding tool")
	cmd.Flags().BoolVar(&noFallback, "disable-auto-model-switch", false, "disable automatic fallback to a lower-tier model on rate limiting")

	return cmd
}
