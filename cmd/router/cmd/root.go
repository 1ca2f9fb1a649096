package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/lexfrei/ingress-router/internal/ingress"
)

//nolint:gochecknoglobals // set by SetVersion from main
var (
	version = "development"
	gitsha  = "development"
)

func SetVersion(ver, sha string) {
	version = ver
	gitsha = sha
}

//nolint:gochecknoglobals // cobra command pattern
var rootCmd = &cobra.Command{
	Use:   "ingress-router",
	Short: "Path-based ingress router and reverse proxy",
	Long: `ingress-router serves a path-based routing table built from Kubernetes
Ingress and Gateway API HTTPRoute objects. Manifests are read from files,
directories and kustomizations, or watched in a live cluster.`,
	PersistentPreRunE: loadConfigFile,
	SilenceUsage:      true,
	SilenceErrors:     true,
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "Config file (yaml, json or toml)")
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	flags.String("log-format", "json", "Log format (json, text)")

	flags.StringSlice("manifests", nil, "Manifest files or directories; directories with a kustomization are rendered")
	flags.String("ingress-class", ingress.DefaultIngressClass, "Ingress class claimed by the router")
	flags.Bool("watch-ingress-without-class", false, "Claim Ingress resources that name no class")
	flags.String("gateway-class-name", "", "GatewayClass whose Gateways select HTTPRoutes (empty disables HTTPRoute)")
	flags.Bool("reserve-service-prefixes", true, "Answer 404 under the first path segment of every regex rule")

	_ = viper.BindPFlags(flags)
}

func initConfig() {
	viper.SetEnvPrefix("ROUTER")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("log-level", "info")
	viper.SetDefault("log-format", "json")
	viper.SetDefault("ingress-class", ingress.DefaultIngressClass)
	viper.SetDefault("reserve-service-prefixes", true)

	serveDefaults()
}

func loadConfigFile(_ *cobra.Command, _ []string) error {
	file := viper.GetString("config")
	if file == "" {
		return nil
	}

	viper.SetConfigFile(file)

	if err := viper.ReadInConfig(); err != nil {
		return errors.Wrapf(err, "failed to read config file %s", file)
	}

	return nil
}

func Execute() error {
	err := rootCmd.Execute()
	if err != nil && !errors.Is(err, errNotFound) {
		_, _ = fmt.Fprintln(os.Stderr, "Error:", err)
	}

	return errors.Wrap(err, "command execution failed")
}

func setupLogger(out io.Writer) *slog.Logger {
	level := slog.LevelInfo

	switch viper.GetString("log-level") {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if viper.GetString("log-format") == "text" {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}

	return slog.New(handler)
}

func translatorConfig() ingress.Config {
	return ingress.Config{
		IngressClass:      viper.GetString("ingress-class"),
		WatchWithoutClass: viper.GetBool("watch-ingress-without-class"),
		GatewayClassName:  viper.GetString("gateway-class-name"),
	}
}
