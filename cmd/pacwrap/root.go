package main

import (
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/pacwrap/pacwrap/internal/configref"
	"github.com/pacwrap/pacwrap/internal/ident"
	"github.com/pacwrap/pacwrap/internal/logspine"
	"github.com/pacwrap/pacwrap/internal/metrics"
)

var rootCmd = &cobra.Command{
	Use:     "pacwrap",
	Short:   "Operate a fleet of unprivileged, user-namespace Linux containers",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate("pacwrap version " + Version + " (" + Commit + ")\n")

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().String("metrics-addr", "", "Expose /metrics on this address during the run (empty disables it)")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(killCmd)
	rootCmd.AddCommand(execCmd)
}

func initLogging() {
	level, _ := rootCmd.PersistentFlags().GetString("log-level")
	if verbose() {
		level = string(logspine.DebugLevel)
	}
	jsonOut, _ := rootCmd.PersistentFlags().GetBool("log-json")
	logspine.Init(logspine.Config{Level: logspine.Level(level), JSONOutput: jsonOut})

	addr, _ := rootCmd.PersistentFlags().GetString("metrics-addr")
	if addr != "" {
		go metrics.Serve(addr)
	}
}

// env resolves the immutable environment record (§9 "Global state"):
// PACWRAP_{CONFIG,DATA,CACHE}_DIR, falling back to XDG-style defaults
// under $HOME.
func env() ident.Dirs {
	home, _ := os.UserHomeDir()
	return ident.Dirs{
		Data:   firstNonEmpty(os.Getenv("PACWRAP_DATA_DIR"), home+"/.local/share/pacwrap"),
		Cache:  firstNonEmpty(os.Getenv("PACWRAP_CACHE_DIR"), home+"/.cache/pacwrap"),
		Config: firstNonEmpty(os.Getenv("PACWRAP_CONFIG_DIR"), home+"/.config/pacwrap"),
	}
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

func configProvider(dirs ident.Dirs) *configref.YAMLFileProvider {
	return &configref.YAMLFileProvider{ConfigDir: dirs.Config}
}

func verbose() bool {
	v, _ := strconv.ParseBool(os.Getenv("PACWRAP_VERBOSE"))
	return v
}
