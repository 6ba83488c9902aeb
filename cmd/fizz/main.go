package main

import (
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/fizzlang/fizz/internal/config"
	"github.com/fizzlang/fizz/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "fizz",
	Short: "Fizz language toolchain",
	Long:  `Fizz is an embeddable, statically typed scripting language`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		mode, _ := cmd.Flags().GetString("color")
		switch mode {
		case "on":
			color.NoColor = false
		case "off":
			color.NoColor = true
		default:
			color.NoColor = !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd())
		}
	},
}

func main() {
	rootCmd.Version = version.Version

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(execCmd)
	rootCmd.AddCommand(disasmCmd)
	rootCmd.AddCommand(serveCmd)

	rootCmd.PersistentFlags().String("config", "", "path to fizz.yaml (default: search upward from cwd)")
	rootCmd.PersistentFlags().String("color", "auto", "colorize output (auto|on|off)")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig honors the --config flag, otherwise searches upward from
// the working directory.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path != "" {
		return config.Load(path)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	return config.LoadOrDefault(cwd)
}

var errColor = color.New(color.FgRed, color.Bold)

// fail prints a diagnostic to stderr and exits.
func fail(err error) {
	errColor.Fprint(os.Stderr, "error: ")
	os.Stderr.WriteString(err.Error() + "\n")
	os.Exit(1)
}
