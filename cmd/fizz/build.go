package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	fizz "github.com/fizzlang/fizz/pkg/embed"
)

var buildCmd = &cobra.Command{
	Use:   "build <file.fz>",
	Short: "Compile a Fizz script to a bytecode bundle",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(cmd)
		if err != nil {
			fail(err)
		}

		source, err := os.ReadFile(args[0])
		if err != nil {
			fail(err)
		}

		engine := fizz.NewWithOptions(fizz.Options{VM: cfg.Options()})
		defer engine.Close()

		data, err := engine.CompileToBytecode(string(source))
		if err != nil {
			fail(err)
		}

		out, _ := cmd.Flags().GetString("output")
		if out == "" {
			out = strings.TrimSuffix(args[0], ".fz") + ".fzb"
		}
		if err := os.WriteFile(out, data, 0o644); err != nil {
			fail(err)
		}
		fmt.Printf("wrote %s (%d bytes)\n", out, len(data))
	},
}

func init() {
	buildCmd.Flags().StringP("output", "o", "", "output path (default: input with .fzb extension)")
}
