package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	fizz "github.com/fizzlang/fizz/pkg/embed"
)

var execCmd = &cobra.Command{
	Use:   "exec <file.fzb>",
	Short: "Execute a compiled bytecode bundle",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(cmd)
		if err != nil {
			fail(err)
		}

		data, err := os.ReadFile(args[0])
		if err != nil {
			fail(err)
		}

		engine := fizz.NewWithOptions(fizz.Options{VM: cfg.Options()})
		defer engine.Close()

		value, err := engine.RunBytecode(data)
		if err != nil {
			fail(err)
		}
		if rendered := engine.Render(value); rendered != "()" {
			fmt.Println(rendered)
		}
	},
}
