package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	fizz "github.com/fizzlang/fizz/pkg/embed"
)

var runCmd = &cobra.Command{
	Use:   "run <file.fz>",
	Short: "Compile and execute a Fizz script",
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

		value, err := engine.EvalValue(string(source))
		if err != nil {
			fail(err)
		}
		if rendered := engine.Render(value); rendered != "()" {
			fmt.Println(rendered)
		}
	},
}
