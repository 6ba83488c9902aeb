package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/fizzlang/fizz/internal/server"
	fizz "github.com/fizzlang/fizz/pkg/embed"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve compile and eval requests over JSON-RPC on stdio",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(cmd)
		if err != nil {
			fail(err)
		}

		engine := fizz.NewWithOptions(fizz.Options{VM: cfg.Options()})
		defer engine.Close()

		s := server.New(server.Options{
			In:          os.Stdin,
			Out:         os.Stdout,
			EvalTimeout: cfg.Server.EvalTimeout,
			Engine:      engine,
		})
		if err := s.Run(); err != nil {
			fail(err)
		}
	},
}
