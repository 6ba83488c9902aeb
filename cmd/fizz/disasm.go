package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fizzlang/fizz/internal/vm"
)

var disasmCmd = &cobra.Command{
	Use:   "disasm <file.fzb>",
	Short: "Print the instructions of a bytecode bundle",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		data, err := os.ReadFile(args[0])
		if err != nil {
			fail(err)
		}

		program, err := vm.UnmarshalProgram(data)
		if err != nil {
			fail(err)
		}

		fmt.Print(vm.Disassemble(program))
	},
}
