package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/Dashboard/backend/internal/engine/loader"
)

var checkCmd = &cobra.Command{
	Use:   "check <file>",
	Short: "Compile a widget source without running it",
	Args:  cobra.ExactArgs(1),
	RunE:  runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	src, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}

	factory, err := loader.Compile(string(src))
	var compileErr *loader.CompileError
	switch {
	case errors.As(err, &compileErr):
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", args[0], compileErr.Error())
		return fmt.Errorf("%s does not compile", args[0])
	case err != nil:
		return err
	case factory.Empty():
		fmt.Fprintf(cmd.OutOrStdout(), "%s: empty source, renders nothing\n", args[0])
	default:
		fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", args[0])
	}
	return nil
}
