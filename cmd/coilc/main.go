// Command coilc compiles a single C-subset source file into the Object
// Format described by pkg/objfile.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"coilc/pkg/diag"
	"coilc/pkg/driver"
)

const version = "0.1.0"

func main() {
	os.Exit(run())
}

func run() int {
	var (
		outPath    string
		optLevel   int
		verbose    bool
		debugSyms  bool
		dumpAST    bool
		dumpTokens bool
	)

	root := &cobra.Command{
		Use:     "coilc [file]",
		Short:   "Compile a C-subset source file to the object format",
		Version: version,
		Args: func(cmd *cobra.Command, args []string) error {
			if err := cobra.ExactArgs(1)(cmd, args); err != nil {
				return diag.NewUsageError("%v", err)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		FlagErrorFunc: func(cmd *cobra.Command, err error) error {
			return diag.NewUsageError("%v", err)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if optLevel < 0 || optLevel > 3 {
				return diag.NewUsageError("optimization level must be 0-3, got %d", optLevel)
			}
			if optLevel != 0 {
				return diag.NewUsageError("optimization level %d is reserved; only 0 is implemented", optLevel)
			}

			log := logrus.New()
			log.SetOutput(os.Stderr)
			log.SetLevel(logrus.WarnLevel)
			if verbose {
				log.SetLevel(logrus.DebugLevel)
			}
			_ = debugSyms // reserved per the flag table; no debug section writer yet

			res, err := driver.CompileFile(args[0], outPath, driver.Options{
				DumpTokens: dumpTokens,
				DumpAST:    dumpAST,
				Log:        log,
			})
			if err != nil {
				return err
			}
			if dumpTokens {
				fmt.Fprint(cmd.OutOrStdout(), res.Tokens)
			}
			if dumpAST {
				fmt.Fprint(cmd.OutOrStdout(), res.AST)
			}
			return nil
		},
	}

	root.Flags().StringVarP(&outPath, "output", "o", "output.cof", "output file path")
	root.Flags().IntVarP(&optLevel, "optimize", "O", 0, "optimization level (reserved; 0 in v1)")
	root.Flags().BoolVarP(&verbose, "verbose", "v", false, "verbose progress")
	root.Flags().BoolVarP(&debugSyms, "debug", "g", false, "emit debug sections (reserved)")
	root.Flags().BoolVar(&dumpAST, "ast", false, "print textual AST before codegen")
	root.Flags().BoolVar(&dumpTokens, "tokens", false, "print token stream")

	if err := root.Execute(); err != nil {
		var de *diag.Error
		if diag.As(err, &de) {
			fmt.Fprintln(os.Stderr, de.Error())
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		return diag.ExitCode(err)
	}
	return 0
}
