package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/rooney011/CodeWeaver/internal/safety"
	"github.com/spf13/cobra"
)

var errScriptBlocked = errors.New("script blocked by safety gate")

var checkStrict bool

var checkCmd = &cobra.Command{
	Use:   "check <file>",
	Short: "Run the safety gate on a remediation script",
	Long: `Check classifies a remediation script as safe, warned, or blocked, and
prints every finding. It exits non-zero when the script is blocked, or when it
has findings and --strict is set.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		src, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read script: %w", err)
		}

		verdict := safety.Check(string(src))
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s: %s\n", args[0], verdict.Classification())
		for _, f := range verdict.Findings {
			fmt.Fprintf(out, "  - %s\n", f)
		}

		if verdict.Blocked {
			return errScriptBlocked
		}
		if checkStrict && len(verdict.Findings) > 0 {
			return fmt.Errorf("script has %d finding(s)", len(verdict.Findings))
		}
		return nil
	},
}

func init() {
	checkCmd.Flags().BoolVar(&checkStrict, "strict", false, "treat warnings as failures")
}
