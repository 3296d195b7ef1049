package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

var askCmd = &cobra.Command{
	Use:   "ask <file.csv> <question>",
	Short: "Answer one question about a CSV file",
	Example: `  csvbot ask people.csv "What is Alice's age?"
  csvbot ask sales.csv which region sold the most`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireConfig()
		if err != nil {
			return err
		}
		// the terminal has no password gate
		c.RequirePassword = false
		if err := c.Validate(); err != nil {
			return err
		}
		svc, err := newQueryService(c)
		if err != nil {
			return err
		}

		path := args[0]
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open %s: %w", path, err)
		}
		defer f.Close()

		answer, err := svc.AnswerNamed(cmd.Context(), filepath.Base(path), f, strings.Join(args[1:], " "))
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), answer)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(askCmd)
}
