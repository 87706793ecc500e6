package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

type resolveOutput struct {
	Strategy   string `json:"strategy"`
	Identifier string `json:"identifier,omitempty"`
	Data       any    `json:"data"`
}

// newResolveCmd creates the 'resolve' subcommand that resolves one link and
// prints the record as JSON.
func newResolveCmd() *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "resolve <url>",
		Short: "Resolve one product link and print the record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := appFromContext(cmd.Context())
			if err != nil {
				return err
			}
			defer appInstance.Close()

			result, err := appInstance.Resolve(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("resolve %q: %w", args[0], err)
			}

			var out any = result.Record
			if verbose {
				out = resolveOutput{
					Strategy:   result.Strategy,
					Identifier: result.Identifier.String(),
					Data:       result.Record,
				}
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(out); err != nil {
				return fmt.Errorf("encode record: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "include the winning strategy and identifier")
	return cmd
}
