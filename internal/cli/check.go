package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"reading-study-service/internal/infra/file"
)

// NewCheckCmd validates a definition file without touching any store.
func NewCheckCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate a study definition file",
		RunE: func(cmd *cobra.Command, args []string) error {
			def, err := file.ReadDefinition(path)
			if err != nil {
				return err
			}
			if err := def.Validate(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok: %d contexts x %d questions = %d answers\n",
				len(def.Contexts), len(def.Questions), def.TotalAnswers())
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "file", "", "definition file (yaml or json)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
