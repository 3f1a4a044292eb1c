package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"reading-study-service/internal/config"
	"reading-study-service/internal/infra/file"
	"reading-study-service/internal/infra/postgres"
)

// NewSeedCmd stores a definition file in Postgres under a study ID.
func NewSeedCmd(configPath *string) *cobra.Command {
	var (
		path    string
		studyID string
	)
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Validate a study definition file and upsert it into Postgres",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if cfg.Postgres.URL == "" {
				return fmt.Errorf("postgres url not configured")
			}
			def, err := file.ReadDefinition(path)
			if err != nil {
				return err
			}
			if studyID == "" {
				studyID = cfg.Study.DefaultID
			}
			if studyID == "" {
				return fmt.Errorf("--id is required when study.default_id is unset")
			}

			db := postgres.OpenBun(cfg.Postgres.URL)
			defer db.Close()
			if err := postgres.UpsertDefinition(cmd.Context(), db, studyID, def); err != nil {
				return err
			}
			cfg.Log.Logger(cmd.ErrOrStderr()).Info("definition stored",
				"study_id", studyID,
				"contexts", len(def.Contexts),
				"questions", len(def.Questions))
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "file", "", "definition file (yaml or json)")
	cmd.Flags().StringVar(&studyID, "id", "", "study id to store the definition under")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
