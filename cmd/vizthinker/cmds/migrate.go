package cmds

import (
	"github.com/go-go-golems/vizthinker/pkg/store"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func NewMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadSettings()
			if err != nil {
				return err
			}
			s, err := store.Open(cmd.Context(), settings.Database)
			if err != nil {
				return err
			}
			defer func() { _ = s.Close() }()
			if err := s.Migrate(cmd.Context()); err != nil {
				return err
			}
			log.Info().Str("driver", settings.Database.Driver).Msg("Schema up to date")
			return nil
		},
	}
}
