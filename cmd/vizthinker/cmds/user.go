package cmds

import (
	"fmt"

	"github.com/go-go-golems/vizthinker/pkg/tree"
	"github.com/spf13/cobra"
)

func NewUserCommand() *cobra.Command {
	userCmd := &cobra.Command{
		Use:   "user",
		Short: "Manage users and their sessions",
	}

	var password string
	createCmd := &cobra.Command{
		Use:   "create <username>",
		Short: "Create a user with a first session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer a.close()

			user, session, err := a.svc.Signup(cmd.Context(), args[0], password)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "created user %d (%s) with session %d\n", user.ID, user.Username, session.ID)
			return err
		},
	}
	createCmd.Flags().StringVar(&password, "password", "", "Password")
	_ = createCmd.MarkFlagRequired("password")

	sessionsCmd := &cobra.Command{
		Use:   "sessions <user-id>",
		Short: "List a user's sessions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := tree.ParseUserID(args[0])
			if err != nil {
				return err
			}
			a, err := openApp(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer a.close()

			sessions, err := a.svc.ListSessions(cmd.Context(), userID)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), sessions)
		},
	}

	userCmd.AddCommand(createCmd, sessionsCmd)
	return userCmd
}
