package cmds

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/go-go-golems/vizthinker/pkg/tree"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func NewMessagesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "messages <session-id>",
		Short: "List the messages of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sessionID, err := tree.ParseSessionID(args[0])
			if err != nil {
				return err
			}
			a, err := openApp(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer a.close()

			msgs, err := a.svc.GetMessages(cmd.Context(), sessionID)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), msgs)
		},
	}
}

func NewPathCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "path <message-id>",
		Short: "Print the exchanges from the root down to a message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			messageID, err := tree.ParseMessageID(args[0])
			if err != nil {
				return err
			}
			a, err := openApp(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer a.close()

			path, err := a.svc.ResolvePath(cmd.Context(), messageID)
			if err != nil {
				return err
			}
			if path == nil {
				path = []tree.Exchange{}
			}
			return printJSON(cmd.OutOrStdout(), path)
		},
	}
}

func NewDeleteCommand() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "delete <message-id | session-id>",
		Short: "Delete a message and its descendants, or with --all every message of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer a.close()

			if all {
				sessionID, err := tree.ParseSessionID(args[0])
				if err != nil {
					return err
				}
				n, err := a.svc.DeleteAllMessages(cmd.Context(), sessionID)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "deleted %d messages\n", n)
				return err
			}

			messageID, err := tree.ParseMessageID(args[0])
			if err != nil {
				return err
			}
			ok, err := a.svc.DeleteMessage(cmd.Context(), messageID)
			if err != nil {
				return err
			}
			if !ok {
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "message %d not found\n", messageID)
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "deleted message %d and its descendants\n", messageID)
			return err
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Treat the argument as a session id and delete all of its messages")
	return cmd
}

func NewPositionsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "positions <session-id> <file|->",
		Short: "Apply a JSON array of {x, y} positions to a session in message order",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sessionID, err := tree.ParseSessionID(args[0])
			if err != nil {
				return err
			}
			var r io.Reader = cmd.InOrStdin()
			if args[1] != "-" {
				f, err := os.Open(args[1])
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			}
			var positions []json.RawMessage
			if err := json.NewDecoder(r).Decode(&positions); err != nil {
				return errors.Wrap(err, "decoding positions")
			}

			a, err := openApp(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer a.close()

			n, err := a.svc.ApplyPositions(cmd.Context(), sessionID, positions)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "updated %d of %d positions\n", n, len(positions))
			return err
		},
	}
}
