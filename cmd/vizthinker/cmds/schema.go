package cmds

import (
	"sort"
	"strings"

	"github.com/go-go-golems/vizthinker/pkg/export"
	"github.com/go-go-golems/vizthinker/pkg/service"
	"github.com/go-go-golems/vizthinker/pkg/tree"
	"github.com/invopop/jsonschema"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var schemaTypes = map[string]interface{}{
	"message":  &tree.Message{},
	"position": &tree.Position{},
	"session":  &tree.Session{},
	"chat":     &service.ChatRequest{},
	"export":   &export.Document{},
}

func NewSchemaCommand() *cobra.Command {
	names := make([]string, 0, len(schemaTypes))
	for k := range schemaTypes {
		names = append(names, k)
	}
	sort.Strings(names)

	return &cobra.Command{
		Use:       "schema <" + strings.Join(names, "|") + ">",
		Short:     "Print the JSON schema of an API payload",
		Args:      cobra.ExactArgs(1),
		ValidArgs: names,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, ok := schemaTypes[args[0]]
			if !ok {
				return errors.Errorf("unknown schema %q, expected one of %s", args[0], strings.Join(names, ", "))
			}
			reflector := &jsonschema.Reflector{
				DoNotReference: true,
			}
			return printJSON(cmd.OutOrStdout(), reflector.Reflect(v))
		},
	}
}
