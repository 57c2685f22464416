package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var (
	invokeList   bool
	invokePretty bool
)

var invokeCmd = &cobra.Command{
	Use:   "invoke <command> [payload|-]",
	Short: "Run a desktop command with a JSON payload",
	Long: `Run one of the commands the desktop application sends, by name, with a
JSON payload given inline or on stdin (-). The result is printed as the JSON
envelope {success, data, error, errorKind, timestamp}.

Examples:
  etabext invoke --list
  etabext invoke list_branches '{"projectPath": "."}'
  echo '{"filePath": "model.edb"}' | etabext invoke validate_etabs_file -`,
	Args: func(cmd *cobra.Command, args []string) error {
		if invokeList {
			return cobra.NoArgs(cmd, args)
		}
		return cobra.RangeArgs(1, 2)(cmd, args)
	},
	RunE: runInvoke,
}

func init() {
	rootCmd.AddCommand(invokeCmd)

	invokeCmd.Flags().BoolVar(&invokeList, "list", false, "List available commands")
	invokeCmd.Flags().BoolVar(&invokePretty, "pretty", false, "Indent the JSON output")
}

func runInvoke(cmd *cobra.Command, args []string) error {
	svc := newService()

	if invokeList {
		for _, name := range svc.Commands() {
			fmt.Println(name)
		}
		return nil
	}

	var payload []byte
	if len(args) > 1 {
		if args[1] == "-" {
			data, err := io.ReadAll(os.Stdin)
			if err != nil {
				return fmt.Errorf("failed to read payload: %w", err)
			}
			payload = data
		} else {
			payload = []byte(args[1])
		}
	}

	out := svc.Invoke(commandContext(cmd), args[0], payload)
	if invokePretty {
		var buf bytes.Buffer
		if err := json.Indent(&buf, out, "", "  "); err == nil {
			out = buf.Bytes()
		}
	}
	fmt.Println(string(out))
	return nil
}
