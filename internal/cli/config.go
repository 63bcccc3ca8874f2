package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"queuectl/internal/backoff"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Read and write runtime configuration",
	}

	getCmd := &cobra.Command{
		Use:   "get <key>",
		Short: "Print a config value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeStore, err := openStore()
			if err != nil {
				return err
			}
			defer closeStore()

			value, err := store.GetConfig(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Println(value)
			return nil
		},
	}

	setCmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a config value; a running pool picks it up immediately",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, value := args[0], args[1]
			if key == "backoff_base" {
				if _, err := backoff.ParseBase(value); err != nil {
					return err
				}
			}

			store, closeStore, err := openStore()
			if err != nil {
				return err
			}
			defer closeStore()

			if err := store.SetConfig(cmd.Context(), key, value); err != nil {
				return err
			}
			fmt.Printf("%s = %s\n", key, value)
			return nil
		},
	}

	cmd.AddCommand(getCmd, setCmd)
	return cmd
}
