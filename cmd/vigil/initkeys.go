package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mistakeknot/vigil/internal/cli"
)

func initCmd() *cobra.Command {
	var (
		team     string
		keysFile string
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Generate an API key for a team",
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := cli.InitKeysFile(keysFile, team)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "API key for team %s:\n%s\n", team, key)
			return nil
		},
	}

	cmd.Flags().StringVar(&team, "team", "", "team name the key belongs to")
	cmd.Flags().StringVar(&keysFile, "keys-file", "vigil.keys.yaml", "path to the keys file")
	_ = cmd.MarkFlagRequired("team")
	return cmd
}
