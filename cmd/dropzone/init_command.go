package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/msageha/dropzone/internal/config"
	"github.com/msageha/dropzone/internal/setup"
)

func newInitCommand(cc *commandContext) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Create the dropzone home with a default config and example processors",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			home, err := cc.home()
			if err != nil {
				return err
			}
			if err := setup.Run(home, force); err != nil {
				return err
			}
			cc.logger.Debugf("initialized %s", home)
			fmt.Fprintf(cc.stdout, "Initialized %s\n", filepath.Join(home, config.FileName))
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config (the old one is kept as .bak)")
	return cmd
}
