package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/msageha/dropzone/internal/config"
	"github.com/msageha/dropzone/internal/dialog"
	"github.com/msageha/dropzone/internal/watch"
)

func newWatchCommand(cc *commandContext) *cobra.Command {
	var folders []string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Drop new files of watched folders onto their profiles",
		Long: "Drop new files of watched folders onto their profiles.\n" +
			"Folders come from the watch section of the config and from --folder path=profile.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			extra, err := parseFolders(folders)
			if err != nil {
				return err
			}
			return runWatch(cmd.Context(), cc, extra)
		},
	}
	cmd.Flags().StringArrayVar(&folders, "folder", nil, "watch a folder, as path=profile (repeatable)")
	return cmd
}

func parseFolders(specs []string) ([]config.WatchFolder, error) {
	out := make([]config.WatchFolder, 0, len(specs))
	for _, s := range specs {
		path, profileID, ok := strings.Cut(s, "=")
		if !ok || path == "" || profileID == "" {
			return nil, fmt.Errorf("invalid --folder %q: want path=profile", s)
		}
		out = append(out, config.WatchFolder{Path: path, Profile: profileID})
	}
	return out, nil
}

func runWatch(ctx context.Context, cc *commandContext, extra []config.WatchFolder) error {
	rt, err := newRuntime(cc, &dialog.Scripted{})
	if err != nil {
		return err
	}
	defer rt.close()

	if _, err := rt.installManifests(ctx); err != nil {
		return err
	}
	if err := rt.loadProfiles(); err != nil {
		return err
	}

	var folders []watch.Folder
	for _, f := range append(append([]config.WatchFolder(nil), rt.cfg.Watch.Folders...), extra...) {
		if _, ok := rt.profile(f.Profile); !ok {
			return fmt.Errorf("watch folder %s: unknown profile %q", f.Path, f.Profile)
		}
		folders = append(folders, watch.Folder{Path: f.Path, Profile: f.Profile})
	}

	w, err := watch.New(watch.Config{
		Folders: folders,
		Profile: func(id string) (watch.Dropper, bool) {
			p, ok := rt.profile(id)
			return p, ok
		},
		Debounce: rt.cfg.Watch.Debounce(),
		LockPath: rt.cfg.Watch.LockFile,
		Logger:   rt.logger,
	})
	if err != nil {
		return fmt.Errorf("could not create watcher: %w", err)
	}

	return rt.runGroup(ctx, w.Run)
}
