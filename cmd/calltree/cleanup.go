package main

import (
	"errors"
	"os"
	"path"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/getsentry/calltree/internal/storageutil"
)

var cleanupConfig = struct {
	dir       string
	olderThan time.Duration
}{}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "remove tree files older than a retention period",
	Long:  ``,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := cleanupConfig.dir
		if dir == "" {
			dir = config.OutputDirectory
		}
		removed, err := cleanup(dir, time.Now().Add(-cleanupConfig.olderThan))
		log.Info().Str("dir", dir).Int("removed", removed).Msg("cleanup done")
		return err
	},
}

func init() {
	cleanupCmd.Flags().StringVar(
		&cleanupConfig.dir, "dir", "", "directory holding the tree files")
	cleanupCmd.Flags().DurationVar(
		&cleanupConfig.olderThan, "older-than", 30*24*time.Hour, "retention period")
}

func isTreeFile(name string) bool {
	return strings.HasSuffix(name, storageutil.TreeExtension) ||
		strings.HasSuffix(name, storageutil.TreeExtension+storageutil.CompressedExtension)
}

// cleanup removes the tree files under treesPath last modified before
// timeLimit and returns how many were removed.
func cleanup(treesPath string, timeLimit time.Time) (int, error) {
	dirEntries, err := os.ReadDir(treesPath)
	if err != nil {
		return 0, err
	}

	var removed int
	for _, entry := range dirEntries {
		if entry.IsDir() {
			n, err := cleanup(path.Join(treesPath, entry.Name()), timeLimit)
			removed += n
			if err != nil {
				return removed, err
			}
			continue
		}
		if !isTreeFile(entry.Name()) {
			continue
		}

		fileInfo, err := entry.Info()
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return removed, err
		}

		if timeLimit.After(fileInfo.ModTime()) {
			err = os.Remove(path.Join(treesPath, entry.Name()))
			if err != nil {
				return removed, err
			}
			removed++
		}
	}

	return removed, nil
}
