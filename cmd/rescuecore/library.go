package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"rescuecore/internal/htn"
)

var (
	libraryPath  string
	libraryWatch bool
)

var libraryCmd = &cobra.Command{
	Use:   "library",
	Short: "Manage the HTN meta-task library",
}

var libraryValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a meta-task library file",
	Long: `Loads the library and checks its invariants: chains reference only
declared meta-tasks, scene mappings target existing chains, and no chain
contains a dependency cycle. With --watch the file is re-validated on every
save, which keeps a library-editing session honest.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := libraryPath
		if path == "" {
			path = cfg.HTN.LibraryPath
		}

		if err := validateLibrary(path); err != nil && !libraryWatch {
			return err
		}
		if !libraryWatch {
			return nil
		}
		if path == "" {
			return fmt.Errorf("--watch needs a library file path")
		}
		return watchLibrary(path)
	},
}

func validateLibrary(path string) error {
	lib, err := htn.LoadLibrary(path)
	if err != nil {
		fmt.Printf("INVALID: %v\n", err)
		return err
	}
	name := path
	if name == "" {
		name = "(embedded default)"
	}
	fmt.Printf("OK: %s (%d meta-tasks, %d chains, %d scene mappings)\n",
		name, len(lib.MetaTasks), len(lib.Chains), len(lib.SceneToChain))
	return nil
}

// watchLibrary re-validates the library whenever the file changes. Editors
// write through renames, so the parent directory is watched and events are
// debounced.
func watchLibrary(path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}

	logger.Info("watching library", zap.String("path", abs))
	fmt.Println("Watching for changes (Ctrl+C to stop)...")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	const debounce = 300 * time.Millisecond
	var timer *time.Timer
	fire := make(chan struct{}, 1)

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})
		case <-fire:
			_ = validateLibrary(path)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watcher error", zap.Error(err))
		case <-sigCh:
			return nil
		}
	}
}

func init() {
	libraryValidateCmd.Flags().StringVarP(&libraryPath, "file", "f", "", "library JSON file (defaults to the configured path)")
	libraryValidateCmd.Flags().BoolVarP(&libraryWatch, "watch", "w", false, "re-validate on file changes")
	libraryCmd.AddCommand(libraryValidateCmd)
}
