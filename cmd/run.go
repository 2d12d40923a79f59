// Copyright 2026 LabOps
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"os/user"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/kardianos/service"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/labops/resulttx/internal/config"
	"github.com/labops/resulttx/internal/core"
	"github.com/labops/resulttx/internal/notify"
	"github.com/labops/resulttx/internal/transfer"
)

// consoleLogger satisfies core.Logger for interactive runs; service runs
// use the kardianos event-log logger instead.
type consoleLogger struct{}

func (consoleLogger) Info(v ...interface{}) error               { log.Println(v...); return nil }
func (consoleLogger) Infof(f string, v ...interface{}) error    { log.Printf(f, v...); return nil }
func (consoleLogger) Error(v ...interface{}) error              { log.Println(v...); return nil }
func (consoleLogger) Errorf(f string, v ...interface{}) error   { log.Printf(f, v...); return nil }
func (consoleLogger) Warning(v ...interface{}) error            { log.Println(v...); return nil }
func (consoleLogger) Warningf(f string, v ...interface{}) error { log.Printf(f, v...); return nil }

// RunAgent is the entry point for the long-running process.
func RunAgent(ctx context.Context, logger core.Logger) {
	// reload config just in case
	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Warning: Config not found or invalid: %v", err)
	}

	var watches []config.WatchConfig
	if err := viper.UnmarshalKey("watches", &watches); err != nil {
		log.Printf("Error parsing config: %v", err)
		return
	}

	if len(watches) == 0 {
		log.Println("No watches configured. Idling...")
		<-ctx.Done()
		return
	}

	store := openFolders()
	defer store.Close()
	hist := openHistory()
	defer hist.Close()

	var wg sync.WaitGroup
	for _, w := range watches {
		wg.Add(1)
		go func(w config.WatchConfig) {
			defer wg.Done()
			if err := runWatch(ctx, w, store, hist, logger); err != nil {
				if logger != nil {
					logger.Errorf("[%s] Watch stopped: %v", w.Name, err)
				}
			}
		}(w)
	}
	wg.Wait()
}

// runWatch wires one source/destination pair: watcher feeding a dispatcher.
func runWatch(ctx context.Context, w config.WatchConfig, resolver core.Resolver,
	hist core.HistoryStore, logger core.Logger) error {

	if w.SourceDir == "" || w.Hostname == "" {
		return fmt.Errorf("watch %q needs both source_dir and hostname", w.Name)
	}
	if w.ArchiveDir == "" {
		w.ArchiveDir = filepath.Join(w.SourceDir, ".archive")
	}
	if w.RemoteUser == "" {
		u, err := user.Current()
		if err != nil {
			return fmt.Errorf("no remote_user configured and cannot detect current user: %w", err)
		}
		w.RemoteUser = u.Username
	}
	if w.KeyFile == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("no key_file configured and no home dir: %w", err)
		}
		w.KeyFile = filepath.Join(home, ".ssh", "id_rsa")
	}

	hints, err := core.NewHintExtractor(w.HintPattern, w.HintGroup)
	if err != nil {
		return err
	}

	filter := core.NewPatternFilter(w.FilePatterns, w.MimeTypes)
	transferer := transfer.New(w.Hostname, w.RemoteUser, w.KeyFile, w.DestinationDir, w.MkdirRemote)
	archiver := core.NewArchiveMover(w.ArchiveDir)
	notifier := notify.New(w.NotifyEndpoint, w.NotifyKey)

	dispatcher := core.NewDispatcher(w, filter, hints, resolver, transferer, archiver, hist, notifier, logger)

	watcher := core.NewWatcher(w.SourceDir, w.TouchExisting, logger)
	events, err := watcher.Observe(ctx)
	if err != nil {
		return err
	}

	dispatcher.Run(ctx, events)
	return nil
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the agent in the foreground (Internal Use)",
	Long:  `Runs the watcher process directly. Usually invoked by the service manager.`,
	Run: func(cmd *cobra.Command, args []string) {
		if service.Interactive() {
			fmt.Println("ResultTx Agent Starting...")

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			RunAgent(ctx, consoleLogger{})
		} else {
			// When running as a service, we MUST call s.Run() to check-in with the SCM
			s, err := getService(viper.ConfigFileUsed())
			if err != nil {
				log.Fatalf("Failed to initialize service: %v", err)
			}
			s.Run()
		}
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
