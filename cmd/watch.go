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
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/labops/resulttx/internal/config"
	"github.com/labops/resulttx/internal/core"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Manage watched source folders",
}

var watchAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a new source folder to watch",
	Long: `Adds a source/destination pair to the agent's watch list.

Each incoming file is matched against the configured globs and MIME types,
its destination hint is parsed from the filename, the hint is resolved
against the folder-mapping table, and the file is copied to the mapped
subfolder under the remote destination dir. Successfully sent files are
moved into the archive dir; failed files stay in the source dir with the
failure recorded in history.`,
	Example: `  resulttx watch add --name bhs --source /inbox/bhs --host results.example.org --dest /srv/results --archive /inbox/bhs/archive --label bhs --pattern "*.pdf" --mime application/pdf --touch-existing --mkdir-remote`,
	Run: func(cmd *cobra.Command, args []string) {
		name, _ := cmd.Flags().GetString("name")
		source, _ := cmd.Flags().GetString("source")
		host, _ := cmd.Flags().GetString("host")
		remoteUser, _ := cmd.Flags().GetString("user")
		keyFile, _ := cmd.Flags().GetString("key-file")
		dest, _ := cmd.Flags().GetString("dest")
		archive, _ := cmd.Flags().GetString("archive")
		label, _ := cmd.Flags().GetString("label")
		patterns, _ := cmd.Flags().GetStringSlice("pattern")
		mimeTypes, _ := cmd.Flags().GetStringSlice("mime")
		touchExisting, _ := cmd.Flags().GetBool("touch-existing")
		mkdirRemote, _ := cmd.Flags().GetBool("mkdir-remote")
		hintPattern, _ := cmd.Flags().GetString("hint-pattern")
		hintGroup, _ := cmd.Flags().GetInt("hint-group")
		maxAttempts, _ := cmd.Flags().GetInt("max-attempts")
		retryBackoff, _ := cmd.Flags().GetString("retry-backoff")
		retryTimeout, _ := cmd.Flags().GetString("retry-timeout")
		errorCeiling, _ := cmd.Flags().GetInt("error-ceiling")
		concurrencyLimit, _ := cmd.Flags().GetInt("concurrency-limit")
		queueSize, _ := cmd.Flags().GetInt("queue-size")
		settlingDelay, _ := cmd.Flags().GetString("settling-delay")
		notifyEndpoint, _ := cmd.Flags().GetString("notify-endpoint")
		notifyKey, _ := cmd.Flags().GetString("notify-key")

		if name == "" || source == "" || host == "" || dest == "" {
			fmt.Println("Error: --name, --source, --host, and --dest are required.")
			return
		}

		// Validate the hint rule up front; a broken rule would silently
		// send every file through the empty-hint mapping.
		if _, err := core.NewHintExtractor(hintPattern, hintGroup); err != nil {
			fmt.Printf("Invalid hint rule: %v\n", err)
			return
		}

		absSource, err := filepath.Abs(source)
		if err != nil {
			fmt.Printf("Invalid source path: %v\n", err)
			return
		}
		if archive != "" {
			if archive, err = filepath.Abs(archive); err != nil {
				fmt.Printf("Invalid archive path: %v\n", err)
				return
			}
		}

		// Load existing watches
		var watches []config.WatchConfig
		if err := viper.UnmarshalKey("watches", &watches); err != nil {
			watches = []config.WatchConfig{}
		}

		// Check for duplicates
		for _, w := range watches {
			if w.Name == name {
				fmt.Printf("Error: Watch '%s' already exists.\n", name)
				return
			}
		}

		newWatch := config.WatchConfig{
			Name:             name,
			Hostname:         host,
			RemoteUser:       remoteUser,
			KeyFile:          keyFile,
			SourceDir:        absSource,
			DestinationDir:   dest,
			ArchiveDir:       archive,
			Label:            label,
			FilePatterns:     patterns,
			MimeTypes:        mimeTypes,
			TouchExisting:    touchExisting,
			MkdirRemote:      mkdirRemote,
			HintPattern:      hintPattern,
			HintGroup:        hintGroup,
			MaxAttempts:      maxAttempts,
			RetryBackoff:     retryBackoff,
			RetryTimeout:     retryTimeout,
			ErrorCeiling:     errorCeiling,
			ConcurrencyLimit: concurrencyLimit,
			QueueSize:        queueSize,
			SettlingDelay:    settlingDelay,
			NotifyEndpoint:   notifyEndpoint,
			NotifyKey:        notifyKey,
		}

		watches = append(watches, newWatch)
		viper.Set("watches", watches)

		// Save config
		if viper.ConfigFileUsed() != "" {
			if err := viper.WriteConfig(); err != nil {
				fmt.Printf("Failed to update config: %v\n", err)
				return
			}
		} else {
			exePath, _ := os.Executable()
			targetDir := filepath.Dir(exePath)
			viper.SetConfigFile(filepath.Join(targetDir, "config.yaml"))

			if err := viper.SafeWriteConfig(); err != nil {
				fmt.Printf("Failed to create config: %v\n", err)
				return
			}
		}

		fmt.Printf("Watch '%s' added. Watching: %s -> %s:%s\n", name, absSource, host, dest)
		fmt.Println("\n>>> IMPORTANT: Run 'resulttx restart' to apply these changes to the running service.")
	},
}

var watchListCmd = &cobra.Command{
	Use:     "ls",
	Aliases: []string{"list"},
	Short:   "List configured watches",
	Run: func(cmd *cobra.Command, args []string) {
		var watches []config.WatchConfig
		viper.UnmarshalKey("watches", &watches)

		if len(watches) == 0 {
			fmt.Println("No watches configured.")
			return
		}

		fmt.Printf("% -15s % -35s % -25s %s\n", "NAME", "SOURCE", "HOST", "DESTINATION")
		fmt.Println("--------------------------------------------------------------------------------")
		for _, w := range watches {
			fmt.Printf("% -15s % -35s % -25s %s\n", w.Name, w.SourceDir, w.Hostname, w.DestinationDir)
		}
	},
}

var watchRemoveCmd = &cobra.Command{
	Use:     "remove [name]",
	Aliases: []string{"rm", "del"},
	Short:   "Remove a configured watch",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		name := args[0]

		var watches []config.WatchConfig
		if err := viper.UnmarshalKey("watches", &watches); err != nil {
			fmt.Println("No watches configured.")
			return
		}

		found := false
		var updated []config.WatchConfig
		for _, w := range watches {
			if w.Name == name {
				found = true
				continue
			}
			updated = append(updated, w)
		}

		if !found {
			fmt.Printf("Error: Watch '%s' not found.\n", name)
			return
		}

		viper.Set("watches", updated)
		if err := viper.WriteConfig(); err != nil {
			fmt.Printf("Failed to save config: %v\n", err)
			return
		}

		fmt.Printf("Watch '%s' removed successfully.\n", name)
		fmt.Println("\n>>> IMPORTANT: Run 'resulttx restart' to apply these changes to the running service.")
	},
}

func init() {
	watchAddCmd.Flags().String("name", "", "Unique name for this watch")
	watchAddCmd.Flags().String("source", "", "Local folder to watch")
	watchAddCmd.Flags().String("host", "", "Remote host to copy files to")
	watchAddCmd.Flags().String("user", "", "SSH user (default: current user)")
	watchAddCmd.Flags().String("key-file", "", "SSH private key (default: ~/.ssh/id_rsa)")
	watchAddCmd.Flags().String("dest", "", "Remote base path for resolved subfolders")
	watchAddCmd.Flags().String("archive", "", "Local archive folder for sent files (default: <source>/.archive)")
	watchAddCmd.Flags().String("label", "", "Static label used in mapping lookups")
	watchAddCmd.Flags().StringSlice("pattern", []string{"*.pdf"}, "Filename globs to accept")
	watchAddCmd.Flags().StringSlice("mime", nil, "Allowed sniffed MIME types (empty disables the check)")
	watchAddCmd.Flags().Bool("touch-existing", false, "Process files already present at startup")
	watchAddCmd.Flags().Bool("mkdir-remote", false, "Create missing remote subfolders")
	watchAddCmd.Flags().String("hint-pattern", core.DefaultHintPattern, "Regexp capturing the destination hint from the filename")
	watchAddCmd.Flags().Int("hint-group", 1, "Capture group holding the hint")
	watchAddCmd.Flags().Int("max-attempts", 3, "Transfer attempts per file event")
	watchAddCmd.Flags().String("retry-backoff", "2s", "Initial backoff between transfer retries")
	watchAddCmd.Flags().String("retry-timeout", "10m", "Max elapsed time across retries")
	watchAddCmd.Flags().Int("error-ceiling", 10, "Persistent error count before a path is skipped")
	watchAddCmd.Flags().Int("concurrency-limit", 5, "Maximum simultaneous transfers")
	watchAddCmd.Flags().Int("queue-size", 100, "Event buffer size before backpressure")
	watchAddCmd.Flags().String("settling-delay", "5s", "Quiet period before a file is dispatched")
	watchAddCmd.Flags().String("notify-endpoint", "", "Optional webhook for transfer outcomes")
	watchAddCmd.Flags().String("notify-key", "", "Bearer key for the webhook")

	watchCmd.AddCommand(watchAddCmd)
	watchCmd.AddCommand(watchListCmd)
	watchCmd.AddCommand(watchRemoveCmd)
	rootCmd.AddCommand(watchCmd)
}
