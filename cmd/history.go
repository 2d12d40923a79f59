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

	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect and reset the transfer history",
}

var historyListCmd = &cobra.Command{
	Use:     "ls",
	Aliases: []string{"list"},
	Short:   "List transfer history records",
	Run: func(cmd *cobra.Command, args []string) {
		hist := openHistory()
		defer hist.Close()

		records, err := hist.List()
		if err != nil {
			fmt.Printf("Failed to read history: %v\n", err)
			return
		}
		if len(records) == 0 {
			fmt.Println("No history recorded.")
			return
		}

		fmt.Printf("% -45s % -8s % -6s % -12s % -8s %s\n", "PATH", "STATUS", "HINT", "FOLDER", "ATTEMPTS", "LAST ERROR")
		fmt.Println("--------------------------------------------------------------------------------")
		for _, r := range records {
			fmt.Printf("% -45s % -8s % -6s % -12s % -8d %s\n", r.Path, r.Status, r.Hint, r.Folder, r.Attempts, r.LastError)
		}
	},
}

var historyResetPath string

var historyResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear the transfer history",
	Long:  `Clears the history records that back the per-path retry ceiling. Use this to let the agent retry files that have exhausted their error budget.`,
	Run: func(cmd *cobra.Command, args []string) {
		hist := openHistory()
		defer hist.Close()

		if historyResetPath != "" {
			fmt.Printf("Clearing history for: %s\n", historyResetPath)
		} else {
			fmt.Println("Clearing ENTIRE transfer history. Failed files become eligible for retry on their next event.")
		}

		if err := hist.Reset(historyResetPath); err != nil {
			fmt.Printf("Failed to reset history: %v\n", err)
			return
		}
		fmt.Println("History reset complete.")
	},
}

func init() {
	historyResetCmd.Flags().StringVarP(&historyResetPath, "path", "p", "", "Specific file path to clear from history")
	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyResetCmd)
	rootCmd.AddCommand(historyCmd)
}
