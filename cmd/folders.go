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

	"github.com/labops/resulttx/internal/folders"
)

var foldersCmd = &cobra.Command{
	Use:   "folders",
	Short: "Manage the hint-to-folder mapping table",
	Long: `The mapping table resolves (base path, hint, label) triples to remote
subfolder names. A file whose hint has no mapping row fails with
mapping_not_found and stays in the source folder until a row is added and
the file is touched again.`,
}

var foldersAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add or update a mapping row",
	Example: `  resulttx folders add --base /srv/results --hint 12 --label bhs --folder folder12`,
	Run: func(cmd *cobra.Command, args []string) {
		base, _ := cmd.Flags().GetString("base")
		hint, _ := cmd.Flags().GetString("hint")
		label, _ := cmd.Flags().GetString("label")
		folder, _ := cmd.Flags().GetString("folder")

		if base == "" || folder == "" {
			fmt.Println("Error: --base and --folder are required.")
			return
		}

		store := openFolders()
		defer store.Close()

		m := folders.Mapping{BasePath: base, Hint: hint, Label: label, Folder: folder}
		if err := store.Put(m); err != nil {
			fmt.Printf("Failed to add mapping: %v\n", err)
			return
		}
		fmt.Printf("Mapped (%s, %q, %s) -> %s\n", base, hint, label, folder)
	},
}

var foldersListCmd = &cobra.Command{
	Use:     "ls",
	Aliases: []string{"list"},
	Short:   "List mapping rows",
	Run: func(cmd *cobra.Command, args []string) {
		store := openFolders()
		defer store.Close()

		mappings, err := store.List()
		if err != nil {
			fmt.Printf("Failed to list mappings: %v\n", err)
			return
		}
		if len(mappings) == 0 {
			fmt.Println("No mappings configured.")
			return
		}

		fmt.Printf("% -30s % -10s % -10s %s\n", "BASE PATH", "HINT", "LABEL", "FOLDER")
		fmt.Println("--------------------------------------------------------------------------------")
		for _, m := range mappings {
			fmt.Printf("% -30s % -10s % -10s %s\n", m.BasePath, m.Hint, m.Label, m.Folder)
		}
	},
}

var foldersRemoveCmd = &cobra.Command{
	Use:     "remove",
	Aliases: []string{"rm", "del"},
	Short:   "Remove a mapping row",
	Run: func(cmd *cobra.Command, args []string) {
		base, _ := cmd.Flags().GetString("base")
		hint, _ := cmd.Flags().GetString("hint")
		label, _ := cmd.Flags().GetString("label")

		store := openFolders()
		defer store.Close()

		if err := store.Remove(base, hint, label); err != nil {
			fmt.Printf("Failed to remove mapping: %v\n", err)
			return
		}
		fmt.Printf("Removed mapping (%s, %q, %s)\n", base, hint, label)
	},
}

func init() {
	foldersAddCmd.Flags().String("base", "", "Remote base path the mapping applies to")
	foldersAddCmd.Flags().String("hint", "", "Hint token parsed from filenames")
	foldersAddCmd.Flags().String("label", "", "Watch label")
	foldersAddCmd.Flags().String("folder", "", "Remote subfolder name")

	foldersRemoveCmd.Flags().String("base", "", "Remote base path the mapping applies to")
	foldersRemoveCmd.Flags().String("hint", "", "Hint token parsed from filenames")
	foldersRemoveCmd.Flags().String("label", "", "Watch label")

	foldersCmd.AddCommand(foldersAddCmd)
	foldersCmd.AddCommand(foldersListCmd)
	foldersCmd.AddCommand(foldersRemoveCmd)
	rootCmd.AddCommand(foldersCmd)
}
