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
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/labops/resulttx/internal/db"
	"github.com/labops/resulttx/internal/folders"
)

// dbPath resolves the sqlite file holding both the folder-mapping table
// and the transfer history. Configurable via db_path, otherwise a
// standard OS data directory.
func dbPath() string {
	if viper.IsSet("db_path") {
		return viper.GetString("db_path")
	}

	// Windows: %PROGRAMDATA%\ResultTx
	// Linux: /var/lib/resulttx
	var dataDir string
	if os.Getenv("OS") == "Windows_NT" {
		dataDir = filepath.Join(os.Getenv("ProgramData"), "ResultTx")
	} else {
		dataDir = "/var/lib/resulttx"
	}
	return filepath.Join(dataDir, "state.db")
}

func openFolders() *folders.Store {
	store, err := folders.Open(dbPath())
	if err != nil {
		log.Fatalf("Failed to open folder mappings: %v", err)
	}
	return store
}

func openHistory() *db.History {
	hist, err := db.Open(dbPath())
	if err != nil {
		log.Fatalf("Failed to open history: %v", err)
	}
	return hist
}
