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

	"github.com/kardianos/service"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/labops/resulttx/internal/core"
)

// program implements the service.Interface
type program struct {
	cancel context.CancelFunc
	logger core.Logger
}

func (p *program) Start(s service.Service) error {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	if logger, err := s.Logger(nil); err == nil {
		p.logger = logger
	}
	go RunAgent(ctx, p.logger)
	return nil
}

func (p *program) Stop(s service.Service) error {
	if p.cancel != nil {
		p.cancel()
	}
	return nil
}

func getService(configPath string) (service.Service, error) {
	args := []string{"run"}
	if configPath != "" {
		args = append(args, "--config", configPath)
	}

	svcConfig := &service.Config{
		Name:        "ResultTx",
		DisplayName: "ResultTx Transfer Agent",
		Description: "Watches a results folder and copies incoming files to their mapped remote folders.",
		Arguments:   args,
	}

	prg := &program{}
	return service.New(prg, svcConfig)
}

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Install the agent as a system service",
	Run: func(cmd *cobra.Command, args []string) {
		// Find current config file to pass to the service
		configPath := viper.ConfigFileUsed()
		if configPath == "" {
			fmt.Println("Error: No config file found. Please run 'resulttx watch add' first.")
			return
		}

		s, err := getService(configPath)
		if err != nil {
			fmt.Printf("Setup failed: %v\n", err)
			return
		}

		// Check if already installed
		status, err := s.Status()
		if err == nil {
			fmt.Println("ResultTx is already installed.")
			if status == service.StatusRunning {
				fmt.Println("Service is currently RUNNING.")
			} else {
				fmt.Println("Service is currently STOPPED.")
			}
			fmt.Println("Use 'resulttx restart' to apply config changes, or 'resulttx uninstall' to remove it.")
			return
		}

		fmt.Println("Installing ResultTx Service...")
		if err := s.Install(); err != nil {
			fmt.Printf("Failed to install: %v\n", err)
			fmt.Println("Hint: Ensure you are running with sufficient privileges.")
			return
		}
		fmt.Println("Service installed successfully.")

		fmt.Println("Starting service...")
		if err := s.Start(); err != nil {
			fmt.Printf("Failed to start: %v\n", err)
			return
		}
		fmt.Println("Service started.")
	},
}

var uninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Remove the ResultTx Service",
	Run: func(cmd *cobra.Command, args []string) {
		s, err := service.New(&program{}, &service.Config{Name: "ResultTx"})
		if err != nil {
			fmt.Println(err)
			return
		}

		if err := s.Stop(); err != nil {
			// Ignore stop errors, it might not be running
		}

		if err := s.Uninstall(); err != nil {
			fmt.Printf("Failed to uninstall: %v\n", err)
			return
		}
		fmt.Println("Service uninstalled.")
	},
}

var restartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Restart the ResultTx Service",
	Run: func(cmd *cobra.Command, args []string) {
		s, err := service.New(&program{}, &service.Config{Name: "ResultTx"})
		if err != nil {
			fmt.Println(err)
			return
		}

		fmt.Println("Restarting ResultTx Service...")
		if err := s.Restart(); err != nil {
			fmt.Printf("Failed to restart: %v\n", err)
			return
		}
		fmt.Println("Service restarted.")
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the ResultTx Service",
	Run: func(cmd *cobra.Command, args []string) {
		s, err := service.New(&program{}, &service.Config{Name: "ResultTx"})
		if err != nil {
			fmt.Println(err)
			return
		}

		fmt.Println("Stopping ResultTx Service...")
		if err := s.Stop(); err != nil {
			fmt.Printf("Failed to stop: %v\n", err)
			return
		}
		fmt.Println("Service stopped.")
	},
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the ResultTx Service",
	Run: func(cmd *cobra.Command, args []string) {
		s, err := service.New(&program{}, &service.Config{Name: "ResultTx"})
		if err != nil {
			fmt.Println(err)
			return
		}

		fmt.Println("Starting ResultTx Service...")
		if err := s.Start(); err != nil {
			fmt.Printf("Failed to start: %v\n", err)
			return
		}
		fmt.Println("Service started.")
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check the status of the ResultTx Service",
	Run: func(cmd *cobra.Command, args []string) {
		s, err := service.New(&program{}, &service.Config{Name: "ResultTx"})
		if err != nil {
			fmt.Println(err)
			return
		}

		status, err := s.Status()
		if err != nil {
			fmt.Printf("Could not get status: %v\n", err)
			return
		}

		statusStr := "Unknown"
		switch status {
		case service.StatusRunning:
			statusStr = "Running"
		case service.StatusStopped:
			statusStr = "Stopped"
		}

		fmt.Printf("ResultTx Service Status: %s\n", statusStr)
	},
}

func init() {
	rootCmd.AddCommand(installCmd)
	rootCmd.AddCommand(uninstallCmd)
	rootCmd.AddCommand(restartCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(statusCmd)
}
