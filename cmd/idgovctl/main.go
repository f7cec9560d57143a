package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	serverAddr string
	apiPrefix  = "/apis/idgov.io/v1"
)

func main() {
	var rootCmd = &cobra.Command{
		Use:   "idgovctl",
		Short: "idgovctl controls the idgov identity governance engine",
		Long:  `A command line tool to manage Systems, SystemMappings and SyncConfigs.`,
	}

	rootCmd.PersistentFlags().StringVarP(&serverAddr, "server", "s", "http://localhost:8080", "The address and port of the idgov API server")

	rootCmd.AddCommand(newApplyCommand())
	rootCmd.AddCommand(newGetCommand())
	rootCmd.AddCommand(newDeleteCommand())
	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newCancelCommand())
	rootCmd.AddCommand(newLogsCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newApplyCommand() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Apply a configuration to a resource by file name",
		Run: func(cmd *cobra.Command, args []string) {
			if file == "" {
				fmt.Println("Error: must specify -f <file>")
				return
			}

			data, err := os.ReadFile(file)
			if err != nil {
				fmt.Printf("Error reading file: %v\n", err)
				return
			}

			var base struct {
				Kind     string `yaml:"kind"`
				Metadata struct {
					Name string `yaml:"name"`
				} `yaml:"metadata"`
			}
			if err := yaml.Unmarshal(data, &base); err != nil {
				fmt.Printf("Error parsing YAML: %v\n", err)
				return
			}

			endpoint := getEndpoint(base.Kind)
			if endpoint == "" {
				fmt.Printf("Error: Unknown kind %q\n", base.Kind)
				return
			}

			resp, err := http.Post(serverAddr+apiPrefix+endpoint, "application/yaml", bytes.NewBuffer(data))
			if err != nil {
				fmt.Printf("Error connecting to server: %v\n", err)
				return
			}
			defer resp.Body.Close()

			if resp.StatusCode >= 300 {
				body, _ := io.ReadAll(resp.Body)
				fmt.Printf("Error from server (%d): %s\n", resp.StatusCode, string(body))
				return
			}

			fmt.Printf("%s/%s applied\n", base.Kind, base.Metadata.Name)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Configuration file to apply")
	return cmd
}

func newGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get [kind]",
		Short: "Display one or many resources",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			kind := args[0]
			endpoint := getEndpoint(kind)
			if endpoint == "" {
				fmt.Printf("Error: Unknown resource kind %q\n", kind)
				return
			}

			resp, err := http.Get(serverAddr + apiPrefix + endpoint)
			if err != nil {
				fmt.Printf("Error: %v\n", err)
				return
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				fmt.Printf("Error: Server returned %d\n", resp.StatusCode)
				return
			}

			var items []map[string]any
			if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
				fmt.Printf("Error decoding server response: %v\n", err)
				return
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, '\t', 0)
			fmt.Fprintln(w, "NAME\tSTATUS")
			for _, item := range items {
				name := item["name"]
				if name == nil {
					name = item["id"]
				}

				status := "Active"
				if disabled, ok := item["disabled"].(bool); ok && disabled {
					status = "Disabled"
				}
				if enabled, ok := item["enabled"].(bool); ok && !enabled {
					status = "Disabled"
				}

				fmt.Fprintf(w, "%v\t%v\n", name, status)
			}
			w.Flush()
		},
	}
}

func newDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete [kind] [name]",
		Short: "Delete resources by kind and name",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			kind := args[0]
			name := args[1]
			endpoint := getEndpoint(kind)
			if endpoint == "" {
				fmt.Printf("Error: Unknown kind %q\n", kind)
				return
			}

			req, _ := http.NewRequest(http.MethodDelete, serverAddr+apiPrefix+endpoint+"/"+name, nil)
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				fmt.Printf("Error: %v\n", err)
				return
			}
			defer resp.Body.Close()

			if resp.StatusCode == http.StatusOK {
				fmt.Printf("%s %q deleted\n", kind, name)
			} else {
				body, _ := io.ReadAll(resp.Body)
				fmt.Printf("Failed to delete (Status: %d): %s\n", resp.StatusCode, string(body))
			}
		},
	}
}

func newRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run [syncconfig-name]",
		Short: "Trigger a synchronization run for a SyncConfig",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			name := args[0]
			url := fmt.Sprintf("%s%s/syncconfigs/%s/run", serverAddr, apiPrefix, name)

			resp, err := http.Post(url, "application/json", nil)
			if err != nil {
				fmt.Printf("Error connecting to server: %v\n", err)
				return
			}
			defer resp.Body.Close()

			body, _ := io.ReadAll(resp.Body)
			var result map[string]any
			json.Unmarshal(body, &result)

			switch resp.StatusCode {
			case http.StatusAccepted:
				fmt.Printf("Sync queued for %q\n", name)
			default:
				if errMsg, ok := result["error"].(string); ok {
					fmt.Printf("Error: %s\n", errMsg)
				} else {
					fmt.Printf("Unexpected response (%d): %s\n", resp.StatusCode, string(body))
				}
			}
		},
	}
}

func newCancelCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel [syncconfig-name]",
		Short: "Cancel the running synchronization of a SyncConfig",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			name := args[0]
			url := fmt.Sprintf("%s%s/syncconfigs/%s/cancel", serverAddr, apiPrefix, name)

			resp, err := http.Post(url, "application/json", nil)
			if err != nil {
				fmt.Printf("Error connecting to server: %v\n", err)
				return
			}
			defer resp.Body.Close()

			body, _ := io.ReadAll(resp.Body)
			if resp.StatusCode == http.StatusAccepted {
				fmt.Printf("Cancellation requested for %q\n", name)
			} else {
				fmt.Printf("Error from server (%d): %s\n", resp.StatusCode, string(body))
			}
		},
	}
}

func newLogsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logs [syncconfig-name]",
		Short: "List synchronization runs of a SyncConfig",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			name := args[0]
			url := fmt.Sprintf("%s%s/syncconfigs/%s/logs", serverAddr, apiPrefix, name)

			resp, err := http.Get(url)
			if err != nil {
				fmt.Printf("Error: %v\n", err)
				return
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				fmt.Printf("Error: Server returned %d\n", resp.StatusCode)
				return
			}

			var logs []map[string]any
			if err := json.NewDecoder(resp.Body).Decode(&logs); err != nil {
				fmt.Printf("Error decoding server response: %v\n", err)
				return
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, '\t', 0)
			fmt.Fprintln(w, "ID\tSTARTED\tRUNNING\tERRORS\tTOKEN")
			for _, log := range logs {
				fmt.Fprintf(w, "%v\t%v\t%v\t%v\t%v\n",
					log["id"], log["started"], log["running"] == true,
					log["containsError"] == true, log["token"])
			}
			w.Flush()
		},
	}
}

func getEndpoint(kind string) string {
	switch kind {
	case "System", "system", "systems", "sys":
		return "/systems"
	case "SystemMapping", "systemmapping", "mapping", "mappings":
		return "/mappings"
	case "SyncConfig", "syncconfig", "syncconfigs", "sc":
		return "/syncconfigs"
	default:
		return ""
	}
}
