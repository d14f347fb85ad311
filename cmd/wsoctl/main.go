package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cuemby/wsomgr/pkg/repository/mongostore"
	"github.com/cuemby/wsomgr/pkg/types"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "wsoctl",
	Short: "wsoctl administers a wsomgr cluster's Config document",
}

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Replace the cluster's Config document with the contents of a JSON or YAML file",
	RunE:  runApply,
}

var getCmd = &cobra.Command{
	Use:   "get",
	Short: "Print the cluster's current Config document as JSON",
	RunE:  runGet,
}

func init() {
	applyCmd.Flags().StringP("config", "c", "config.json", "configuration to apply")
	applyCmd.Flags().StringP("db", "d", "mongodb://localhost/wso", "database connection string")
	getCmd.Flags().StringP("db", "d", "mongodb://localhost/wso", "database connection string")
	rootCmd.AddCommand(applyCmd, getCmd)
}

func runApply(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("config")
	conn, _ := cmd.Flags().GetString("db")

	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	cfg, err := decodeConfig(path, raw)
	if err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store, err := mongostore.Connect(ctx, mongostore.Config{ConnectionString: conn})
	if err != nil {
		return fmt.Errorf("connect to %s: %w", conn, err)
	}
	defer store.Close(context.Background())

	if err := store.SaveConfig(ctx, cfg); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	fmt.Fprintln(os.Stdout, "config applied")
	return nil
}

func runGet(cmd *cobra.Command, args []string) error {
	conn, _ := cmd.Flags().GetString("db")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store, err := mongostore.Connect(ctx, mongostore.Config{ConnectionString: conn})
	if err != nil {
		return fmt.Errorf("connect to %s: %w", conn, err)
	}
	defer store.Close(context.Background())

	cfg, err := store.GetConfig(ctx)
	if err != nil {
		return fmt.Errorf("get config: %w", err)
	}

	out, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	fmt.Fprintln(os.Stdout, string(out))
	return nil
}

// decodeConfig parses raw as YAML if path ends in .yaml/.yml, JSON
// otherwise. YAML is bridged through an interface{} and re-encoded as
// JSON rather than unmarshaled directly, so the custom JSON
// unmarshalers on types.AddressPool and netip.Addr still run.
func decodeConfig(path string, raw []byte) (types.Config, error) {
	var cfg types.Config

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return types.Config{}, err
		}
		return cfg, nil
	}

	var generic interface{}
	if err := yaml.Unmarshal(raw, &generic); err != nil {
		return types.Config{}, fmt.Errorf("decode yaml: %w", err)
	}
	bridged, err := json.Marshal(generic)
	if err != nil {
		return types.Config{}, fmt.Errorf("bridge yaml to json: %w", err)
	}
	if err := json.Unmarshal(bridged, &cfg); err != nil {
		return types.Config{}, err
	}
	return cfg, nil
}
