package cmd

import (
	"fmt"
	"reflect"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jmylchreest/framegrab/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
	Long:  `Commands for managing framegrab configuration.`,
}

var configDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Dump the default configuration",
	Long: `Dump the default configuration values in YAML format.

This shows all available configuration options with their default values.
You can redirect this output to a file to create a configuration template:

  framegrab config dump > config.yaml

Configuration can be set via:
  - Config file (config.yaml, .framegrab.yaml, /etc/framegrab/config.yaml)
  - Environment variables (FRAMEGRAB_STREAM_URL, FRAMEGRAB_STATUS_PORT, etc.)
  - Command-line flags (for some options)

Environment variables use the FRAMEGRAB_ prefix and underscores for nesting.
Example: stream.url -> FRAMEGRAB_STREAM_URL`,
	RunE: runConfigDump,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configDumpCmd)
}

// toMap converts a struct to a map, formatting durations for human readability.
func toMap(v any) map[string]any {
	result := make(map[string]any)
	val := reflect.ValueOf(v)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}
	typ := val.Type()

	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)

		// Get mapstructure tag or use the field name
		key := fieldType.Tag.Get("mapstructure")
		if key == "" {
			key = fieldType.Name
		}

		switch v := field.Interface().(type) {
		case time.Duration:
			result[key] = v.String()
		default:
			if field.Kind() == reflect.Struct {
				result[key] = toMap(field.Interface())
			} else {
				result[key] = field.Interface()
			}
		}
	}
	return result
}

func runConfigDump(cmd *cobra.Command, args []string) error {
	// Load config with defaults (no file, just defaults)
	cfg, err := config.Load("")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	cfgMap := toMap(cfg)

	yamlData, err := yaml.Marshal(cfgMap)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	fmt.Println("# framegrab Configuration File")
	fmt.Println("# ============================")
	fmt.Println("#")
	fmt.Println("# All values shown below are defaults.")
	fmt.Println("# Duration format: 1s, 500ms, 5m")
	fmt.Println("#")
	fmt.Println("# Environment variable overrides:")
	fmt.Println("#   FRAMEGRAB_STREAM_URL, FRAMEGRAB_STREAM_WIDTH")
	fmt.Println("#   FRAMEGRAB_CAPTURE_BUFFER_CAPACITY, FRAMEGRAB_CAPTURE_FORCE_SOFTWARE")
	fmt.Println("#   FRAMEGRAB_FFMPEG_BINARY_PATH, FRAMEGRAB_FFMPEG_HWACCEL_PRIORITY")
	fmt.Println("#   FRAMEGRAB_LOGGING_LEVEL, FRAMEGRAB_LOGGING_FORMAT")
	fmt.Println("#   etc.")
	fmt.Println("#")
	fmt.Println("")
	fmt.Print(string(yamlData))

	return nil
}
