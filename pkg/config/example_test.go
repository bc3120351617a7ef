package config_test

import (
	"fmt"
	"log"

	"github.com/ajitpratap0/bytesmap/pkg/config"
)

// ExampleDefault demonstrates creating a configuration with default values.
func ExampleDefault() {
	cfg := config.Default("distinct-users")

	fmt.Printf("Batch Size: %d\n", cfg.Pipeline.BatchSize)
	fmt.Printf("Spill Compression: %s\n", cfg.Spill.Compression)
	fmt.Printf("Initial Capacity: %d\n", cfg.Map.InitialCapacity)

	// Output:
	// Batch Size: 65536
	// Spill Compression: zstd
	// Initial Capacity: 128
}

// ExampleConfig_Validate shows how to validate a configuration before use.
func ExampleConfig_Validate() {
	cfg := config.Default("distinct-users")
	if err := cfg.Validate(); err != nil {
		fmt.Println(err)
	}

	cfg.Input.Column = "user_id"
	cfg.Pipeline.Partitions = 8
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	fmt.Println("Configuration is valid!")

	// Output:
	// config: input column is required
	// Configuration is valid!
}
