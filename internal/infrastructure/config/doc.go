// Package config handles loading and validating Guard Imoto Core configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Loading an optional .env file for local development
//   - Overriding with GUARDIMOTO_* environment variables
//   - Validation of required fields
//
// Security Considerations:
//   - security.device_secret is the key every device credential is derived
//     from; set it via GUARDIMOTO_DEVICE_SECRET, never commit it
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Service.Name)
package config
