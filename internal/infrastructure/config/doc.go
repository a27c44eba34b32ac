// Package config handles loading and validating graychat configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of present values
//   - Default value handling
//
// Security Considerations:
//   - The passphrase and broker password should be set via environment
//     variables (GRAYCHAT_PASSPHRASE, GRAYCHAT_MQTT_PASSWORD) or typed at the
//     prompt rather than stored in the file
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.MQTT.Broker.Host)
package config
