// Package config handles loading and validating mqttlink configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables (MQTTLINK_*)
//   - Validation of required fields and MQTT buffer limits
//   - Default value handling
//
// Security Considerations:
//   - Broker passwords, InfluxDB tokens and the JWT secret should be set via
//     environment variables rather than committed to the file
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/mqttlink.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.MQTT.Broker.Host)
package config
