// Package config loads runtime configuration for the zelebiz client.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional config file selected with -c or -config. Files ending in
//     .yaml/.yml are YAML, anything else JSON.
//  3. Command-line flags (see parseFlags), which override earlier values.
//
// Supported flags
//
//	-a string   address:port of the sync server gRPC endpoint
//	-i int      online status check interval (seconds)
//	-d string   path of the local database, "" keeps state in memory
//	-t string   transport, grpc or http
//	-u string   base URL of the REST gateway
//
// # File schema
//
// Durations use timex.Duration, so they may be strings like "3s" or integer
// nanoseconds. Keys left out of the file keep their default:
//
//	server_endpoint_addr: 127.0.0.1:50051
//	transport: grpc
//	sync_interval: 30s
//	max_attempts: 5
//	archive_synced: true
package config
