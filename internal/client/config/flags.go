package config

import (
	"flag"
	"os"
	"time"

	"github.com/zelebiz/zelebiz/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   address and port of the sync server gRPC endpoint
//	-i int      online check interval in seconds
//	-d string   local database path
//	-t string   transport (grpc|http)
//	-u string   REST gateway base URL
//
// os.Args is filtered with flagx.FilterArgs first so flags owned by other
// components do not trip the parser.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-i", "-d", "-t", "-u"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.ServerEndpointAddr, "a", cfg.ServerEndpointAddr, "address and port to access server")
	onlineCheckInterval := fs.Int("i", int(cfg.OnlineCheckInterval.Seconds()), "online check interval (in seconds)")
	fs.StringVar(&cfg.DatabasePath, "d", cfg.DatabasePath, "local database path")
	fs.StringVar(&cfg.Transport, "t", cfg.Transport, "transport: grpc or http")
	fs.StringVar(&cfg.HTTPBaseURL, "u", cfg.HTTPBaseURL, "REST gateway base URL")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.OnlineCheckInterval = time.Duration(*onlineCheckInterval) * time.Second
}
