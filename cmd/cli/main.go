// TrafficLog - roadside traffic telemetry logger.
//
// TrafficLog reads speed events, count events and count summaries from a
// traffic controller and stores them in SQLite and NATS.
package main

import (
	"context"
	"os"

	"github.com/ccollicutt/trafficlog/internal/cli"
)

func main() {
	os.Exit(cli.Execute(context.Background()))
}
