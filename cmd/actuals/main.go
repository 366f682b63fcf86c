/*
main.go - Application entry point

PURPOSE:
  The actuals CLI. Runs the HTTP server and offers the calendar
  calculations (working days, leave hours) from the command line.

COMMANDS:
  serve                         Start the HTTP API
  workdays START END            Count working days in an inclusive range
  leave-hours START END --type  Derive leave hours for a range

CONFIGURATION:
  Defaults, then the optional --config YAML file, then ACTUALS_* env vars,
  then flags. See config/config.go for the keys.

EXAMPLES:
  # Run with file database
  actuals serve --db ./data/actuals.db

  # Run with in-memory database on another port
  actuals serve --db :memory: --port 3000

  # Working days, skipping holidays served by a running instance
  actuals workdays 2025-01-06 2025-01-17 --holidays-from http://localhost:8080

SEE ALSO:
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
