// Command gridlake ingests delimited files into columnar tables and keeps
// the query service's table and view definitions in step with them.
package main

import (
	"os"
)

var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

func main() {
	os.Exit(execute(os.Args[1:]))
}
