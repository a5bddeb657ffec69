// Command tabula serves back-office ledgers: filtered, sorted and totalled
// views over records from JSON files, SQLite tables or inline data, with CSV
// and XLSX export.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
