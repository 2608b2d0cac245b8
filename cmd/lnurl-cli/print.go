package main

import (
	"encoding/json"
	"io"
	"os"
)

// stdout receives the flow results, logging goes to stderr.
var stdout io.Writer = os.Stdout

func printJSON(v any) error {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "    ")

	return enc.Encode(v)
}
