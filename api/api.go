// Package api holds the OpenAPI document of the load runner
package api

import (
	_ "embed"
)

//go:embed runner.yaml
var RunnerDocument []byte
