// Package configs ships the default engine configuration.
package configs

import _ "embed"

//go:embed engine.yaml
var Engine []byte
