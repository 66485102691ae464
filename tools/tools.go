//go:build tools
// +build tools

// Pins dev tooling versions (oapi-codegen) into go.mod so local
// and CI runs generate identical output. Excluded from normal
// builds by the 'tools' build tag above.

package tools

import (
	_ "github.com/oapi-codegen/oapi-codegen/v2/cmd/oapi-codegen"
)