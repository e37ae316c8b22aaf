// Package appfs exposes the app's embedded static assets.
package appfs

import "embed"

//go:embed migrations/*.sql
var FS embed.FS
