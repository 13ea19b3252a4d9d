// Package db ships the SQL migrations inside the binaries.
package db

import "embed"

//go:embed migrations/*.sql
var Migrations embed.FS
