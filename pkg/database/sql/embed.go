package sql

import (
	"embed"
)

// Content holds the schema files applied in lexical order.
//
//go:embed schema/*.sql
var Content embed.FS
