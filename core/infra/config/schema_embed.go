package config

import "embed"

const edgeSchemaFile = "schema/edge.schema.json"

//go:embed schema/*.json
var configSchemaFS embed.FS
