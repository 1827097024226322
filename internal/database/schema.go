package database

import _ "embed"

// Schema is the DDL the queries in this package expect.
//
//go:embed schema.sql
var Schema string
