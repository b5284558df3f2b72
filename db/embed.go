// Package db embeds the order ledger schema.
package db

import _ "embed"

// Schema holds the DDL of the order ledger. Every statement is idempotent.
//
//go:embed migrations/001_checkout_orders.sql
var Schema string
