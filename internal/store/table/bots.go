// Package table declares the go-jet models of the postgres schema in
// internal/database/migrations/postgres.
package table

import (
	"github.com/go-jet/jet/v2/postgres"
)

var Bots = newBotsTable("public", "bots", "")

type botsTable struct {
	postgres.Table

	ID            postgres.ColumnInteger
	BotID         postgres.ColumnString
	HomeserverURL postgres.ColumnString
	AccountID     postgres.ColumnString
	AccountSecret postgres.ColumnString
	UpstreamURL   postgres.ColumnString
	Status        postgres.ColumnString
	CreatedAt     postgres.ColumnTimestampz
	UpdatedAt     postgres.ColumnTimestampz

	AllColumns     postgres.ColumnList
	MutableColumns postgres.ColumnList
}

func newBotsTable(schemaName, tableName, alias string) *botsTable {
	var (
		IDColumn            = postgres.IntegerColumn("id")
		BotIDColumn         = postgres.StringColumn("bot_id")
		HomeserverURLColumn = postgres.StringColumn("homeserver_url")
		AccountIDColumn     = postgres.StringColumn("account_id")
		AccountSecretColumn = postgres.StringColumn("account_secret")
		UpstreamURLColumn   = postgres.StringColumn("upstream_url")
		StatusColumn        = postgres.StringColumn("status")
		CreatedAtColumn     = postgres.TimestampzColumn("created_at")
		UpdatedAtColumn     = postgres.TimestampzColumn("updated_at")
		allColumns          = postgres.ColumnList{IDColumn, BotIDColumn, HomeserverURLColumn, AccountIDColumn, AccountSecretColumn, UpstreamURLColumn, StatusColumn, CreatedAtColumn, UpdatedAtColumn}
		mutableColumns      = postgres.ColumnList{BotIDColumn, HomeserverURLColumn, AccountIDColumn, AccountSecretColumn, UpstreamURLColumn, StatusColumn, CreatedAtColumn, UpdatedAtColumn}
	)

	return &botsTable{
		Table: postgres.NewTable(schemaName, tableName, alias, allColumns...),

		ID:            IDColumn,
		BotID:         BotIDColumn,
		HomeserverURL: HomeserverURLColumn,
		AccountID:     AccountIDColumn,
		AccountSecret: AccountSecretColumn,
		UpstreamURL:   UpstreamURLColumn,
		Status:        StatusColumn,
		CreatedAt:     CreatedAtColumn,
		UpdatedAt:     UpdatedAtColumn,

		AllColumns:     allColumns,
		MutableColumns: mutableColumns,
	}
}
