package table

import (
	"github.com/go-jet/jet/v2/postgres"
)

var Users = newUsersTable("public", "users", "")

type usersTable struct {
	postgres.Table

	ID        postgres.ColumnInteger
	Username  postgres.ColumnString
	Password  postgres.ColumnString
	UserType  postgres.ColumnString
	IsAdmin   postgres.ColumnBool
	CreatedAt postgres.ColumnTimestampz
	UpdatedAt postgres.ColumnTimestampz

	AllColumns     postgres.ColumnList
	MutableColumns postgres.ColumnList
}

func newUsersTable(schemaName, tableName, alias string) *usersTable {
	var (
		IDColumn        = postgres.IntegerColumn("id")
		UsernameColumn  = postgres.StringColumn("username")
		PasswordColumn  = postgres.StringColumn("password")
		UserTypeColumn  = postgres.StringColumn("user_type")
		IsAdminColumn   = postgres.BoolColumn("is_admin")
		CreatedAtColumn = postgres.TimestampzColumn("created_at")
		UpdatedAtColumn = postgres.TimestampzColumn("updated_at")
		allColumns      = postgres.ColumnList{IDColumn, UsernameColumn, PasswordColumn, UserTypeColumn, IsAdminColumn, CreatedAtColumn, UpdatedAtColumn}
		mutableColumns  = postgres.ColumnList{UsernameColumn, PasswordColumn, UserTypeColumn, IsAdminColumn, CreatedAtColumn, UpdatedAtColumn}
	)

	return &usersTable{
		Table: postgres.NewTable(schemaName, tableName, alias, allColumns...),

		ID:        IDColumn,
		Username:  UsernameColumn,
		Password:  PasswordColumn,
		UserType:  UserTypeColumn,
		IsAdmin:   IsAdminColumn,
		CreatedAt: CreatedAtColumn,
		UpdatedAt: UpdatedAtColumn,

		AllColumns:     allColumns,
		MutableColumns: mutableColumns,
	}
}
