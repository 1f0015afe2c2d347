// Package models contains the persistent types of the federation node
// and the repositories that manage them.
package models

// AllTables returns a slice of all tables in the database.
func AllTables() []interface{} {
	return []interface{}{
		&Actor{},
		&Account{},
		&Note{},
		&Follow{},
		&Activity{},
	}
}
