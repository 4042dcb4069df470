// Package mysql opens the MySQL connection pool shared by the job store and
// applies the schema migrations embedded from deploy/migrations.
package mysql
