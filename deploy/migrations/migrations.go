// Package migrations 内嵌 MySQL 作业存储的建表脚本。
package migrations

import "embed"

// Files 按文件名前缀的版本号执行，例如 0001_create_fleet_jobs.sql。
//
//go:embed *.sql
var Files embed.FS
