// Package api 暴露钱包集群的 REST 接口：钱包创建与查询、批量出资与归集、批量交易以及异步作业。
package api
