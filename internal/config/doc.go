// Package config 负责加载 WalletFleet 的运行配置：JSON/YAML 文件、带 WALLETFLEET_
// 前缀的环境变量覆盖以及各组件的默认值。
package config
