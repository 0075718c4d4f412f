package config

import (
	"os"
	"path/filepath"
)

const (
	// EnvDataDir 数据目录环境变量名
	EnvDataDir = "NLQ_DATA_DIR"
	// dataDirName XDG 数据目录下的子目录名
	dataDirName = "nlq"
	// fallbackDataDir 无法确定主目录时使用的相对目录
	fallbackDataDir = ".nlq"
	// auditDBName 审计库文件名
	auditDBName = "nlq.db"
)

// DataDir 本地数据根目录
// 依次取 NLQ_DATA_DIR、$XDG_DATA_HOME/nlq、~/.local/share/nlq
func DataDir() string {
	if dir := os.Getenv(EnvDataDir); dir != "" {
		return dir
	}
	if xdg := os.Getenv("XDG_DATA_HOME"); filepath.IsAbs(xdg) {
		return filepath.Join(xdg, dataDirName)
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return fallbackDataDir
	}
	return filepath.Join(home, ".local", "share", dataDirName)
}
