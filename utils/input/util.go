package input

import (
	"errors"
	"io/fs"
	"os"
)

// preCheckCache 确认缓存目录可用
// 参数：cacheDir-缓存目录路径，为空表示禁用缓存
// 返回：是否启用缓存
// 说明：目录不存在时自动创建，路径指向文件或无法创建时禁用缓存
func preCheckCache(cacheDir string) bool {
	if cacheDir == "" {
		log.Info("input cache disabled")
		return false
	}
	stat, err := os.Stat(cacheDir)
	switch {
	case err == nil && stat.IsDir():
	case errors.Is(err, fs.ErrNotExist):
		if err := os.MkdirAll(cacheDir, 0o755); err != nil {
			log.Errorf("input cache disabled: %v", err)
			return false
		}
		log.Infof("input cache dir %s created", cacheDir)
	default:
		log.Errorf("input cache disabled: %s is not a directory", cacheDir)
		return false
	}
	log.Infof("input cache enabled at %s", cacheDir)
	return true
}
