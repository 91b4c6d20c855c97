package storage

import (
	"os"
	"path/filepath"
)

// DiskUsage reports the on-disk size of each named storage path and their total.
// Each path may be a file or a directory (recursively summed). Missing paths
// count as zero; other stat or walk errors are returned.
func DiskUsage(paths map[string]string) (map[string]int64, int64, error) {
	sizes := make(map[string]int64, len(paths))
	var total int64
	for name, p := range paths {
		n, err := pathSize(p)
		if err != nil {
			return nil, 0, err
		}
		sizes[name] = n
		total += n
	}
	return sizes, total, nil
}

func pathSize(p string) (int64, error) {
	if p == "" {
		return 0, nil
	}
	info, err := os.Stat(p)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	if !info.IsDir() {
		return info.Size(), nil
	}
	var total int64
	err = filepath.WalkDir(p, func(_ string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		total += fi.Size()
		return nil
	})
	return total, err
}
