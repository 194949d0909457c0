package util

const gib = 1024 * 1024 * 1024

// MinFreeGB is the free space below which new downloads are refused.
const MinFreeGB = 1.0

type DiskSpaceInfo struct {
	AvailGB float64
	TotalGB float64
	UsedGB  float64
}

// GetDiskSpace reports usage of the filesystem that holds path.
func GetDiskSpace(path string) (DiskSpaceInfo, error) {
	avail, total, err := freeBytes(path)
	if err != nil {
		return DiskSpaceInfo{}, err
	}
	availGB := float64(avail) / gib
	totalGB := float64(total) / gib
	return DiskSpaceInfo{
		AvailGB: availGB,
		TotalGB: totalGB,
		UsedGB:  totalGB - availGB,
	}, nil
}

// HasFreeSpace reports whether the filesystem holding dir has at least
// MinFreeGB available. Errors reading the filesystem count as enough space.
func HasFreeSpace(dir string) bool {
	info, err := GetDiskSpace(dir)
	if err != nil {
		return true
	}
	return info.AvailGB >= MinFreeGB
}
