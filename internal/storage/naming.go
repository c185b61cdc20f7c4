package storage

import (
	"fmt"
	"os"
	"time"
)

// NextOutputPath suffixes base with ".YYYYMMDDhhmmss.N", where N is the
// smallest positive integer producing a path that does not already exist
// (spec §4.6 "File naming").
func NextOutputPath(base string, now time.Time) (string, error) {
	stamp := now.Format("20060102150405")
	for n := 1; n < 1_000_000; n++ {
		candidate := fmt.Sprintf("%s.%s.%d", base, stamp, n)
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate, nil
		} else if err != nil {
			return "", err
		}
	}
	return "", fmt.Errorf("storage: could not find unused path for %s", base)
}
