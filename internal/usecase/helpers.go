package usecase

import (
	"fmt"
	"strings"
	"time"

	"github.com/Yazan-Dev9/DataSafe/internal/domain"
)

const archiveTimeLayout = "2006-01-02-150405"

// ArchiveName returns the file name for an archive of the source called
// name, taken at t: <name>-<YYYY-MM-DD-HHMMSS><ext>.
func ArchiveName(name string, t time.Time, kind domain.CompressionKind) string {
	return fmt.Sprintf("%s-%s%s", domain.SafeName(name), t.Format(archiveTimeLayout), kind.Extension())
}

// ParseArchiveName reverses ArchiveName. The timestamp is read in the local
// time zone, matching how it was written.
func ParseArchiveName(filename string) (string, time.Time, domain.CompressionKind, error) {
	kind, ok := kindFromExtension(filename)
	if !ok {
		return "", time.Time{}, "", fmt.Errorf("unknown archive extension: %s", filename)
	}
	base := strings.TrimSuffix(filename, kind.Extension())

	// name, dash, timestamp
	if len(base) < len(archiveTimeLayout)+2 || base[len(base)-len(archiveTimeLayout)-1] != '-' {
		return "", time.Time{}, "", fmt.Errorf("invalid archive name format: %s", filename)
	}

	stamp := base[len(base)-len(archiveTimeLayout):]
	t, err := time.ParseInLocation(archiveTimeLayout, stamp, time.Local)
	if err != nil {
		return "", time.Time{}, "", fmt.Errorf("invalid archive timestamp in %s: %w", filename, err)
	}

	return base[:len(base)-len(archiveTimeLayout)-1], t, kind, nil
}

func kindFromExtension(filename string) (domain.CompressionKind, bool) {
	var best domain.CompressionKind
	for _, k := range domain.CompressionKinds {
		if strings.HasSuffix(filename, k.Extension()) && len(k.Extension()) > len(best.Extension()) {
			best = k
		}
	}
	return best, best != ""
}
