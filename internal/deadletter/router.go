package deadletter

import (
	"strings"
	"time"

	"github.com/jittakal/replayintake/pkg/event"
	"github.com/jittakal/replayintake/pkg/storage"
)

var _ storage.Router = (*HiveRouter)(nil)

// HiveRouter builds Hive-style archive paths partitioned by category and day.
type HiveRouter struct {
	protocol string
	bucket   string
	basePath string
}

// NewRouter creates a router. Empty bucket or basePath segments are omitted.
func NewRouter(protocol, bucket, basePath string) *HiveRouter {
	return &HiveRouter{
		protocol: protocol,
		bucket:   strings.Trim(bucket, "/"),
		basePath: strings.Trim(basePath, "/"),
	}
}

// Route returns the archive directory for a category at the given Unix
// timestamp (seconds).
// Format: protocol://bucket/basePath/category/dt=YYYY-MM-DD/
func (r *HiveRouter) Route(category event.Category, timestamp int64) string {
	date := time.Unix(timestamp, 0).UTC().Format("2006-01-02")

	segments := make([]string, 0, 4)
	for _, s := range []string{r.bucket, r.basePath, string(category), "dt=" + date} {
		if s != "" {
			segments = append(segments, s)
		}
	}
	return r.protocol + "://" + strings.Join(segments, "/") + "/"
}

// objectKey strips the protocol and, for bucket-based backends, the bucket
// from a routed path.
func objectKey(path, protocol string, hasBucket bool) string {
	prefix := protocol + "://"
	if !strings.HasPrefix(path, prefix) {
		return strings.TrimPrefix(path, "/")
	}
	rest := strings.TrimPrefix(path, prefix)
	if !hasBucket {
		return rest
	}
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) < 2 {
		return ""
	}
	return parts[1]
}
