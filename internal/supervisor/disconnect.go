package supervisor

import (
	"context"
	"time"

	"github.com/metanoia-oss/wingman/internal/fsstore"
)

// The last disconnect time is the one durable fact the supervisor keeps. It
// is read once at startup and written at each disconnect, so a freshly
// restarted process still honors the quiescent floor and does not hammer the
// remote endpoint.
type disconnectRecord struct {
	LastDisconnectAt time.Time `json:"last_disconnect_at"`
}

func loadLastDisconnect(path string) (time.Time, error) {
	if path == "" {
		return time.Time{}, nil
	}
	var rec disconnectRecord
	found, err := fsstore.ReadJSON(path, &rec)
	if err != nil || !found {
		return time.Time{}, err
	}
	return rec.LastDisconnectAt, nil
}

func storeLastDisconnect(path string, at time.Time) error {
	if path == "" {
		return nil
	}
	return fsstore.WithLock(context.Background(), path+".lck", func() error {
		return fsstore.WriteJSONAtomic(path, disconnectRecord{LastDisconnectAt: at.UTC()}, fsstore.FileOptions{})
	})
}
