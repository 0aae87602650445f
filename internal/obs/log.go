package obs

import (
	"encoding/json"
	"log"
	"os"
	"sync"
	"time"
)

var (
	loggerOnce sync.Once
	logger     *log.Logger
)

// Logger returns the process-wide stdout logger. Lines are pre-formatted
// JSON, so the stdlib logger runs with no prefix or flags of its own.
func Logger() *log.Logger {
	loggerOnce.Do(func() {
		logger = log.New(os.Stdout, "", 0)
	})
	return logger
}

// Event emits one JSON log line stamped with the event name and UTC time.
// Caller fields are merged in; ts and event always come from the stamp.
func Event(name string, fields map[string]any) {
	entry := make(map[string]any, len(fields)+2)
	for k, v := range fields {
		entry[k] = v
	}
	entry["ts"] = time.Now().UTC().Format(time.RFC3339Nano)
	entry["event"] = name

	data, err := json.Marshal(entry)
	if err != nil {
		Logger().Printf(`{"event":"log_error","error":"marshal failed","source":%q}`, name)
		return
	}
	Logger().Println(string(data))
}
