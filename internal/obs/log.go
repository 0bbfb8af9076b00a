// Package obs is the operational surface of the service: Prometheus metrics,
// build info, and the shared JSON-line logger that http, audit, and mail
// output all flow through.
package obs

import (
	"encoding/json"
	"log"
	"os"
	"sync"
)

var (
	loggerOnce sync.Once
	logger     *log.Logger
)

// Logger returns the process-wide line logger. All structured output shares
// it so the stream stays one JSON document per line.
func Logger() *log.Logger {
	loggerOnce.Do(func() {
		logger = log.New(os.Stdout, "", 0)
	})
	return logger
}

// LogLine marshals the entry and emits it as a single JSON line. An entry
// that cannot marshal is replaced with a fixed error line, never dropped
// silently.
func LogLine(entry map[string]any) {
	data, err := json.Marshal(entry)
	if err != nil {
		Logger().Println(`{"level":"error","msg":"unloggable entry"}`)
		return
	}
	Logger().Println(string(data))
}
