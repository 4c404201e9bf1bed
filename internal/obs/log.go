package obs

import (
	"encoding/json"
	"log"
	"os"
	"sync"
	"time"
)

const serviceName = "accessgov-api"

var (
	lineOnce sync.Once
	lineOut  *log.Logger
)

// accessLogger is the process-wide line writer: one JSON object per line
// on stdout, timestamps and routing left to the collector.
func accessLogger() *log.Logger {
	lineOnce.Do(func() {
		lineOut = log.New(os.Stdout, "", 0)
	})
	return lineOut
}

// LogRequest emits one access-log line. Callers pass whatever fields they
// have; absent fields stay absent, and the service tag is always stamped.
func LogRequest(fields map[string]any) {
	if _, ok := fields["service"]; !ok {
		fields["service"] = serviceName
	}
	line, err := json.Marshal(fields)
	if err != nil {
		accessLogger().Printf(`{"service":%q,"level":"error","msg":"access log marshal failed","ts":%q}`,
			serviceName, time.Now().UTC().Format(time.RFC3339))
		return
	}
	accessLogger().Println(string(line))
}
