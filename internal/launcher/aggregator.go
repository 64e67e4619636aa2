package launcher

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// AggregatorLogName is the shared log all run-plan invocations append to.
const AggregatorLogName = "aggregator.log"

// aggregatorLog appends "[time] [worker] message" lines to the shared
// aggregator log and mirrors them to stdout.
type aggregatorLog struct {
	f io.WriteCloser
}

func newAggregatorLog(logDir string) *aggregatorLog {
	f, err := os.OpenFile(filepath.Join(logDir, AggregatorLogName), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return &aggregatorLog{}
	}
	return &aggregatorLog{f: f}
}

func (a *aggregatorLog) Printf(worker, format string, args ...any) {
	line := fmt.Sprintf("[%s] [%s] %s\n",
		time.Now().Format("2006-01-02 15:04:05"), worker, fmt.Sprintf(format, args...))
	fmt.Print(line)
	if a.f != nil {
		_, _ = io.WriteString(a.f, line)
	}
}

func (a *aggregatorLog) Close() {
	if a.f != nil {
		_ = a.f.Close()
	}
}
