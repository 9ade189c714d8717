package logging

import (
	"fmt"
	"os"
)

// Fatal and Fatalf are for process bootstrap only. Library code returns errors.

func (log *Logger) Fatal(v ...interface{}) {
	log.Log(Error, 1, "%s", fmt.Sprint(v...))
	os.Exit(1)
}

func (log *Logger) Fatalf(format string, v ...interface{}) {
	log.Log(Error, 1, format, v...)
	os.Exit(1)
}
