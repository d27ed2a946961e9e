package worker

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/hibiken/asynq"
)

// slogAdapter routes asynq's server logs into the structured logger.
type slogAdapter struct {
	log *slog.Logger
}

func NewAsynqLogger(log *slog.Logger) asynq.Logger {
	return slogAdapter{log: log.With("component", "asynq")}
}

func (a slogAdapter) Debug(args ...interface{}) { a.log.Debug(fmt.Sprint(args...)) }
func (a slogAdapter) Info(args ...interface{})  { a.log.Info(fmt.Sprint(args...)) }
func (a slogAdapter) Warn(args ...interface{})  { a.log.Warn(fmt.Sprint(args...)) }
func (a slogAdapter) Error(args ...interface{}) { a.log.Error(fmt.Sprint(args...)) }

func (a slogAdapter) Fatal(args ...interface{}) {
	a.log.Error(fmt.Sprint(args...), "fatal", true)
	os.Exit(1)
}
