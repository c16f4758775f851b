package service

import (
	"context"
	"io"
	"log/slog"
	"time"
)

// UseCaseEvent describes one TodoService call and the ChangeSet it
// produced. TodoID is empty for snapshot reads and upserts; Records is the
// size of an upsert request.
type UseCaseEvent struct {
	Name      string
	TodoID    string
	Records   int
	Upserted  int
	Deleted   int
	StartedAt time.Time
	Duration  time.Duration
	Err       error
}

func (e UseCaseEvent) Success() bool { return e.Err == nil }

type UseCaseObserver interface {
	ObserveUseCase(ctx context.Context, event UseCaseEvent)
}

type NoopUseCaseObserver struct{}

func (NoopUseCaseObserver) ObserveUseCase(context.Context, UseCaseEvent) {}

type logUseCaseObserver struct {
	logger *slog.Logger
}

// NewLogUseCaseObserver writes events to w as slog text at info level.
func NewLogUseCaseObserver(w io.Writer) UseCaseObserver {
	if w == nil {
		return NoopUseCaseObserver{}
	}
	return NewSlogUseCaseObserver(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo})))
}

// NewSlogUseCaseObserver writes events to logger, failures at error level
// and the rest at info.
func NewSlogUseCaseObserver(logger *slog.Logger) UseCaseObserver {
	if logger == nil {
		return NoopUseCaseObserver{}
	}
	return &logUseCaseObserver{logger: logger}
}

func (o *logUseCaseObserver) ObserveUseCase(ctx context.Context, event UseCaseEvent) {
	attrs := []slog.Attr{
		slog.String("use_case", event.Name),
		slog.Int64("duration_ms", event.Duration.Milliseconds()),
		slog.Bool("success", event.Success()),
	}
	if event.TodoID != "" {
		attrs = append(attrs, slog.String("todo_id", event.TodoID))
	}
	if event.Records > 0 {
		attrs = append(attrs, slog.Int("records", event.Records))
	}
	attrs = append(attrs, slog.Group("change",
		slog.Int("upserted", event.Upserted),
		slog.Int("deleted", event.Deleted),
	))

	level := slog.LevelInfo
	if event.Err != nil {
		attrs = append(attrs, slog.String("error", event.Err.Error()))
		level = slog.LevelError
	}
	o.logger.LogAttrs(ctx, level, "todo_use_case", attrs...)
}
