package results

import (
	"context"

	"github.com/mcdev12/mindgames/go/internal/telemetry"
)

// Saver persists a summary. *Store is the production implementation.
type Saver interface {
	Save(ctx context.Context, sum Summary) error
}

// Writer is a telemetry.Writer that saves a summary for every SessionEnded
// event and ignores everything else.
type Writer struct {
	saver Saver
}

func NewWriter(saver Saver) *Writer {
	return &Writer{saver: saver}
}

func (w *Writer) Write(ctx context.Context, e telemetry.Event) error {
	if e.Type != telemetry.EventTypeSessionEnded {
		return nil
	}
	sum, err := SummaryFromEvent(e)
	if err != nil {
		return err
	}
	return w.saver.Save(ctx, sum)
}
