package events

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/pterm/pterm"
	"github.com/ternarybob/calbuddy/internal/interfaces"
	"github.com/ternarybob/calbuddy/internal/models"
)

// ProgressBar renders run progress as a terminal progress bar. One bar is
// shown per run id; it stops when the run's last job completes.
type ProgressBar struct {
	mu       sync.Mutex
	writer   io.Writer
	bar      *pterm.ProgressbarPrinter
	runID    string
	shown    int
	finished map[string]bool
}

// NewProgressBar creates a bar writing to writer (os.Stdout when nil)
func NewProgressBar(writer io.Writer) *ProgressBar {
	return &ProgressBar{
		writer:   writer,
		finished: make(map[string]bool),
	}
}

// Subscribe attaches the bar to progress and run completion events
func (p *ProgressBar) Subscribe(eventService interfaces.EventService) error {
	if err := eventService.Subscribe(interfaces.EventProgress, p.onProgress); err != nil {
		return fmt.Errorf("failed to subscribe progress bar: %w", err)
	}
	if err := eventService.Subscribe(interfaces.EventRunCompleted, p.onRunCompleted); err != nil {
		return fmt.Errorf("failed to subscribe progress bar: %w", err)
	}
	return nil
}

func (p *ProgressBar) onProgress(ctx context.Context, event interfaces.Event) error {
	snapshot, ok := event.Payload.(models.ProgressSnapshot)
	if !ok || snapshot.Total <= 0 {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.finished[snapshot.RunID] {
		return nil
	}

	if p.bar == nil || p.runID != snapshot.RunID {
		if err := p.start(snapshot); err != nil {
			return err
		}
	}

	// Snapshots are delivered concurrently and may arrive out of order
	if snapshot.Completed > p.shown {
		p.bar.Add(snapshot.Completed - p.shown)
		p.shown = snapshot.Completed
	}
	p.bar.UpdateTitle(barTitle(snapshot))

	if snapshot.Completed >= snapshot.Total {
		p.stop()
		p.finished[snapshot.RunID] = true
	}
	return nil
}

func (p *ProgressBar) onRunCompleted(ctx context.Context, event interfaces.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.bar != nil {
		p.finished[p.runID] = true
		p.stop()
	}
	return nil
}

func (p *ProgressBar) start(snapshot models.ProgressSnapshot) error {
	p.stop()

	printer := pterm.DefaultProgressbar.
		WithTotal(snapshot.Total).
		WithTitle(barTitle(snapshot)).
		WithShowElapsedTime(true)
	if p.writer != nil {
		printer = printer.WithWriter(p.writer)
	}

	bar, err := printer.Start()
	if err != nil {
		return fmt.Errorf("failed to start progress bar: %w", err)
	}

	p.bar = bar
	p.runID = snapshot.RunID
	p.shown = 0
	return nil
}

func (p *ProgressBar) stop() {
	if p.bar == nil {
		return
	}
	p.bar.Stop()
	p.bar = nil
}

// Shown returns the completed count last drawn
func (p *ProgressBar) Shown() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.shown
}

// Active reports whether a bar is currently drawn
func (p *ProgressBar) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bar != nil
}

func barTitle(snapshot models.ProgressSnapshot) string {
	if snapshot.Completed == 0 {
		return fmt.Sprintf("Collecting %d jobs", snapshot.Total)
	}
	eta := time.Duration(snapshot.ETASeconds * float64(time.Second)).Round(time.Second)
	return fmt.Sprintf("Collecting jobs | %.2fs/job | ETA %s", snapshot.SecPerJob, eta)
}
