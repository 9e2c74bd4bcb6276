package report

import (
	"fmt"
	"io"
	"sync"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

// DiagSink renders events to a human-readable diagnostic stream (not
// standard output, per §4.7): per-entity and per-relationship progress
// bars via mpb, plus color-coded one-line messages for phase changes
// and session boundaries, in the spirit of the teacher's color-coded
// `bd log` line formatting. A relationship's bar never overwrites its
// entity's bar — each gets its own line, tracked by a distinct map key.
type DiagSink struct {
	mu       sync.Mutex
	w        io.Writer
	progress *mpb.Progress
	bars     map[string]*mpb.Bar
}

// NewDiagSink wraps w (typically stderr, or a dedicated diagnostic
// file descriptor — never stdout, which is reserved for the CLI's
// final structured summary).
func NewDiagSink(w io.Writer) *DiagSink {
	return &DiagSink{
		w:        w,
		progress: mpb.New(mpb.WithOutput(w), mpb.WithAutoRefresh()),
		bars:     make(map[string]*mpb.Bar),
	}
}

const (
	colorCyan   = "\033[36m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorRed    = "\033[31m"
	colorReset  = "\033[0m"
)

func (s *DiagSink) Handle(e Event) {
	switch e.Type {
	case EventStart:
		fmt.Fprintf(s.w, "%s[start]%s %s\n", colorCyan, colorReset, e.Message)
	case EventPhaseChange:
		fmt.Fprintf(s.w, "%s[phase]%s %s\n", colorYellow, colorReset, e.Phase)
	case EventEntityProgress:
		s.bar("entity:"+e.Entity, e.Entity, e.Current, e.Total)
	case EventRelationshipProgress:
		s.bar("rel:"+e.Relationship, e.Relationship, e.Current, e.Total)
	case EventEntityComplete:
		s.complete("entity:" + e.Entity)
		fmt.Fprintf(s.w, "%s[done]%s %s ok=%d failed=%d\n", colorGreen, colorReset, e.Entity, e.OK, e.Failed)
	case EventEnd:
		fmt.Fprintf(s.w, "%s[end]%s %s\n", colorGreen, colorReset, e.Message)
		s.progress.Wait()
	case EventCancelled:
		fmt.Fprintf(s.w, "%s[cancelled]%s %s\n", colorRed, colorReset, e.Message)
		s.progress.Wait()
	}
}

func (s *DiagSink) bar(key, label string, current, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bars[key]
	if !ok {
		if total <= 0 {
			total = 1
		}
		b = s.progress.AddBar(int64(total),
			mpb.PrependDecorators(decor.Name(label)),
			mpb.AppendDecorators(decor.Percentage()),
		)
		s.bars[key] = b
	}
	b.SetCurrent(int64(current))
}

func (s *DiagSink) complete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.bars[key]; ok {
		b.SetCurrent(b.Current())
		b.Abort(false)
	}
}

var _ Sink = (*DiagSink)(nil)
