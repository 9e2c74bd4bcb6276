package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// JSONLSink writes one JSON-encoded Event per line to w, grounded on
// the teacher's events.log convention (one structured entry per line,
// append-only, safe to tail). Unlike the teacher's pipe-delimited
// legacy format, the line is full JSON — there is no external
// consumer depending on the older layout here.
type JSONLSink struct {
	mu  sync.Mutex
	w   io.Writer
	enc *json.Encoder
}

// NewJSONLSink wraps w.
func NewJSONLSink(w io.Writer) *JSONLSink {
	return &JSONLSink{w: w, enc: json.NewEncoder(w)}
}

func (s *JSONLSink) Handle(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enc.Encode(e); err != nil {
		fmt.Fprintf(s.w, `{"type":"sink_error","message":%q}`+"\n", err.Error())
	}
}

var _ Sink = (*JSONLSink)(nil)
