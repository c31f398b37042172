package ui

import (
	"encoding/json"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Dicklesworthstone/hwdash/internal/model"
)

type streamRecord struct {
	TS        time.Time `json:"ts"`
	Key       string    `json:"key"`
	Value     *float64  `json:"value"`
	Condition string    `json:"condition"`
	Label     string    `json:"label,omitempty"`
}

// JSONStream writes one JSON object per emission, for piping into other
// tools instead of drawing the dashboard.
type JSONStream struct {
	mu  sync.Mutex
	enc *json.Encoder
	log *zap.Logger
}

func NewJSONStream(w io.Writer, log *zap.Logger) *JSONStream {
	if log == nil {
		log = zap.NewNop()
	}
	return &JSONStream{enc: json.NewEncoder(w), log: log}
}

func (s *JSONStream) Emit(e model.Emission) {
	rec := streamRecord{TS: e.At, Key: e.Key, Condition: e.Reading.Cond.String(), Label: e.Label}
	if e.Reading.Valid() {
		v := e.Reading.Value
		rec.Value = &v
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enc.Encode(rec); err != nil {
		s.log.Warn("json stream write", zap.Error(err))
	}
}
