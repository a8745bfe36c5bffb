package monitor

import "VolPulse/internal/domain/models"

// sampleWindow is a duration-bounded series of timed samples. Trimming
// happens from the oldest end after every insert.
type sampleWindow struct {
	retention float64 // seconds
	samples   []models.TimedSample
}

func newSampleWindow(retentionSec float64) *sampleWindow {
	return &sampleWindow{retention: retentionSec}
}

func (w *sampleWindow) add(ts, value float64) {
	w.samples = append(w.samples, models.TimedSample{TS: ts, Value: value})
	cutoff := ts - w.retention
	i := 0
	for i < len(w.samples) && w.samples[i].TS < cutoff {
		i++
	}
	if i > 0 {
		w.samples = w.samples[i:]
	}
}

// changeOver compares the earliest sample at or after now-windowSec with
// the latest sample. Nil when the window lacks a sample in range or the
// earliest value is zero.
func (w *sampleWindow) changeOver(nowTS, windowSec float64) *float64 {
	if len(w.samples) == 0 {
		return nil
	}
	cutoff := nowTS - windowSec
	var earliest *float64
	for _, s := range w.samples {
		if s.TS >= cutoff {
			v := s.Value
			earliest = &v
			break
		}
	}
	if earliest == nil || *earliest == 0 {
		return nil
	}
	latest := w.samples[len(w.samples)-1].Value
	change := (latest - *earliest) / *earliest
	return &change
}
