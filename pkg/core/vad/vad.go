// Package vad implements the energy-based audio activity detector that
// segments a continuous caller stream into utterances. The detector
// calibrates a noise floor from the opening frames of a call, then opens
// an utterance when frame energy rises above floor+margin and closes it
// after a run of trailing silence.
package vad

import (
	"time"

	"github.com/clearline-ai/clearline/pkg/core/audio"
)

// Result indicates the outcome of processing one frame.
type Result int

const (
	// ResultCalibrating means the frame was consumed by noise-floor
	// calibration.
	ResultCalibrating Result = iota
	// ResultSilence means no speech is in progress.
	ResultSilence
	// ResultSpeech means an utterance is being recorded.
	ResultSpeech
	// ResultUtterance means an utterance just closed and is ready for
	// transcription (or marks a turn boundary in streaming mode).
	ResultUtterance
	// ResultDiscarded means an utterance closed but was too short to be
	// worth transcribing.
	ResultDiscarded
)

// String returns a human-readable result name.
func (r Result) String() string {
	switch r {
	case ResultCalibrating:
		return "CALIBRATING"
	case ResultSilence:
		return "SILENCE"
	case ResultSpeech:
		return "SPEECH"
	case ResultUtterance:
		return "UTTERANCE"
	case ResultDiscarded:
		return "DISCARDED"
	default:
		return "UNKNOWN"
	}
}

// Config holds the detector tunables. The defaults are empirical; deploys
// tune them per line quality through gateway configuration.
type Config struct {
	// CalibrationFrames is how many opening frames form the noise-floor
	// estimate. Default: 50.
	CalibrationFrames int `json:"calibration_frames"`

	// EnergyMargin is added to the calibrated floor to form the speech
	// threshold, in normalized 0..1 energy units. Default: 0.01.
	EnergyMargin float64 `json:"energy_margin"`

	// SilenceDuration is how long energy must stay at or below the
	// threshold before an open utterance closes. Default: 600ms.
	SilenceDuration time.Duration `json:"silence_duration"`

	// MinUtteranceDuration discards utterances shorter than this so
	// breaths and line noise never reach the transcription client.
	// Default: 200ms.
	MinUtteranceDuration time.Duration `json:"min_utterance_duration"`
}

// DefaultConfig returns detector defaults tuned for 20ms telephony frames.
func DefaultConfig() Config {
	return Config{
		CalibrationFrames:    50,
		EnergyMargin:         0.01,
		SilenceDuration:      600 * time.Millisecond,
		MinUtteranceDuration: 200 * time.Millisecond,
	}
}

// Detector segments one call's mu-law frame stream. It is owned by a
// single session goroutine and is not safe for concurrent use.
type Detector struct {
	cfg Config

	calibrationSum    float64
	calibrationFrames int
	noiseFloor        float64
	threshold         float64
	calibrated        bool

	recording   bool
	lastSpeech  time.Time
	buffer      []byte
	speechBytes int
}

// New creates a detector. Zero-valued config fields fall back to defaults.
func New(cfg Config) *Detector {
	def := DefaultConfig()
	if cfg.CalibrationFrames <= 0 {
		cfg.CalibrationFrames = def.CalibrationFrames
	}
	if cfg.EnergyMargin <= 0 {
		cfg.EnergyMargin = def.EnergyMargin
	}
	if cfg.SilenceDuration <= 0 {
		cfg.SilenceDuration = def.SilenceDuration
	}
	if cfg.MinUtteranceDuration <= 0 {
		cfg.MinUtteranceDuration = def.MinUtteranceDuration
	}
	return &Detector{cfg: cfg}
}

// Process feeds one inbound mu-law frame. When the return value is
// ResultUtterance, utterance holds the full mu-law audio of the closed
// utterance, trailing silence included.
func (d *Detector) Process(frame []byte, now time.Time) (result Result, utterance []byte) {
	if len(frame) == 0 {
		if d.recording {
			return ResultSpeech, nil
		}
		return ResultSilence, nil
	}

	energy := audio.FrameEnergy(frame)

	if !d.calibrated {
		d.calibrationSum += energy
		d.calibrationFrames++
		if d.calibrationFrames >= d.cfg.CalibrationFrames {
			d.noiseFloor = d.calibrationSum / float64(d.calibrationFrames)
			d.threshold = d.noiseFloor + d.cfg.EnergyMargin
			d.calibrated = true
		}
		return ResultCalibrating, nil
	}

	if energy > d.threshold {
		if !d.recording {
			// Speech edge: open a fresh utterance.
			d.recording = true
			d.buffer = d.buffer[:0]
			d.speechBytes = 0
		}
		d.lastSpeech = now
		d.buffer = append(d.buffer, frame...)
		d.speechBytes += len(frame)
		return ResultSpeech, nil
	}

	if !d.recording {
		return ResultSilence, nil
	}

	// Trailing silence is kept; it carries the utterance's natural decay.
	d.buffer = append(d.buffer, frame...)
	if now.Sub(d.lastSpeech) <= d.cfg.SilenceDuration {
		return ResultSpeech, nil
	}

	d.recording = false
	closed := make([]byte, len(d.buffer))
	copy(closed, d.buffer)
	d.buffer = d.buffer[:0]

	// The minimum applies to actual speech; trailing silence padding
	// must not rescue a breath or noise blip from being discarded.
	if time.Duration(audio.MulawDurationMs(d.speechBytes))*time.Millisecond < d.cfg.MinUtteranceDuration {
		return ResultDiscarded, nil
	}
	return ResultUtterance, closed
}

// Calibrated reports whether the noise floor has been established.
func (d *Detector) Calibrated() bool { return d.calibrated }

// Recording reports whether an utterance is currently open.
func (d *Detector) Recording() bool { return d.recording }

// NoiseFloor returns the calibrated baseline energy, or 0 before
// calibration completes.
func (d *Detector) NoiseFloor() float64 { return d.noiseFloor }

// Threshold returns the current speech threshold.
func (d *Detector) Threshold() float64 { return d.threshold }

// Reset clears recording state but keeps the calibrated floor, so a
// session can drop an utterance without re-calibrating.
func (d *Detector) Reset() {
	d.recording = false
	d.buffer = d.buffer[:0]
	d.speechBytes = 0
	d.lastSpeech = time.Time{}
}
