package speech

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/mattn/go-runewidth"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// logTextWidth bounds how much of the input text goes into a log line,
// measured in terminal cells.
const logTextWidth = 32

// MeterName is the instrumentation scope of the synthesis instruments.
const MeterName = "github.com/dgnsrekt/vvtts/internal/speech"

type instruments struct {
	requests metric.Int64Counter
	duration metric.Float64Histogram
	audio    metric.Int64Counter
}

var (
	instOnce sync.Once
	inst     instruments
)

// getInstruments builds the instruments on the global meter provider. The
// global provider forwards to whatever provider is installed later, so this
// may run before telemetry is set up.
func getInstruments() instruments {
	instOnce.Do(func() {
		meter := otel.Meter(MeterName)
		var err error
		inst.requests, err = meter.Int64Counter("vvtts.synthesis.requests",
			metric.WithDescription("Synthesis requests by kind, result and cache hit"))
		if err != nil {
			log.Warn("Failed to create metric", "name", "vvtts.synthesis.requests", "error", err)
			inst.requests, _ = noop.Meter{}.Int64Counter("")
		}
		inst.duration, err = meter.Float64Histogram("vvtts.synthesis.duration",
			metric.WithDescription("Wall time spent per synthesis request"),
			metric.WithUnit("s"))
		if err != nil {
			log.Warn("Failed to create metric", "name", "vvtts.synthesis.duration", "error", err)
			inst.duration, _ = noop.Meter{}.Float64Histogram("")
		}
		inst.audio, err = meter.Int64Counter("vvtts.synthesis.audio",
			metric.WithDescription("WAV bytes returned to callers"),
			metric.WithUnit("By"))
		if err != nil {
			log.Warn("Failed to create metric", "name", "vvtts.synthesis.audio", "error", err)
			inst.audio, _ = noop.Meter{}.Int64Counter("")
		}
	})
	return inst
}

type metrics struct {
	kind    string
	speaker uint32
	text    string
	start   time.Time
}

func startSynthesis(kind string, speaker uint32, text string) *metrics {
	m := &metrics{
		kind:    kind,
		speaker: speaker,
		text:    runewidth.Truncate(text, logTextWidth, "…"),
		start:   time.Now(),
	}
	log.Debug("Synthesis started", "kind", kind, "speaker", speaker, "text", m.text)
	return m
}

func (m *metrics) end(ctx context.Context, audioBytes int, cacheHit bool, err error) {
	elapsed := time.Since(m.start)
	in := getInstruments()
	kind := attribute.String("kind", m.kind)
	in.duration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(kind))

	if err != nil {
		in.requests.Add(ctx, 1, metric.WithAttributes(kind,
			attribute.String("result", "error"),
			attribute.Bool("cache_hit", false)))
		log.Error("Synthesis failed",
			"kind", m.kind,
			"speaker", m.speaker,
			"text", m.text,
			"duration", elapsed,
			"error", err)
		return
	}

	in.requests.Add(ctx, 1, metric.WithAttributes(kind,
		attribute.String("result", "ok"),
		attribute.Bool("cache_hit", cacheHit)))
	in.audio.Add(ctx, int64(audioBytes), metric.WithAttributes(kind))
	log.Info("Synthesis completed",
		"kind", m.kind,
		"speaker", m.speaker,
		"text", m.text,
		"audioBytes", audioBytes,
		"duration", elapsed,
		"cacheHit", cacheHit)
}
