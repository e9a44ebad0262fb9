// Package generator simulates an upstream alert source: on every tick it
// flips a biased coin and, on success, emits a synthetic fire alert.
package generator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"blazealert/internal/alert"
	"blazealert/internal/metrics"
	logx "blazealert/pkg/logx"
)

var ErrAlreadyStarted = errors.New("generator already started")

const (
	DefaultInterval    = 60 * time.Second
	DefaultProbability = 0.3
	DefaultBuffer      = 16
)

var (
	districts  = []string{"North", "South", "East", "West"}
	safetyTips = []string{
		"Stay indoors if possible",
		"Monitor local news for updates",
		"Follow evacuation orders if issued",
	}
)

type Config struct {
	// Schedule is a cron spec; when empty "@every <Interval>" is used.
	Schedule    string
	Interval    time.Duration
	Probability float64
	Seed        int64 // 0 seeds from the clock
	Buffer      int
	Location    *time.Location
}

// Generator emits candidate alerts on Alerts(). It runs once; a stopped
// generator cannot be restarted.
type Generator struct {
	log  logx.Logger
	cfg  Config
	spec string
	out  chan alert.Alert

	// omu guards sends on out against the close in Run.
	omu    sync.Mutex
	closed bool

	rmu sync.Mutex
	rng *rand.Rand

	prob    atomic.Uint64 // math.Float64bits
	started atomic.Bool
	now     func() time.Time
}

func New(cfg Config, log logx.Logger) (*Generator, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = DefaultBuffer
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Probability < 0 || cfg.Probability > 1 || math.IsNaN(cfg.Probability) {
		return nil, fmt.Errorf("generator probability %v out of range [0,1]", cfg.Probability)
	}
	spec := strings.TrimSpace(cfg.Schedule)
	if spec == "" {
		spec = "@every " + cfg.Interval.String()
	}
	if _, err := parser.Parse(spec); err != nil {
		return nil, fmt.Errorf("generator schedule %q: %w", spec, err)
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	g := &Generator{
		log:  log,
		cfg:  cfg,
		spec: spec,
		out:  make(chan alert.Alert, cfg.Buffer),
		rng:  rand.New(rand.NewSource(seed)),
		now:  time.Now,
	}
	g.prob.Store(math.Float64bits(cfg.Probability))
	return g, nil
}

var parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Alerts is closed when Run returns.
func (g *Generator) Alerts() <-chan alert.Alert { return g.out }

func (g *Generator) Probability() float64 { return math.Float64frombits(g.prob.Load()) }

// SetProbability changes the per-tick emission chance; out-of-range values are clamped.
func (g *Generator) SetProbability(p float64) {
	if math.IsNaN(p) || p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}
	g.prob.Store(math.Float64bits(p))
}

// Run ticks until ctx ends, then closes Alerts().
func (g *Generator) Run(ctx context.Context) error {
	if !g.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	defer func() {
		g.omu.Lock()
		g.closed = true
		close(g.out)
		g.omu.Unlock()
	}()

	c := cron.New(cron.WithParser(parser), cron.WithLocation(g.cfg.Location))
	if _, err := c.AddFunc(g.spec, g.tick); err != nil {
		return err
	}
	g.log.Info("generator started", logx.String("schedule", g.spec), logx.Float64("probability", g.Probability()))
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	g.log.Info("generator stopped")
	return nil
}

// tick runs one Bernoulli trial. A full buffer drops the candidate, and a
// stopped generator ignores the tick.
func (g *Generator) tick() {
	g.rmu.Lock()
	hit := g.rng.Float64() < g.Probability()
	g.rmu.Unlock()
	if !hit {
		metrics.GeneratorTicksTotal.WithLabelValues("skipped").Inc()
		return
	}
	a := g.Candidate(g.now())
	g.omu.Lock()
	defer g.omu.Unlock()
	if g.closed {
		return
	}
	select {
	case g.out <- a:
		metrics.GeneratorTicksTotal.WithLabelValues("emitted").Inc()
		g.log.Debug("alert emitted", logx.String("id", a.ID), logx.String("intensity", string(a.Intensity)))
	default:
		metrics.GeneratorTicksTotal.WithLabelValues("dropped").Inc()
		g.log.Warn("generator buffer full; alert dropped", logx.String("id", a.ID))
	}
}

// Candidate builds a synthetic alert stamped with now.
func (g *Generator) Candidate(now time.Time) alert.Alert {
	g.rmu.Lock()
	n := g.rng.Intn(100)
	district := districts[g.rng.Intn(len(districts))]
	miles := g.rng.Float64() * 10
	in := alert.Intensities[g.rng.Intn(len(alert.Intensities))]
	g.rmu.Unlock()

	return alert.Alert{
		ID:          uuid.NewString(),
		Title:       fmt.Sprintf("New Fire Alert: %d", n),
		Description: "A new fire incident has been reported in your area.",
		Location:    fmt.Sprintf("%s District, %.1f miles from your location", district, miles),
		Intensity:   in,
		Timestamp:   now,
		SafetyTips:  append([]string(nil), safetyTips...),
	}
}
