package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/gyaneshwarpardhi/nodealert/internal/condition"
	"github.com/gyaneshwarpardhi/nodealert/internal/config"
	"github.com/gyaneshwarpardhi/nodealert/internal/metrics"
	"github.com/gyaneshwarpardhi/nodealert/internal/node"
	"github.com/gyaneshwarpardhi/nodealert/internal/rule"
	"github.com/gyaneshwarpardhi/nodealert/internal/trigger"
)

// NodeSource supplies node snapshots and report history (PuppetDB or a fixture file).
type NodeSource interface {
	ListNodes(ctx context.Context) ([]node.Snapshot, error)
	GetNodeReports(ctx context.Context, certname string, withinHours uint) ([]node.Report, error)
	// GetLatestReport returns nil, nil for a node without reports.
	GetLatestReport(ctx context.Context, certname string) (*node.Report, error)
}

// GroupSource supplies group membership from the classification side.
// A nil result keeps the group ids carried by the node snapshot.
type GroupSource interface {
	GetNodeGroups(ctx context.Context, certname string) ([]string, error)
}

// TriggerSink receives the triggers of a pass for persistence and fan-out.
type TriggerSink interface {
	Deliver(ctx context.Context, triggers []trigger.AlertTrigger) error
}

var (
	// ErrNoNodeSource is returned by passes on an engine built without a node source.
	ErrNoNodeSource = errors.New("engine: no node source configured")
	// ErrShutdown is returned once the worker pool has been drained.
	ErrShutdown = errors.New("engine: shut down")
)

// NodeError reports a node skipped for a pass because its data could not be fetched.
type NodeError struct {
	Certname string
	Err      error
}

func (e *NodeError) Error() string { return fmt.Sprintf("node %s: %v", e.Certname, e.Err) }

func (e *NodeError) Unwrap() error { return e.Err }

// Engine runs evaluation passes: it fetches nodes, evaluates compiled rules per
// node in a bounded worker pool and turns matches into triggers.
type Engine struct {
	nodes    NodeSource
	groups   GroupSource
	sink     TriggerSink
	debounce trigger.DebounceStore
	cache    *cache.Cache
	pool     *workerPool[*nodeWork, *nodeOutcome]
	conf     config.EngineConf
	logger   *slog.Logger
	now      func() time.Time
	done     <-chan struct{}

	// passMu serialises passes that update debounce state.
	passMu sync.Mutex
}

// Option customises an Engine.
type Option func(*Engine)

// WithGroupSource sets the group membership source. Without one, or when it
// returns nil for a node, the group ids carried by the node snapshots are used.
func WithGroupSource(g GroupSource) Option { return func(e *Engine) { e.groups = g } }

// WithSink sets where pass triggers are delivered.
func WithSink(s TriggerSink) Option { return func(e *Engine) { e.sink = s } }

// WithDebounceStore replaces the in-memory debounce store.
func WithDebounceStore(d trigger.DebounceStore) Option { return func(e *Engine) { e.debounce = d } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(e *Engine) { e.logger = l } }

// WithClock sets the evaluation clock.
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

type nodeWork struct {
	ctx   context.Context
	node  node.Snapshot
	rules []*rule.Compiled
	needs rule.Needs
	now   time.Time
}

type ruleOutcome struct {
	RuleID  string
	Matched bool
	Err     error
}

type nodeOutcome struct {
	Certname string
	Skipped  error
	Rules    []ruleOutcome
	Duration time.Duration
}

// New creates an Engine using conf and starts its worker pool. The pool stops
// when ctx is cancelled or Shutdown is called.
func New(ctx context.Context, nodes NodeSource, conf config.EngineConf, opts ...Option) *Engine {
	e := &Engine{
		nodes:  nodes,
		conf:   conf,
		logger: slog.Default(),
		now:    func() time.Time { return time.Now().UTC() },
		done:   ctx.Done(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.debounce == nil {
		e.debounce = trigger.NewMemoryDebounce()
	}
	if ttl := conf.CacheTTL(); ttl > 0 {
		e.cache = cache.New(ttl, ttl*2)
	}

	workers := conf.NodeWorkers
	if workers < 1 {
		workers = 1
	}
	queue := conf.QueueDepth
	if queue < workers {
		queue = workers
	}
	e.pool = newWorkerPool[*nodeWork, *nodeOutcome](ctx, workers, queue, e.processNode)
	return e
}

// PassResult summarises one evaluation pass.
type PassResult struct {
	StartedAt      time.Time              `json:"started_at"`
	DurationMs     int64                  `json:"duration_ms"`
	RulesEvaluated int                    `json:"rules_evaluated"`
	NodesEvaluated int                    `json:"nodes_evaluated"`
	NodesSkipped   []string               `json:"nodes_skipped,omitempty"`
	Matches        map[string][]string    `json:"matches"` // rule id → matched certnames
	Triggers       []trigger.AlertTrigger `json:"triggers"`
	Errors         []string               `json:"errors,omitempty"`
}

// RunPass evaluates every enabled rule against every node, applies the
// node-count gate and debounce policy, and delivers the resulting triggers.
// Rules that fail to compile and nodes whose data cannot be fetched are
// logged and skipped; only a failure to list nodes aborts the pass.
func (e *Engine) RunPass(ctx context.Context, kind string, rules []rule.AlertRule) (*PassResult, error) {
	e.passMu.Lock()
	defer e.passMu.Unlock()

	res, err := e.runPass(ctx, rules)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.PassesRun.WithLabelValues(kind, outcome).Inc()
	if res != nil {
		metrics.PassDuration.Observe(float64(res.DurationMs))
	}
	return res, err
}

func (e *Engine) runPass(ctx context.Context, rules []rule.AlertRule) (*PassResult, error) {
	if e.nodes == nil {
		return nil, ErrNoNodeSource
	}
	if d := e.conf.PassTimeout(); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}
	start := time.Now()
	now := e.now()

	compiled := e.compile(rules)
	res := &PassResult{
		StartedAt:      now,
		RulesEvaluated: len(compiled),
		Matches:        make(map[string][]string, len(compiled)),
		Triggers:       []trigger.AlertTrigger{},
	}
	active := make([]string, 0, len(compiled))
	for _, c := range compiled {
		active = append(active, c.Rule.ID)
	}
	e.debounce.Prune(active)
	if len(compiled) == 0 {
		res.DurationMs = time.Since(start).Milliseconds()
		return res, nil
	}

	nodes, err := e.nodes.ListNodes(ctx)
	if err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}
	outcomes, err := e.evaluateNodes(ctx, compiled, nodes, now)
	if err != nil {
		return nil, fmt.Errorf("evaluate nodes: %w", err)
	}

	for _, o := range outcomes {
		if o.Skipped != nil {
			res.NodesSkipped = append(res.NodesSkipped, o.Certname)
			res.Errors = append(res.Errors, o.Skipped.Error())
			continue
		}
		res.NodesEvaluated++
		for _, ro := range o.Rules {
			if ro.Err != nil {
				e.logger.Warn("condition evaluation failed", "rule_id", ro.RuleID, "certname", o.Certname, "err", ro.Err)
				metrics.ConditionErrors.WithLabelValues(ro.RuleID).Inc()
				res.Errors = append(res.Errors, ro.Err.Error())
			}
			if ro.Matched {
				metrics.RulesMatched.WithLabelValues(ro.RuleID).Inc()
				res.Matches[ro.RuleID] = append(res.Matches[ro.RuleID], o.Certname)
			}
		}
	}

	for _, c := range compiled {
		matched := res.Matches[c.Rule.ID]
		pass, err := c.CountGate(len(matched))
		if err != nil {
			e.logger.Warn("node count threshold failed", "rule_id", c.Rule.ID, "err", err)
			res.Errors = append(res.Errors, err.Error())
		}
		if !pass {
			e.debounce.Reset(c.Rule.ID)
			continue
		}
		triggers := trigger.Generate(c, e.debounce.Observe(c.Rule.ID, matched, res.NodesSkipped), now)
		for _, t := range triggers {
			metrics.TriggersEmitted.WithLabelValues(string(t.Severity)).Inc()
		}
		res.Triggers = append(res.Triggers, triggers...)
	}
	res.DurationMs = time.Since(start).Milliseconds()

	if e.sink != nil && len(res.Triggers) > 0 {
		if err := e.sink.Deliver(ctx, res.Triggers); err != nil {
			return res, fmt.Errorf("deliver triggers: %w", err)
		}
	}
	e.logger.Info("evaluation pass finished",
		"rules", res.RulesEvaluated,
		"nodes", res.NodesEvaluated,
		"skipped", len(res.NodesSkipped),
		"triggers", len(res.Triggers),
		"duration_ms", res.DurationMs)
	return res, nil
}

func (e *Engine) compile(rules []rule.AlertRule) []*rule.Compiled {
	out := make([]*rule.Compiled, 0, len(rules))
	for _, r := range rules {
		if !r.Enabled {
			continue
		}
		c, err := rule.Compile(r)
		if err != nil {
			e.logger.Warn("rule skipped: compile failed", "rule_id", r.ID, "err", err)
			metrics.RulesSkipped.Inc()
			continue
		}
		out = append(out, c)
	}
	return out
}

// evaluateNodes fans nodes out to the worker pool and collects one outcome
// per node, ordered by certname.
func (e *Engine) evaluateNodes(ctx context.Context, compiled []*rule.Compiled, nodes []node.Snapshot, now time.Time) ([]*nodeOutcome, error) {
	var needs rule.Needs
	for _, c := range compiled {
		needs = needs.Merge(c.Needs())
	}

	results := make(chan jobResult[*nodeWork, *nodeOutcome], len(nodes))
	submitted := 0
	for _, n := range nodes {
		w := &nodeWork{ctx: ctx, node: n, rules: compiled, needs: needs, now: now}
		if !e.pool.Submit(ctx, w, results) {
			break
		}
		submitted++
	}
	metrics.QueueUtilization.Set(e.QueueUtilization())

	outcomes := make([]*nodeOutcome, 0, submitted)
	for i := 0; i < submitted; i++ {
		select {
		case r := <-results:
			outcomes = append(outcomes, r.value)
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-e.done:
			return nil, ErrShutdown
		}
	}
	if submitted < len(nodes) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, ErrShutdown
	}
	sort.Slice(outcomes, func(i, j int) bool { return outcomes[i].Certname < outcomes[j].Certname })
	return outcomes, nil
}

func (e *Engine) processNode(_ context.Context, w *nodeWork) (*nodeOutcome, error) {
	start := time.Now()
	out := &nodeOutcome{Certname: w.node.Certname}
	metrics.NodesEvaluated.Inc()

	fetchCtx := w.ctx
	if d := e.conf.NodeTimeout(); d > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(w.ctx, d)
		defer cancel()
	}
	in, err := e.load(fetchCtx, w.node, w.needs)
	if err != nil {
		reason := "fetch_error"
		if errors.Is(err, context.DeadlineExceeded) {
			reason = "timeout"
		}
		metrics.NodesSkipped.WithLabelValues(reason).Inc()
		out.Skipped = &NodeError{Certname: w.node.Certname, Err: err}
		e.logger.Warn("node skipped", "certname", w.node.Certname, "reason", reason, "err", err)
		out.Duration = time.Since(start)
		return out, nil
	}

	out.Rules = make([]ruleOutcome, 0, len(w.rules))
	for _, c := range w.rules {
		matched, err := c.Evaluate(in, w.now)
		out.Rules = append(out.Rules, ruleOutcome{RuleID: c.Rule.ID, Matched: matched, Err: err})
	}
	out.Duration = time.Since(start)
	return out, nil
}

// load fetches only the data the compiled rules need.
func (e *Engine) load(ctx context.Context, n node.Snapshot, needs rule.Needs) (*condition.Input, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	in := &condition.Input{Node: n}
	if needs.Groups && e.groups != nil {
		groups, err := cached(e, "groups", n.Certname, func() ([]string, error) {
			return e.groups.GetNodeGroups(ctx, n.Certname)
		})
		if err != nil {
			return nil, fmt.Errorf("groups: %w", err)
		}
		if groups != nil {
			in.Node.GroupIDs = groups
		}
	}
	if needs.Reports {
		key := fmt.Sprintf("%s/%d", n.Certname, needs.ReportHours)
		reports, err := cached(e, "reports", key, func() ([]node.Report, error) {
			return e.nodes.GetNodeReports(ctx, n.Certname, needs.ReportHours)
		})
		if err != nil {
			return nil, fmt.Errorf("reports: %w", err)
		}
		in.Reports = reports
	}
	if needs.LatestReport {
		latest, err := cached(e, "latest", n.Certname, func() (*node.Report, error) {
			return e.nodes.GetLatestReport(ctx, n.Certname)
		})
		if err != nil {
			return nil, fmt.Errorf("latest report: %w", err)
		}
		in.Latest = latest
	}
	return in, nil
}

// cached serves kind/key from the node data cache, calling fetch on a miss.
// Failed fetches are not cached.
func cached[T any](e *Engine, kind, key string, fetch func() (T, error)) (T, error) {
	if e.cache == nil {
		return fetch()
	}
	k := kind + "/" + key
	if v, ok := e.cache.Get(k); ok {
		if t, ok := v.(T); ok {
			metrics.CacheLookups.WithLabelValues(kind, "hit").Inc()
			return t, nil
		}
	}
	metrics.CacheLookups.WithLabelValues(kind, "miss").Inc()
	t, err := fetch()
	if err != nil {
		return t, err
	}
	e.cache.Set(k, t, cache.DefaultExpiration)
	return t, nil
}

// InvalidateCache drops all cached node data.
func (e *Engine) InvalidateCache() {
	if e.cache != nil {
		e.cache.Flush()
	}
}

// QueueUtilization returns queue used / capacity (0 to 1).
func (e *Engine) QueueUtilization() float64 {
	if e.pool.QueueCap() == 0 {
		return 0
	}
	return float64(e.pool.QueueLen()) / float64(e.pool.QueueCap())
}

// Shutdown drains the worker pool gracefully.
func (e *Engine) Shutdown() {
	e.pool.Drain()
}
