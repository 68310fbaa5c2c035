package engine

import (
	"context"
	stderrors "errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/c360/guildflow/errors"
	"github.com/c360/guildflow/metric"
	"github.com/c360/guildflow/platform"
	"github.com/c360/guildflow/rulestore"
	"github.com/c360/guildflow/statestore"
	"github.com/c360/guildflow/types"
)

// errSkipped signals an action that chose not to run; it is not a
// failure.
var errSkipped = stderrors.New("engine: action skipped")

// Skip reasons recorded on non-fired reports.
const (
	SkipConditions = "conditions"
	SkipCooldown   = "cooldown"
	SkipMaxUses    = "max_uses"
)

// Engine runs the full pipeline for inbound events: match triggers, gate
// conditions and cooldowns, resolve templates, execute actions.
type Engine struct {
	rules     *rulestore.Store
	store     *statestore.Store
	sink      platform.Sink
	directory platform.Directory
	matcher   *Matcher
	metrics   *engineMetrics
	logger    *slog.Logger

	stopOnFirstFire bool
	transientDelay  time.Duration
	violationSeq    atomic.Uint64
}

// Option configures an Engine.
type Option func(*Engine)

// WithMetricsRegistry enables engine metrics. A nil registry leaves
// metrics disabled.
func WithMetricsRegistry(registry *metric.MetricsRegistry) Option {
	return func(e *Engine) {
		e.metrics = newEngineMetrics(registry)
	}
}

// WithStopOnFirstFire makes the engine stop evaluating further rules
// once one has fired for an event. The default evaluates all rules.
func WithStopOnFirstFire(stop bool) Option {
	return func(e *Engine) {
		e.stopOnFirstFire = stop
	}
}

// WithTransientDelay overrides the delay before transient messages are
// deleted.
func WithTransientDelay(d time.Duration) Option {
	return func(e *Engine) {
		e.transientDelay = d
	}
}

// New creates an engine over the given collaborators.
func New(rules *rulestore.Store, store *statestore.Store, sink platform.Sink, directory platform.Directory, opts ...Option) *Engine {
	e := &Engine{
		rules:          rules,
		store:          store,
		sink:           sink,
		directory:      directory,
		matcher:        NewMatcher(),
		logger:         slog.Default().With("component", "engine"),
		transientDelay: transientDeleteDelay,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// HandleEvent runs every guild rule against one event and returns a
// report per considered rule. Per-rule and per-action failures are
// isolated into the reports; the only error returned to the caller is a
// store failure, which aborts the event.
func (e *Engine) HandleEvent(ctx context.Context, event *types.Event) ([]ExecutionReport, error) {
	start := time.Now()
	e.metrics.recordEvent(event.Kind)
	defer func() {
		e.metrics.observePipeline(event.Kind, time.Since(start))
	}()

	rules, err := e.rules.List(ctx, event.GuildID)
	if err != nil {
		return nil, errors.WrapFatal(err, "Engine", "HandleEvent", "load guild rules")
	}

	actor := e.resolveActor(ctx, event)
	matches := e.matcher.Match(event, rules)

	var reports []ExecutionReport
	for _, match := range matches {
		report, err := e.runRule(ctx, match, event, actor)
		if err != nil {
			// Store failure: fail closed for the whole event.
			reports = append(reports, report)
			return reports, err
		}
		reports = append(reports, report)
		e.metrics.recordRule(ruleOutcome(report))

		if e.stopOnFirstFire && report.Fired {
			break
		}
	}
	return reports, nil
}

func (e *Engine) runRule(ctx context.Context, match MatchResult, event *types.Event, actor types.Actor) (ExecutionReport, error) {
	rule := match.Rule
	report := ExecutionReport{RuleID: rule.ID, RuleName: rule.Name}

	if match.ConfigErr != nil {
		report.Skipped = match.ConfigErr.Error()
		e.logger.Warn("rule skipped on invalid trigger", "rule_id", rule.ID, "error", match.ConfigErr)
		return report, nil
	}

	if !Permits(actor, rule.Conditions) {
		report.Skipped = SkipConditions
		return report, nil
	}

	allowed, err := e.checkCooldown(ctx, actor.ID, rule.ID, rule.CooldownSeconds, event.At)
	if err != nil {
		report.Skipped = SkipCooldown
		return report, err
	}
	if !allowed {
		report.Skipped = SkipCooldown
		return report, nil
	}

	allowed, err = e.registerFire(ctx, rule.ID, rule.MaxUses)
	if err != nil {
		report.Skipped = SkipMaxUses
		return report, err
	}
	if !allowed {
		report.Skipped = SkipMaxUses
		return report, nil
	}

	tc := e.buildContext(ctx, event, actor)
	report = e.executeActions(ctx, rule, event, actor, tc)
	e.logger.Debug("rule fired", "rule_id", rule.ID, "guild_id", event.GuildID, "actor_id", actor.ID)
	return report, nil
}

// resolveActor fetches the acting member's identity; a failed lookup
// degrades to a bare ID so condition gating still runs (with no roles,
// required-role rules simply will not pass).
func (e *Engine) resolveActor(ctx context.Context, event *types.Event) types.Actor {
	member, err := e.directory.Member(ctx, event.GuildID, event.ActorID)
	if err != nil {
		e.logger.Debug("member lookup failed", "guild_id", event.GuildID, "actor_id", event.ActorID, "error", err)
		return types.Actor{ID: event.ActorID}
	}
	return types.Actor{
		ID:        member.ID,
		Name:      member.Name,
		Mention:   member.Mention,
		AvatarURL: member.AvatarURL,
		RoleIDs:   member.RoleIDs,
		IsAdmin:   member.IsAdmin,
	}
}

func ruleOutcome(report ExecutionReport) string {
	if report.Fired {
		return "fired"
	}
	return "skipped"
}
