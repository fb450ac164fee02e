// Package transform maps source records into destination-shaped records.
//
// A sync either carries an ordered rule list or a legacy flat mapping. Rules
// are applied in order, so a later rule overwrites an earlier one at the same
// path. After mapping, top-level fields declared in the stream schema are
// coerced to their declared types.
package transform

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/osteele/liquid"

	"github.com/igualparatodos/multiwoven/internal/core"
	"github.com/igualparatodos/multiwoven/internal/embedding"
	"github.com/igualparatodos/multiwoven/internal/handler"
	"github.com/igualparatodos/multiwoven/internal/lookup"
)

// Input is one record to transform together with its run context.
type Input struct {
	Sync    *core.SyncConfig
	Record  map[string]any
	Run     *core.Run
	Cache   *lookup.Cache
	Preload lookup.PreloadIndexes
}

// Transformer applies a sync's mapping to source records. It is safe for
// concurrent use.
type Transformer struct {
	handlers  *handler.Registry
	embedders *embedding.Set
	logger    *slog.Logger
	engine    *liquid.Engine
	templates sync.Map // source -> *liquid.Template
}

// Option configures a Transformer.
type Option func(*Transformer)

// WithHandlers sets the custom mapping handler registry.
func WithHandlers(r *handler.Registry) Option {
	return func(t *Transformer) { t.handlers = r }
}

// WithEmbedders sets the providers used by vector rules.
func WithEmbedders(s *embedding.Set) Option {
	return func(t *Transformer) { t.embedders = s }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *Transformer) { t.logger = l }
}

// New creates a transformer. Defaults: the global handler registry, a zero
// embedding provider and slog.Default().
func New(opts ...Option) *Transformer {
	t := &Transformer{
		handlers:  handler.DefaultRegistry(),
		embedders: embedding.NewSet(nil),
		logger:    slog.Default(),
		engine:    newEngine(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Transform maps one record. It never fails: an internal error is logged and
// the record built so far is returned.
func (t *Transformer) Transform(ctx context.Context, in Input) (out map[string]any) {
	out = make(map[string]any)
	if in.Sync == nil || in.Record == nil {
		return out
	}

	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("transform aborted", "syncId", in.Sync.ID, "error", fmt.Sprint(r))
		}
	}()

	if len(in.Sync.Rules) > 0 {
		for i := range in.Sync.Rules {
			t.applyRule(ctx, in, &in.Sync.Rules[i], out)
		}
	} else {
		for _, field := range in.Sync.FieldMappings() {
			if v, ok := sourceValue(in.Record, field.From); ok {
				Assign(out, field.Dest, v)
			}
		}
	}

	Coerce(out, in.Sync.Stream.Properties())
	return out
}

// TransformAll maps every record with the same run context.
func (t *Transformer) TransformAll(ctx context.Context, in Input, records []map[string]any) []map[string]any {
	out := make([]map[string]any, len(records))
	for i, rec := range records {
		in.Record = rec
		out[i] = t.Transform(ctx, in)
	}
	return out
}

func (t *Transformer) applyRule(ctx context.Context, in Input, rule *core.MappingRule, out map[string]any) {
	dest := rule.Dest
	if dest == nil {
		parsed, err := core.ParsePath(rule.To)
		if err != nil {
			t.logger.Warn("skipping mapping rule", "to", rule.To, "error", err)
			return
		}
		dest = parsed
	}

	switch rule.Type {
	case core.MappingStandard, "":
		v, ok := sourceValue(in.Record, rule.From)
		if !ok {
			return
		}
		if s, isStr := v.(string); isStr {
			v = strings.ReplaceAll(s, "'", "''")
		}
		Assign(out, dest, v)

	case core.MappingStatic:
		Assign(out, dest, rule.Value)

	case core.MappingTemplate:
		v, err := t.render(rule.TemplateSource(), in.Record)
		if err != nil {
			t.logger.Warn("template render failed", "to", rule.To, "error", err)
			return
		}
		Assign(out, dest, v)

	case core.MappingVector:
		v, ok := sourceValue(in.Record, rule.From)
		if !ok {
			return
		}
		if rule.Embedding != nil {
			vec, err := t.embed(ctx, rule.Embedding, v)
			if err != nil {
				t.logger.Warn("embedding failed", "to", rule.To, "error", err)
				return
			}
			v = vec
		}
		Assign(out, dest, v)

	case core.MappingCustom:
		h := t.handlers.HandlerFor(in.Sync.Destination.Connector)
		v, ok := h.TransformCustomMapping(ctx, &handler.CustomMappingInput{
			Sync:    in.Sync,
			Rule:    rule,
			Record:  in.Record,
			Run:     in.Run,
			Cache:   in.Cache,
			Preload: in.Preload,
		})
		if ok {
			Assign(out, dest, v)
		}

	default:
		t.logger.Warn("unknown mapping type", "type", rule.Type)
	}
}

func (t *Transformer) render(source string, record map[string]any) (string, error) {
	var tpl *liquid.Template
	if cached, ok := t.templates.Load(source); ok {
		tpl = cached.(*liquid.Template)
	} else {
		parsed, err := t.engine.ParseString(source)
		if err != nil {
			return "", err
		}
		t.templates.Store(source, parsed)
		tpl = parsed
	}
	out, err := tpl.RenderString(liquid.Bindings(record))
	if err != nil {
		return "", err
	}
	return out, nil
}

func (t *Transformer) embed(ctx context.Context, cfg *core.EmbeddingConfig, value any) ([]float32, error) {
	text, ok := value.(string)
	if !ok {
		text = fmt.Sprint(value)
	}
	vecs, err := t.embedders.For(cfg.Provider).EmbedText(ctx, cfg.Model, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("expected one embedding, got %d", len(vecs))
	}
	return vecs[0], nil
}
