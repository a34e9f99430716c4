package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/jilio/sharedstate"
	"github.com/jilio/sharedstate/config"
	stateotel "github.com/jilio/sharedstate/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"gopkg.in/yaml.v3"
)

// script is a replay file. Every scripted key holds a string.
type script struct {
	Middleware map[string][]middlewareSpec `yaml:"middleware"`
	Writes     []scriptedWrite             `yaml:"writes"`
}

// middlewareSpec sets exactly one transform
type middlewareSpec struct {
	Prefix      string `yaml:"prefix"`
	Suffix      string `yaml:"suffix"`
	Upper       bool   `yaml:"upper"`
	Trim        bool   `yaml:"trim"`
	RejectEmpty bool   `yaml:"reject_empty"`
}

type scriptedWrite struct {
	Key   string `yaml:"key"`
	Value string `yaml:"value"`
}

var errEmptyValue = errors.New("empty value rejected")

func loadScript(path string) (script, error) {
	f, err := os.Open(path)
	if err != nil {
		return script{}, fmt.Errorf("open script: %w", err)
	}
	defer f.Close()
	return parseScript(f)
}

func parseScript(r io.Reader) (script, error) {
	var s script
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return script{}, fmt.Errorf("decode script: %w", err)
	}
	for i, w := range s.Writes {
		if w.Key == "" {
			return script{}, fmt.Errorf("write %d: key is required", i)
		}
	}
	return s, nil
}

// keys returns every key the script touches, sorted
func (s script) keys() []string {
	seen := make(map[string]struct{})
	for k := range s.Middleware {
		seen[k] = struct{}{}
	}
	for _, w := range s.Writes {
		seen[w.Key] = struct{}{}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (m middlewareSpec) build() (sharedstate.Middleware[string], error) {
	set := 0
	for _, on := range []bool{m.Prefix != "", m.Suffix != "", m.Upper, m.Trim, m.RejectEmpty} {
		if on {
			set++
		}
	}
	if set > 1 {
		return nil, errors.New("middleware sets more than one transform")
	}

	switch {
	case m.Prefix != "":
		return func(v string, next sharedstate.Next[string]) error {
			next(m.Prefix + v)
			return nil
		}, nil
	case m.Suffix != "":
		return func(v string, next sharedstate.Next[string]) error {
			next(v + m.Suffix)
			return nil
		}, nil
	case m.Upper:
		return func(v string, next sharedstate.Next[string]) error {
			next(strings.ToUpper(v))
			return nil
		}, nil
	case m.Trim:
		return func(v string, next sharedstate.Next[string]) error {
			next(strings.TrimSpace(v))
			return nil
		}, nil
	case m.RejectEmpty:
		return func(v string, next sharedstate.Next[string]) error {
			if v == "" {
				return errEmptyValue
			}
			return nil
		}, nil
	}
	return nil, errors.New("middleware has no transform set")
}

type replayOptions struct {
	configPath string
	trace      bool
	out        io.Writer
	errOut     io.Writer
}

// reporter prints writes that did not commit
type reporter struct {
	out io.Writer
}

func (r reporter) OnWriteStart(ctx context.Context, _ string) context.Context { return ctx }

func (r reporter) OnWriteComplete(_ context.Context, key string, changed bool, _ time.Duration, err error) {
	switch {
	case err != nil:
		fmt.Fprintf(r.out, "%s: rejected: %v\n", key, err)
	case !changed:
		fmt.Fprintf(r.out, "%s: unchanged, skipped\n", key)
	}
}

func (r reporter) OnNotify(context.Context, string, int) {}

func runReplay(ctx context.Context, opts replayOptions, s script) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	logger, err := cfg.Logger(opts.errOut)
	if err != nil {
		return err
	}

	hooks := []sharedstate.Observability{reporter{out: opts.out}}
	if opts.trace || cfg.Trace {
		exporter, err := stdouttrace.New(stdouttrace.WithWriter(opts.errOut))
		if err != nil {
			return fmt.Errorf("trace exporter: %w", err)
		}
		tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
		defer func() {
			if err := tp.Shutdown(context.Background()); err != nil {
				logger.Error("shutting down tracer provider", "error", err)
			}
		}()

		obs, err := stateotel.New(stateotel.WithTracerProvider(tp))
		if err != nil {
			return fmt.Errorf("observability: %w", err)
		}
		hooks = append(hooks, obs)
	}

	store := sharedstate.New(
		sharedstate.WithLogger(logger),
		sharedstate.WithObservability(sharedstate.NewMultiObservability(hooks...)),
		sharedstate.WithPanicHandler(func(key string, value any, p any) {
			fmt.Fprintf(opts.out, "%s: subscriber panicked: %v\n", key, p)
		}),
	)

	for _, name := range cfg.DefaultKeys() {
		if _, err := config.ApplyDefault(store, sharedstate.NewKey[string](name), cfg); err != nil {
			logger.Warn("skipping non-string default", "key", name, "error", err)
		}
	}

	for _, name := range sortedKeys(s.Middleware) {
		key := sharedstate.NewKey[string](name)
		for i, spec := range s.Middleware[name] {
			mw, err := spec.build()
			if err != nil {
				return fmt.Errorf("middleware %d for %q: %w", i, name, err)
			}
			if _, err := sharedstate.RegisterMiddleware(store, key, mw); err != nil {
				return err
			}
		}
	}

	for _, name := range s.keys() {
		b, err := sharedstate.Bind(store, sharedstate.NewKey[string](name), func(v string) {
			fmt.Fprintf(opts.out, "%s <- %q\n", name, v)
		})
		if err != nil {
			return err
		}
		defer b.Unsubscribe()

		if v, ok := b.Value(); ok {
			fmt.Fprintf(opts.out, "%s = %q\n", name, v)
		}
	}

	var failed int
	for _, w := range s.Writes {
		if err := sharedstate.WriteContext(store, ctx, sharedstate.NewKey[string](w.Key), w.Value); err != nil {
			failed++
		}
	}

	fmt.Fprintln(opts.out, "final:")
	snapshot := store.Snapshot()
	for _, name := range sortedKeys(snapshot) {
		fmt.Fprintf(opts.out, "  %s = %q\n", name, snapshot[name])
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d writes failed", failed, len(s.Writes))
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
