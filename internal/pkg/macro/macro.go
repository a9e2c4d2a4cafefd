package macro

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gethiox/keymapper/internal/pkg/symbols"
	"github.com/holoplot/go-evdev"
)

var (
	ErrSyntax = errors.New("macro syntax error")
	// ErrUnknownSymbol is reported when macro is well-formed but references a name missing in the registry
	ErrUnknownSymbol = symbols.ErrUnknownSymbol
)

// Handler receives key events produced by running macro
type Handler func(code evdev.EvCode, value int32)

type Options struct {
	Registry       *symbols.Registry // symbols.Default() when nil
	KeystrokeDelay time.Duration     // pause after every key state change
}

// Macro is an immutable parsed macro, safe for concurrent Run calls
type Macro struct {
	source       string
	root         Node
	delay        time.Duration
	capabilities []evdev.EvCode
}

// IsMacro tells if mapping output should be treated as macro source rather than a key name
func IsMacro(output string) bool {
	return strings.Contains(output, "(") && strings.Contains(output, ")")
}

func Parse(source string, opts Options) (*Macro, error) {
	if opts.Registry == nil {
		opts.Registry = symbols.Default()
	}

	expr, err := macroParser.ParseString("", source)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrSyntax, err)
	}

	b := builder{registry: opts.Registry}
	root, err := b.sequence(expr)
	if err != nil {
		return nil, err
	}
	if b.unknown != nil {
		return nil, b.unknown
	}

	codes := make(map[evdev.EvCode]struct{})
	collectCodes(root, codes)
	capabilities := make([]evdev.EvCode, 0, len(codes))
	for code := range codes {
		capabilities = append(capabilities, code)
	}
	sort.Slice(capabilities, func(i, j int) bool { return capabilities[i] < capabilities[j] })

	return &Macro{
		source:       source,
		root:         root,
		delay:        opts.KeystrokeDelay,
		capabilities: capabilities,
	}, nil
}

func (m *Macro) String() string {
	return m.source
}

func (m *Macro) Root() Node {
	return m.root
}

// Capabilities returns every key code this macro is able to emit
func (m *Macro) Capabilities() []evdev.EvCode {
	out := make([]evdev.EvCode, len(m.capabilities))
	copy(out, m.capabilities)
	return out
}

// Run executes the macro until completion or context cancellation.
// With nil handler events are computed but discarded.
func (m *Macro) Run(ctx context.Context, h Handler) error {
	if h == nil {
		h = func(evdev.EvCode, int32) {}
	}
	return m.eval(ctx, m.root, h)
}

func (m *Macro) eval(ctx context.Context, n Node, h Handler) error {
	switch n := n.(type) {
	case Key:
		h(n.Code, 1)
		if err := sleep(ctx, m.delay); err != nil {
			return err
		}
		h(n.Code, 0)
		return sleep(ctx, m.delay)
	case Sequence:
		for _, child := range n.Children {
			if err := m.eval(ctx, child, h); err != nil {
				return err
			}
		}
	case Repeat:
		for i := 0; i < n.Count; i++ {
			if err := m.eval(ctx, n.Child, h); err != nil {
				return err
			}
		}
	case HoldModifier:
		h(n.Code, 1)
		if err := sleep(ctx, m.delay); err != nil {
			h(n.Code, 0)
			return err
		}
		if err := m.eval(ctx, n.Child, h); err != nil {
			h(n.Code, 0)
			return err
		}
		if err := sleep(ctx, m.delay); err != nil {
			h(n.Code, 0)
			return err
		}
		h(n.Code, 0)
		return sleep(ctx, m.delay)
	case Wait:
		return sleep(ctx, n.Duration)
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type builder struct {
	registry *symbols.Registry
	unknown  error // first unresolved name, syntax errors take precedence
}

func (b *builder) sequence(expr *sequenceExpr) (Node, error) {
	if len(expr.Calls) == 1 {
		return b.call(expr.Calls[0])
	}
	seq := Sequence{Children: make([]Node, 0, len(expr.Calls))}
	for _, call := range expr.Calls {
		n, err := b.call(call)
		if err != nil {
			return nil, err
		}
		seq.Children = append(seq.Children, n)
	}
	return seq, nil
}

func (b *builder) call(call *callExpr) (Node, error) {
	name := strings.ToLower(call.Function)
	switch name {
	case "k":
		if err := arity(call, 1); err != nil {
			return nil, err
		}
		code, err := b.symbol(call, call.Arguments[0])
		if err != nil {
			return nil, err
		}
		return Key{Code: code}, nil
	case "r":
		if err := arity(call, 2); err != nil {
			return nil, err
		}
		count, err := number(call, call.Arguments[0])
		if err != nil {
			return nil, err
		}
		child, err := b.child(call, call.Arguments[1])
		if err != nil {
			return nil, err
		}
		return Repeat{Count: count, Child: child}, nil
	case "m":
		if err := arity(call, 2); err != nil {
			return nil, err
		}
		code, err := b.symbol(call, call.Arguments[0])
		if err != nil {
			return nil, err
		}
		child, err := b.child(call, call.Arguments[1])
		if err != nil {
			return nil, err
		}
		return HoldModifier{Code: code, Child: child}, nil
	case "w":
		if err := arity(call, 1); err != nil {
			return nil, err
		}
		ms, err := number(call, call.Arguments[0])
		if err != nil {
			return nil, err
		}
		return Wait{Duration: time.Millisecond * time.Duration(ms)}, nil
	}
	return nil, fmt.Errorf("%w: %s: unknown function \"%s\"", ErrSyntax, call.Pos, call.Function)
}

func arity(call *callExpr, n int) error {
	if len(call.Arguments) != n {
		return fmt.Errorf("%w: %s: %s() takes %d argument(s), got %d",
			ErrSyntax, call.Pos, call.Function, n, len(call.Arguments))
	}
	return nil
}

func (b *builder) symbol(call *callExpr, arg *argExpr) (evdev.EvCode, error) {
	if arg.Value == nil {
		return 0, fmt.Errorf("%w: %s: %s() expects a key name, got a macro", ErrSyntax, arg.Pos, call.Function)
	}
	code, err := b.registry.Resolve(*arg.Value)
	if err != nil && b.unknown == nil {
		b.unknown = fmt.Errorf("%s: %w", arg.Pos, err)
	}
	return code, nil
}

func (b *builder) child(call *callExpr, arg *argExpr) (Node, error) {
	if arg.Sequence == nil {
		return nil, fmt.Errorf("%w: %s: %s() expects a macro, got \"%s\"", ErrSyntax, arg.Pos, call.Function, *arg.Value)
	}
	return b.sequence(arg.Sequence)
}

func number(call *callExpr, arg *argExpr) (int, error) {
	if arg.Value == nil {
		return 0, fmt.Errorf("%w: %s: %s() expects a number, got a macro", ErrSyntax, arg.Pos, call.Function)
	}
	v, err := strconv.Atoi(*arg.Value)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%w: %s: %s() expects a non-negative number, got \"%s\"", ErrSyntax, arg.Pos, call.Function, *arg.Value)
	}
	return v, nil
}
