package pipeline

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/edgeworks-labs/orbiter/internal/domain"
	"github.com/edgeworks-labs/orbiter/internal/orbiterrors"
	"github.com/jmespath/go-jmespath"
)

var nowArithmeticRE = regexp.MustCompile(`^now\s*([+-])\s*(\d+)\s*([smhd])$`)

// Render resolves `${...}` placeholders and JMESPath/now-arithmetic
// shorthand inside a Value, per spec §4.3. Strings containing a single
// whole-string `${expr}` are replaced by expr's native-typed result;
// strings with one or more embedded placeholders are stringified and
// concatenated. Non-string values pass through unchanged, except that
// their nested strings are rendered recursively (so `with` objects/
// arrays render member by member).
func Render(v domain.Value, ctx *Context) (domain.Value, error) {
	switch v.Kind() {
	case domain.KindString:
		s, _ := v.String()
		return renderString(s, ctx)
	case domain.KindArray:
		items, _ := v.Array()
		out := make([]domain.Value, len(items))
		for i, item := range items {
			rendered, err := Render(item, ctx)
			if err != nil {
				return domain.NullValue(), err
			}
			out[i] = rendered
		}
		return domain.ArrayValue(out), nil
	case domain.KindObject:
		obj, _ := v.Object()
		out := domain.NewOrderedObject()
		for _, k := range obj.Keys() {
			item, _ := obj.Get(k)
			rendered, err := Render(item, ctx)
			if err != nil {
				return domain.NullValue(), err
			}
			out.Set(k, rendered)
		}
		return domain.ObjectValue(out), nil
	default:
		return v, nil
	}
}

// RenderObject is a convenience wrapper for a step's `with` block.
func RenderObject(obj *domain.OrderedObject, ctx *Context) (*domain.OrderedObject, error) {
	if obj == nil {
		return domain.NewOrderedObject(), nil
	}
	rendered, err := Render(domain.ObjectValue(obj), ctx)
	if err != nil {
		return nil, err
	}
	out, _ := rendered.Object()
	return out, nil
}

func renderString(s string, ctx *Context) (domain.Value, error) {
	placeholders, err := splitPlaceholders(s)
	if err != nil {
		return domain.NullValue(), err
	}
	if len(placeholders) == 0 {
		return domain.StringValue(s), nil
	}
	if len(placeholders) == 1 && placeholders[0].wholeString {
		return evalExpr(placeholders[0].expr, ctx)
	}

	var sb strings.Builder
	cursor := 0
	for _, p := range placeholders {
		sb.WriteString(s[cursor:p.start])
		val, err := evalExpr(p.expr, ctx)
		if err != nil {
			return domain.NullValue(), err
		}
		sb.WriteString(stringify(val))
		cursor = p.end
	}
	sb.WriteString(s[cursor:])
	return domain.StringValue(sb.String()), nil
}

type placeholder struct {
	expr        string
	start, end  int
	wholeString bool
}

// splitPlaceholders finds every top-level ${...} span in s, matching
// braces so a JMESPath multi-select-hash literal (`${{a: b}}`) does not
// terminate the placeholder early.
func splitPlaceholders(s string) ([]placeholder, error) {
	var out []placeholder
	i := 0
	for i < len(s) {
		idx := strings.Index(s[i:], "${")
		if idx < 0 {
			break
		}
		start := i + idx
		depth := 1
		j := start + 2
		for j < len(s) && depth > 0 {
			switch s[j] {
			case '{':
				depth++
			case '}':
				depth--
			}
			j++
		}
		if depth != 0 {
			return nil, orbiterrors.New(orbiterrors.KindTemplate, "unterminated placeholder in: "+s)
		}
		expr := s[start+2 : j-1]
		out = append(out, placeholder{
			expr:        strings.TrimSpace(expr),
			start:       start,
			end:         j,
			wholeString: start == 0 && j == len(s),
		})
		i = j
	}
	return out, nil
}

func evalExpr(expr string, ctx *Context) (domain.Value, error) {
	if expr == "now" {
		return domain.StringValue(ctx.Now.UTC().Format(time.RFC3339Nano)), nil
	}
	if m := nowArithmeticRE.FindStringSubmatch(expr); m != nil {
		n, _ := strconv.Atoi(m[2])
		d := unitDuration(m[3]) * time.Duration(n)
		if m[1] == "-" {
			d = -d
		}
		return domain.StringValue(ctx.Now.Add(d).UTC().Format(time.RFC3339Nano)), nil
	}

	data := ctx.AsValue().AsInterface()
	result, err := jmespath.Search(expr, data)
	if err != nil {
		return domain.NullValue(), orbiterrors.Wrap(orbiterrors.KindTemplate, "evaluate expression: "+expr, err)
	}
	if result == nil {
		return domain.NullValue(), orbiterrors.New(orbiterrors.KindTemplate, "unresolved reference: "+expr)
	}
	return domain.FromInterface(result), nil
}

func unitDuration(unit string) time.Duration {
	switch unit {
	case "s":
		return time.Second
	case "m":
		return time.Minute
	case "h":
		return time.Hour
	case "d":
		return 24 * time.Hour
	default:
		return 0
	}
}

func stringify(v domain.Value) string {
	switch v.Kind() {
	case domain.KindString:
		s, _ := v.String()
		return s
	case domain.KindNumber:
		n, _ := v.Number()
		if n == float64(int64(n)) {
			return strconv.FormatInt(int64(n), 10)
		}
		return strconv.FormatFloat(n, 'f', -1, 64)
	case domain.KindBool:
		b, _ := v.Bool()
		return strconv.FormatBool(b)
	case domain.KindNull:
		return ""
	default:
		return fmt.Sprintf("%v", v.AsInterface())
	}
}
