package graph

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"strings"
	"unicode"

	"monarchmail-be/internal/apperr"
	"monarchmail-be/internal/utils"

	"github.com/99designs/gqlgen/graphql"
	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
)

//go:embed schema.graphqls
var schemaSource string

var parsedSchema = gqlparser.MustLoadSchema(&ast.Source{Name: "schema.graphqls", Input: schemaSource})

var null = json.RawMessage("null")

// fieldFunc resolves one root field. Its result is encoded with the domain
// JSON tags and projected onto the selection set.
type fieldFunc func(ctx context.Context, args map[string]any) (any, error)

type executableSchema struct {
	query    map[string]fieldFunc
	mutation map[string]fieldFunc
}

func NewSchema(r *Resolver) graphql.ExecutableSchema {
	return &executableSchema{query: r.queries(), mutation: r.mutations()}
}

func (e *executableSchema) Schema() *ast.Schema { return parsedSchema }

// Complexity leaves every field at the default cost.
func (e *executableSchema) Complexity(ctx context.Context, typeName, fieldName string, childComplexity int, args map[string]any) (int, bool) {
	return 0, false
}

func (e *executableSchema) Exec(ctx context.Context) graphql.ResponseHandler {
	opCtx := graphql.GetOperationContext(ctx)

	var root string
	var fields map[string]fieldFunc
	switch opCtx.Operation.Operation {
	case ast.Query:
		root, fields = "Query", e.query
	case ast.Mutation:
		root, fields = "Mutation", e.mutation
	default:
		return graphql.OneShot(graphql.ErrorResponse(ctx, "unsupported GraphQL operation"))
	}

	first := true
	return func(ctx context.Context) *graphql.Response {
		if !first {
			return nil
		}
		first = false
		return &graphql.Response{Data: execRoot(ctx, opCtx, root, fields)}
	}
}

// execRoot runs root fields in document order. Mutations must not overlap,
// so queries are not parallelised either.
func execRoot(ctx context.Context, opCtx *graphql.OperationContext, root string, fields map[string]fieldFunc) json.RawMessage {
	var out object
	for _, field := range graphql.CollectFields(opCtx, opCtx.Operation.SelectionSet, []string{root}) {
		if field.Name == "__typename" {
			out.add(field.Alias, quote(root))
			continue
		}
		fctx := graphql.WithFieldContext(ctx, &graphql.FieldContext{
			Object:     root,
			Field:      field,
			Args:       field.ArgumentMap(opCtx.Variables),
			IsMethod:   true,
			IsResolver: true,
		})
		out.add(field.Alias, resolveField(fctx, opCtx, field, fields[field.Name]))
	}
	return out.bytes()
}

func resolveField(ctx context.Context, opCtx *graphql.OperationContext, field graphql.CollectedField, resolve fieldFunc) (ret json.RawMessage) {
	defer func() {
		if r := recover(); r != nil {
			graphql.AddError(ctx, opCtx.Recover(ctx, r))
			ret = null
		}
	}()

	if resolve == nil {
		graphql.AddError(ctx, errIntrospection)
		return null
	}
	if field.Definition != nil && field.Definition.Directives.ForName("auth") != nil {
		if _, ok := utils.GetUserIDFromContext(ctx); !ok {
			graphql.AddError(ctx, apperr.ErrUnauthenticated)
			return null
		}
	}

	res, err := resolve(ctx, graphql.GetFieldContext(ctx).Args)
	if err != nil {
		graphql.AddError(ctx, err)
		return null
	}

	raw, err := json.Marshal(res)
	if err != nil {
		graphql.AddError(ctx, err)
		return null
	}
	var v any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		graphql.AddError(ctx, err)
		return null
	}
	return project(opCtx, field.Selections, field.Definition.Type.Name(), v)
}

// project keeps the selected fields of v. Object keys are the snake_case
// form of the GraphQL field names; leaves and Map scalars pass through.
func project(opCtx *graphql.OperationContext, sel ast.SelectionSet, typeName string, v any) json.RawMessage {
	if v == nil {
		return null
	}
	if len(sel) == 0 {
		raw, err := json.Marshal(v)
		if err != nil {
			return null
		}
		return raw
	}

	switch t := v.(type) {
	case []any:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, item := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			buf.Write(project(opCtx, sel, typeName, item))
		}
		buf.WriteByte(']')
		return buf.Bytes()
	case map[string]any:
		var out object
		for _, f := range graphql.CollectFields(opCtx, sel, []string{typeName}) {
			if f.Name == "__typename" {
				out.add(f.Alias, quote(typeName))
				continue
			}
			out.add(f.Alias, project(opCtx, f.Selections, f.Definition.Type.Name(), t[snake(f.Name)]))
		}
		return out.bytes()
	default:
		return null
	}
}

// object writes members in selection order.
type object struct {
	buf bytes.Buffer
	n   int
}

func (o *object) add(key string, value json.RawMessage) {
	if o.n == 0 {
		o.buf.WriteByte('{')
	} else {
		o.buf.WriteByte(',')
	}
	o.n++
	o.buf.Write(quote(key))
	o.buf.WriteByte(':')
	o.buf.Write(value)
}

func (o *object) bytes() json.RawMessage {
	if o.n == 0 {
		return json.RawMessage("{}")
	}
	return append(o.buf.Bytes(), '}')
}

func quote(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}

func snake(name string) string {
	var b strings.Builder
	for i, r := range name {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}
