package modifier

import (
	"encoding/json"
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cuejson "cuelang.org/go/encoding/json"

	"github.com/jmbish04/october-visit-2025/internal/merge"
)

// batchSchema constrains engine responses. Definitions are closed, so a
// misspelled field is a validation error rather than a silently ignored key.
const batchSchema = `
#Ref: {
	entity_id: string & !=""
}

#Add: {
	entity_id: string & !=""
	position?: int & >=0
}

#Update: {
	day:     int & >=1
	order?:  [...#Ref]
	add?:    [...#Add]
	remove?: [...#Ref]
	notes?:  string
}

#Batch: {
	updates:   [...#Update]
	metadata?: {...}
}
`

var (
	schemaOnce sync.Once
	schemaCtx  *cue.Context
	schemaDef  cue.Value
	schemaErr  error
)

func loadSchema() (*cue.Context, cue.Value, error) {
	schemaOnce.Do(func() {
		schemaCtx = cuecontext.New()
		v := schemaCtx.CompileString(batchSchema, cue.Filename("batch.cue"))
		if err := v.Err(); err != nil {
			schemaErr = fmt.Errorf("compile batch schema: %w", err)
			return
		}
		schemaDef = v.LookupPath(cue.ParsePath("#Batch"))
	})
	return schemaCtx, schemaDef, schemaErr
}

// SchemaError reports an engine response that does not match the batch schema.
type SchemaError struct {
	Err error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("engine response rejected: %v", e.Err)
}

func (e *SchemaError) Unwrap() error {
	return e.Err
}

// DecodeBatch validates a raw engine response and decodes it.
// Empty payloads, payloads without "updates", and payloads that violate the
// schema all fail with *SchemaError.
func DecodeBatch(data []byte) (merge.Batch, error) {
	if len(data) == 0 {
		return merge.Batch{}, &SchemaError{Err: fmt.Errorf("response missing payload")}
	}

	ctx, def, err := loadSchema()
	if err != nil {
		return merge.Batch{}, err
	}

	expr, err := cuejson.Extract("response.json", data)
	if err != nil {
		return merge.Batch{}, &SchemaError{Err: fmt.Errorf("parse: %w", err)}
	}
	v := ctx.BuildExpr(expr)
	if err := v.Err(); err != nil {
		return merge.Batch{}, &SchemaError{Err: err}
	}
	if v.Kind() != cue.StructKind {
		return merge.Batch{}, &SchemaError{Err: fmt.Errorf("response must be an object, got %s", v.Kind())}
	}
	if !v.LookupPath(cue.ParsePath("updates")).Exists() {
		return merge.Batch{}, &SchemaError{Err: fmt.Errorf("response missing updates")}
	}

	unified := def.Unify(v)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return merge.Batch{}, &SchemaError{Err: err}
	}

	var b merge.Batch
	if err := json.Unmarshal(data, &b); err != nil {
		return merge.Batch{}, &SchemaError{Err: fmt.Errorf("decode: %w", err)}
	}
	return b, nil
}
