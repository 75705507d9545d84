package ember

import (
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/valyala/fastjson"

	"github.com/emberhttp/ember/internal/workerpool"
)

// bindHandler adapts an arbitrary handler value to the uniform Handler
// shape. The common case — func(*Ctx) and func(*Ctx) error — is handled
// without reflection; anything else goes through the reflective executor
// factory built once at registration time, per the Design Notes.
func bindHandler(h any, policy HandlerResultPolicy) Handler {
	switch v := h.(type) {
	case Handler:
		return v
	case func(*Ctx):
		return v
	case Middleware:
		return Handler(v)
	case func(*Ctx) error:
		return func(c *Ctx) {
			if err := v(c); err != nil {
				c.Error(err)
			}
		}
	default:
		return buildReflectiveExecutor(h, policy)
	}
}

var (
	ctxType   = reflect.TypeOf((*Ctx)(nil))
	errorType = reflect.TypeOf((*error)(nil)).Elem()
)

// returnKind classifies a handler's return signature per §4.6 step 2.
type returnKind int

const (
	retVoid returnKind = iota
	retSyncValue
	retFutureVoid
	retFutureValue
)

// buildReflectiveExecutor inspects handler's parameter list and return
// type once, and returns a closure that does no further reflection on
// subsequent calls — the core contract of §4.6 step 5.
func buildReflectiveExecutor(handler any, policy HandlerResultPolicy) Handler {
	fn := reflect.ValueOf(handler)
	fnType := fn.Type()
	if fnType.Kind() != reflect.Func {
		panic("ember: route handler must be a function")
	}

	numIn := fnType.NumIn()
	ctxParamIndex := -1
	var structParamIndex = -1
	var structType reflect.Type

	for i := 0; i < numIn; i++ {
		in := fnType.In(i)
		switch {
		case in == ctxType:
			ctxParamIndex = i
		case in.Kind() == reflect.Struct:
			structParamIndex = i
			structType = in
		}
	}

	kind, hasError := classifyReturn(fnType)
	var fieldBinders []structFieldBinder
	if structParamIndex >= 0 {
		fieldBinders = compileStructBinders(structType)
	}

	return func(c *Ctx) {
		args := make([]reflect.Value, numIn)
		for i := 0; i < numIn; i++ {
			switch i {
			case ctxParamIndex:
				args[i] = reflect.ValueOf(c)
			case structParamIndex:
				args[i] = bindStruct(c, structType, fieldBinders)
			default:
				args[i] = reflect.Zero(fnType.In(i))
			}
		}

		results := fn.Call(args)
		dispatchResult(c, policy, kind, hasError, results)
	}
}

func classifyReturn(fnType reflect.Type) (returnKind, bool) {
	n := fnType.NumOut()
	if n == 0 {
		return retVoid, false
	}
	last := fnType.Out(n - 1)
	hasError := last == errorType

	valueOuts := n
	if hasError {
		valueOuts--
	}
	if valueOuts == 0 {
		return retVoid, hasError
	}

	first := fnType.Out(0)
	if first.Kind() == reflect.Chan && first.ChanDir() != reflect.SendDir {
		if first.Elem() == errorType {
			return retFutureVoid, hasError
		}
		return retFutureValue, hasError
	}
	return retSyncValue, hasError
}

func dispatchResult(c *Ctx, policy HandlerResultPolicy, kind returnKind, hasError bool, results []reflect.Value) {
	switch kind {
	case retVoid:
		if hasError && len(results) > 0 {
			if err := asError(results[len(results)-1]); err != nil {
				c.Error(err)
			}
		}
	case retSyncValue:
		if hasError {
			if err := asError(results[len(results)-1]); err != nil {
				c.Error(err)
				return
			}
		}
		if result := results[0].Interface(); result != nil {
			policy(c, result)
		}
	case retFutureVoid, retFutureValue:
		ch := results[0]
		c.markAsyncPending()
		workerpool.Submit(func() {
			c.finishAsync(func() {
				recv, ok := ch.Recv()
				if !ok {
					return
				}
				if kind == retFutureVoid {
					if err := asError(recv); err != nil {
						c.Error(err)
					}
					return
				}
				if result := recv.Interface(); result != nil {
					policy(c, result)
				}
			})
		})
	}
}

func asError(v reflect.Value) error {
	if v.IsNil() {
		return nil
	}
	if err, ok := v.Interface().(error); ok {
		return err
	}
	return nil
}

// structFieldBinder binds one struct field from route_values or query.
type structFieldBinder struct {
	index        int
	name         string // route_values / query key (case-sensitive lookup)
	defaultLiteral string
}

func compileStructBinders(t reflect.Type) []structFieldBinder {
	out := make([]structFieldBinder, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name := f.Tag.Get("route")
		if name == "" {
			name = f.Tag.Get("query")
		}
		if name == "" {
			name = f.Name
		}
		out = append(out, structFieldBinder{
			index:          i,
			name:           name,
			defaultLiteral: f.Tag.Get("default"),
		})
	}
	return out
}

// bindStruct fills one instance of structType per §4.6 step 3-4: look up
// route_values[name] falling back to query[name]; attempt conversion;
// failure (missing value or bad conversion) falls back to the field's
// declared default (a JSON literal, parsed with fastjson) or else the
// type's zero value.
func bindStruct(c *Ctx, structType reflect.Type, binders []structFieldBinder) reflect.Value {
	out := reflect.New(structType).Elem()
	for _, b := range binders {
		field := out.Field(b.index)
		raw, ok := c.Request.RouteValues[b.name]
		if !ok {
			raw, ok = c.Request.Query[b.name]
		}
		if ok && setScalar(field, raw) {
			continue
		}
		if b.defaultLiteral != "" {
			setFromJSONLiteral(field, b.defaultLiteral)
		}
	}
	return out
}

// setScalar performs a supported string-to-target conversion; returns
// false (leaving field untouched) on any failure, per §4.6 step 4's
// "falls back to the default value, not an error".
func setScalar(field reflect.Value, raw string) bool {
	switch field.Kind() {
	case reflect.String:
		field.SetString(raw)
		return true
	case reflect.Bool:
		switch raw {
		case "true", "1":
			field.SetBool(true)
			return true
		case "false", "0":
			field.SetBool(false)
			return true
		}
		return false
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			// Not a number: try it as an enum name (see matchEnumName).
			return matchEnumName(field, raw)
		}
		field.SetInt(n)
		return true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return false
		}
		field.SetUint(n)
		return true
	case reflect.Float32, reflect.Float64:
		n, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return false
		}
		field.SetFloat(n)
		return true
	}

	switch field.Interface().(type) {
	case time.Time:
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return false
		}
		field.Set(reflect.ValueOf(t))
		return true
	case uuid.UUID:
		id, err := uuid.Parse(raw)
		if err != nil {
			return false
		}
		field.Set(reflect.ValueOf(id))
		return true
	}

	// Enum by case-insensitive name: any named int type whose underlying
	// type has a String() method we can match against.
	if field.Kind() >= reflect.Int && field.Kind() <= reflect.Int64 {
		return matchEnumName(field, raw)
	}
	return false
}

func matchEnumName(field reflect.Value, raw string) bool {
	t := field.Type()
	stringer, ok := reflect.New(t).Interface().(interface{ String() string })
	if !ok {
		return false
	}
	// Probe a small range; enum sets in this codebase are single-digit.
	for i := int64(0); i < 64; i++ {
		candidate := reflect.New(t).Elem()
		candidate.SetInt(i)
		if s, ok := candidate.Addr().Interface().(interface{ String() string }); ok {
			if strings.EqualFold(s.String(), raw) {
				field.SetInt(i)
				return true
			}
		}
	}
	_ = stringer
	return false
}

// setFromJSONLiteral parses a `default:"..."` tag value as a loosely typed
// JSON literal via valyala/fastjson's zero-alloc scanner.
func setFromJSONLiteral(field reflect.Value, literal string) {
	v, err := fastjson.Parse(literal)
	if err != nil {
		return
	}
	switch field.Kind() {
	case reflect.String:
		if sb := v.GetStringBytes(); sb != nil {
			field.SetString(string(sb))
		} else {
			field.SetString(literal)
		}
	case reflect.Bool:
		field.SetBool(v.GetBool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		field.SetInt(v.GetInt64())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		field.SetUint(uint64(v.GetInt64()))
	case reflect.Float32, reflect.Float64:
		field.SetFloat(v.GetFloat64())
	}
}
