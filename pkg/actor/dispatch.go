package actor

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"sort"
)

var (
	contextType = reflect.TypeOf((*Context)(nil))
	blockType   = reflect.TypeOf(Block(nil))
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
	refType     = reflect.TypeOf((*Ref)(nil))
)

// methodInfo 一个可被调用的方法；在 Spawn 时通过反射生成
type methodInfo struct {
	name  string
	fn    reflect.Value
	// params 去掉 *Context 和 Block 之后的参数类型
	params       []reflect.Type
	variadic     bool
	wantsContext bool
	wantsBlock   bool
	returnsError bool
	numOut       int
}

// methodTable 方法名到方法的映射
type methodTable map[string]*methodInfo

// hookMethods 实现了生命周期接口时不对外暴露的方法
var hookMethods = map[string]func(any) bool{
	"Init":       func(v any) bool { _, ok := v.(Initializer); return ok },
	"Finalize":   func(v any) bool { _, ok := v.(Finalizer); return ok },
	"HandleExit": func(v any) bool { _, ok := v.(ExitHandler); return ok },
}

func buildMethodTable(subject any) (methodTable, error) {
	if subject == nil {
		return nil, errors.New("actor subject is nil")
	}
	v := reflect.ValueOf(subject)
	t := v.Type()
	table := make(methodTable, t.NumMethod())
	for i := 0; i < t.NumMethod(); i++ {
		m := t.Method(i)
		if hidden, ok := hookMethods[m.Name]; ok && hidden(subject) {
			continue
		}
		table[m.Name] = newMethodInfo(m.Name, v.Method(i))
	}
	return table, nil
}

func newMethodInfo(name string, fn reflect.Value) *methodInfo {
	ft := fn.Type()
	info := &methodInfo{
		name:     name,
		fn:       fn,
		variadic: ft.IsVariadic(),
		numOut:   ft.NumOut(),
	}

	in := make([]reflect.Type, 0, ft.NumIn())
	for i := 0; i < ft.NumIn(); i++ {
		in = append(in, ft.In(i))
	}
	if len(in) > 0 && in[0] == contextType {
		info.wantsContext = true
		in = in[1:]
	}
	if !info.variadic && len(in) > 0 && in[len(in)-1] == blockType {
		info.wantsBlock = true
		in = in[:len(in)-1]
	}
	info.params = in

	if info.numOut > 0 && ft.Out(info.numOut-1) == errorType {
		info.returnsError = true
	}
	return info
}

// lookup 查找方法并校验参数
func (t methodTable) lookup(method string, args []any) (*methodInfo, error) {
	info, ok := t[method]
	if !ok {
		return nil, &NoMethodError{Method: method}
	}
	if err := info.validate(args); err != nil {
		return nil, err
	}
	return info, nil
}

// names 已排序的方法名
func (t methodTable) names() []string {
	out := make([]string, 0, len(t))
	for name := range t {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// validate 校验参数个数与类型，不调用方法
func (m *methodInfo) validate(args []any) error {
	fixed := len(m.params)
	if m.variadic {
		fixed--
		if len(args) < fixed {
			return &ArityError{Method: m.name, Want: fixed, Got: len(args), Variadic: true}
		}
	} else if len(args) != fixed {
		return &ArityError{Method: m.name, Want: fixed, Got: len(args)}
	}
	for i, arg := range args {
		if _, err := convertArg(arg, m.paramType(i)); err != nil {
			return &ArgumentError{Method: m.name, Index: i, Want: m.paramType(i).String(), Got: typeName(arg)}
		}
	}
	return nil
}

// checkSignature 校验方法恰好接收 types 类型的参数，用于 Spawn 时检查按名称指定的生命周期方法
func (m *methodInfo) checkSignature(types ...reflect.Type) error {
	if m.variadic || len(m.params) != len(types) {
		return &ArityError{Method: m.name, Want: len(m.params), Got: len(types), Variadic: m.variadic}
	}
	for i, t := range types {
		if !t.AssignableTo(m.params[i]) {
			return &ArgumentError{Method: m.name, Index: i, Want: m.params[i].String(), Got: t.String()}
		}
	}
	return nil
}

func (m *methodInfo) paramType(i int) reflect.Type {
	if m.variadic && i >= len(m.params)-1 {
		return m.params[len(m.params)-1].Elem()
	}
	return m.params[i]
}

// invoke 调用方法；返回值规则：末尾 error 作为错误，其余 0 个为 nil，1 个原样，多个为 []any
func (m *methodInfo) invoke(ctx *Context, args []any, block Block) (any, error) {
	in := make([]reflect.Value, 0, len(args)+2)
	if m.wantsContext {
		in = append(in, reflect.ValueOf(ctx))
	}
	for i, arg := range args {
		v, err := convertArg(arg, m.paramType(i))
		if err != nil {
			return nil, &ArgumentError{Method: m.name, Index: i, Want: m.paramType(i).String(), Got: typeName(arg)}
		}
		in = append(in, v)
	}
	if m.wantsBlock {
		in = append(in, reflect.ValueOf(block))
	}

	out := m.fn.Call(in)

	var err error
	if m.returnsError {
		if e := out[len(out)-1]; !e.IsNil() {
			err = e.Interface().(error)
		}
		out = out[:len(out)-1]
	}
	switch len(out) {
	case 0:
		return nil, err
	case 1:
		return out[0].Interface(), err
	default:
		values := make([]any, len(out))
		for i, v := range out {
			values[i] = v.Interface()
		}
		return values, err
	}
}

// convertArg 把参数转为形参类型；允许 nil 传给可为 nil 的类型，允许数值类型之间的无损转换
func convertArg(arg any, want reflect.Type) (reflect.Value, error) {
	if arg == nil {
		switch want.Kind() {
		case reflect.Interface, reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
			return reflect.Zero(want), nil
		default:
			return reflect.Value{}, fmt.Errorf("nil is not assignable to %s", want)
		}
	}
	v := reflect.ValueOf(arg)
	if v.Type().AssignableTo(want) {
		return v, nil
	}
	if isNumeric(v.Kind()) && isNumeric(want.Kind()) {
		if !lossless(v, want) {
			return reflect.Value{}, fmt.Errorf("%v does not fit in %s", arg, want)
		}
		return v.Convert(want), nil
	}
	return reflect.Value{}, fmt.Errorf("%s is not assignable to %s", v.Type(), want)
}

// lossless 数值 v 转为 want 后值不变
func lossless(v reflect.Value, want reflect.Type) bool {
	dst := reflect.New(want).Elem()
	switch {
	case isInt(v.Kind()):
		n := v.Int()
		switch {
		case isInt(want.Kind()):
			return !dst.OverflowInt(n)
		case isUint(want.Kind()):
			return n >= 0 && !dst.OverflowUint(uint64(n))
		default:
			return true
		}
	case isUint(v.Kind()):
		n := v.Uint()
		switch {
		case isInt(want.Kind()):
			return n <= math.MaxInt64 && !dst.OverflowInt(int64(n))
		case isUint(want.Kind()):
			return !dst.OverflowUint(n)
		default:
			return true
		}
	default:
		f := v.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return want.Kind() == reflect.Float32 || want.Kind() == reflect.Float64
		}
		switch {
		case isInt(want.Kind()):
			return f == math.Trunc(f) && f >= math.MinInt64 && f < math.MaxInt64 && !dst.OverflowInt(int64(f))
		case isUint(want.Kind()):
			return f == math.Trunc(f) && f >= 0 && f < math.MaxUint64 && !dst.OverflowUint(uint64(f))
		default:
			return !dst.OverflowFloat(f)
		}
	}
}

func isInt(k reflect.Kind) bool {
	return k >= reflect.Int && k <= reflect.Int64
}

func isUint(k reflect.Kind) bool {
	return k >= reflect.Uint && k <= reflect.Uint64
}

func isNumeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	default:
		return false
	}
}

func typeName(v any) string {
	if v == nil {
		return "nil"
	}
	return reflect.TypeOf(v).String()
}
