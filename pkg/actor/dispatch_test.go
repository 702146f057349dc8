package actor

import (
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type dispatchSubject struct{}

func (dispatchSubject) Plain(a int, b string) string { return b }
func (dispatchSubject) WithContext(ctx *Context) bool { return ctx != nil }
func (dispatchSubject) Variadic(prefix string, n ...int) int { return len(n) }
func (dispatchSubject) WithBlock(n int, block Block) any { return block(n) }
func (dispatchSubject) Pointer(p *int) bool { return p == nil }
func (dispatchSubject) Nothing() {}
func (dispatchSubject) Unsigned(n uint) uint { return n }
func (dispatchSubject) Init(*Context) error { return nil }

func TestBuildMethodTable(t *testing.T) {
	table, err := buildMethodTable(dispatchSubject{})
	require.NoError(t, err)

	assert.Equal(t, []string{"Nothing", "Plain", "Pointer", "Unsigned", "Variadic", "WithBlock", "WithContext"}, table.names())
	assert.NotContains(t, table, "Init")

	assert.True(t, table["WithContext"].wantsContext)
	assert.Empty(t, table["WithContext"].params)
	assert.True(t, table["WithBlock"].wantsBlock)
	assert.Len(t, table["WithBlock"].params, 1)
	assert.True(t, table["Variadic"].variadic)
}

func TestLookupValidation(t *testing.T) {
	table, err := buildMethodTable(dispatchSubject{})
	require.NoError(t, err)

	_, err = table.lookup("Plain", []any{1, "x"})
	assert.NoError(t, err)

	_, err = table.lookup("Plain", []any{1})
	var arity *ArityError
	require.ErrorAs(t, err, &arity)
	assert.Equal(t, "wrong number of arguments for Plain (given 1, expected 2)", arity.Error())

	_, err = table.lookup("Plain", []any{"x", "y"})
	var argErr *ArgumentError
	require.ErrorAs(t, err, &argErr)
	assert.Equal(t, "int", argErr.Want)
	assert.Equal(t, "string", argErr.Got)

	_, err = table.lookup("Variadic", nil)
	require.ErrorAs(t, err, &arity)
	assert.True(t, arity.Variadic)

	_, err = table.lookup("Variadic", []any{"p", 1, 2, 3})
	assert.NoError(t, err)

	_, err = table.lookup("Variadic", []any{"p", 1, "two"})
	require.ErrorAs(t, err, &argErr)
	assert.Equal(t, 2, argErr.Index)

	_, err = table.lookup("Pointer", []any{nil})
	assert.NoError(t, err)

	// 有损的数值转换在分发前被拒绝
	_, err = table.lookup("Plain", []any{1.9, "x"})
	require.ErrorAs(t, err, &argErr)
	assert.Equal(t, 0, argErr.Index)
	assert.Equal(t, "float64", argErr.Got)

	_, err = table.lookup("Unsigned", []any{-1})
	require.ErrorAs(t, err, &argErr)
	assert.Equal(t, "uint", argErr.Want)

	_, err = table.lookup("Unsigned", []any{int64(3)})
	assert.NoError(t, err)

	_, err = table.lookup("Missing", nil)
	var noMethod *NoMethodError
	assert.ErrorAs(t, err, &noMethod)
}

func TestInvoke(t *testing.T) {
	table, err := buildMethodTable(dispatchSubject{})
	require.NoError(t, err)
	ctx := &Context{}

	v, err := table["WithContext"].invoke(ctx, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, true, v)

	v, err = table["Variadic"].invoke(ctx, []any{"p", 1, 2}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, v)

	v, err = table["WithBlock"].invoke(ctx, []any{3}, func(args ...any) any { return args[0].(int) + 1 })
	require.NoError(t, err)
	assert.Equal(t, 4, v)

	v, err = table["Nothing"].invoke(ctx, nil, nil)
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestConvertArg(t *testing.T) {
	intType := reflect.TypeOf(0)

	v, err := convertArg(int64(7), intType)
	require.NoError(t, err)
	assert.Equal(t, 7, v.Interface())

	v, err = convertArg(2.0, intType)
	require.NoError(t, err)
	assert.Equal(t, 2, v.Interface())

	_, err = convertArg(nil, intType)
	assert.Error(t, err)

	v, err = convertArg(nil, reflect.TypeOf((*error)(nil)).Elem())
	require.NoError(t, err)
	assert.True(t, v.IsNil())

	_, err = convertArg("x", intType)
	assert.Error(t, err)
}

func TestConvertArgNumeric(t *testing.T) {
	tests := []struct {
		name string
		arg  any
		want reflect.Type
		ok   bool
		out  any
	}{
		{"int to int8", 127, reflect.TypeOf(int8(0)), true, int8(127)},
		{"int overflows int8", 128, reflect.TypeOf(int8(0)), false, nil},
		{"negative int to uint", -1, reflect.TypeOf(uint(0)), false, nil},
		{"int to uint", 5, reflect.TypeOf(uint(0)), true, uint(5)},
		{"uint to uint8", uint(255), reflect.TypeOf(uint8(0)), true, uint8(255)},
		{"uint overflows uint8", uint(256), reflect.TypeOf(uint8(0)), false, nil},
		{"uint64 overflows int64", uint64(1 << 63), reflect.TypeOf(int64(0)), false, nil},
		{"uint to int", uint32(9), reflect.TypeOf(0), true, 9},
		{"int to float", 3, reflect.TypeOf(0.0), true, 3.0},
		{"fractional float to int", 1.9, reflect.TypeOf(0), false, nil},
		{"integral float to int", 4.0, reflect.TypeOf(0), true, 4},
		{"negative float to uint", -2.0, reflect.TypeOf(uint(0)), false, nil},
		{"float overflows int32", 1e10, reflect.TypeOf(int32(0)), false, nil},
		{"float64 to float32", 0.5, reflect.TypeOf(float32(0)), true, float32(0.5)},
		{"float64 overflows float32", 1e300, reflect.TypeOf(float32(0)), false, nil},
		{"int to duration", 1000, reflect.TypeOf(time.Duration(0)), true, time.Duration(1000)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := convertArg(tt.arg, tt.want)
			if !tt.ok {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.out, v.Interface())
		})
	}
}
