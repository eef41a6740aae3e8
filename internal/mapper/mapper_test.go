package mapper

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ankitjan/rules-engine/internal/field"
)

var customerDoc = map[string]any{
	"data": map[string]any{
		"customer": map[string]any{
			"creditScore": float64(720),
			"address":     nil,
			"orders": []any{
				map[string]any{"id": "o1", "total": float64(100), "active": true},
				map[string]any{"id": "o2", "total": float64(250), "active": false},
			},
		},
	},
}

func TestExtract(t *testing.T) {
	v, err := Extract(customerDoc, "data.customer.creditScore")
	require.NoError(t, err)
	assert.Equal(t, float64(720), v)
}

func TestExtract_Index(t *testing.T) {
	v, err := Extract(customerDoc, "data.customer.orders[1].id")
	require.NoError(t, err)
	assert.Equal(t, "o2", v)
}

func TestExtract_Filter(t *testing.T) {
	v, err := Extract(customerDoc, "data.customer.orders[active=true].total")
	require.NoError(t, err)
	assert.Equal(t, float64(100), v)

	v, err = Extract(customerDoc, `data.customer.orders[id="o2"].total`)
	require.NoError(t, err)
	assert.Equal(t, float64(250), v)
}

func TestExtract_NullCollapses(t *testing.T) {
	cases := []string{
		"data.customer.address.zip",
		"data.customer.missing",
		"data.customer.missing.deeper",
		"data.customer.orders[9].id",
		"data.customer.orders[active=maybe].id",
		"data.customer.orders[active=maybe].id.deeper",
	}
	for _, expr := range cases {
		v, err := Extract(customerDoc, expr)
		require.NoError(t, err, expr)
		assert.Nil(t, v, expr)
	}
}

func TestExtract_TypeMismatch(t *testing.T) {
	_, err := Extract(customerDoc, "data.customer.creditScore.digits")
	var merr *MappingError
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, "data.customer.creditScore.digits", merr.Expression)

	_, err = Extract(customerDoc, "data.customer[0]")
	require.ErrorAs(t, err, &merr)
}

func TestExtract_BadExpression(t *testing.T) {
	var merr *MappingError
	for _, expr := range []string{"", "a..b", "a[", "a[x]"} {
		_, err := Extract(customerDoc, expr)
		require.ErrorAs(t, err, &merr, expr)
	}
}

func TestConvertType(t *testing.T) {
	v, err := ConvertType("42.5", field.TypeNumber)
	require.NoError(t, err)
	assert.Equal(t, 42.5, v)

	v, err = ConvertType(720, field.TypeString)
	require.NoError(t, err)
	assert.Equal(t, "720", v)

	v, err = ConvertType("true", field.TypeBoolean)
	require.NoError(t, err)
	assert.Equal(t, true, v)

	v, err = ConvertType("2024-06-01", field.TypeDate)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), v)

	v, err = ConvertType("2024-06-01T10:30:00Z", field.TypeDate)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 6, 1, 10, 30, 0, 0, time.UTC), v)

	v, err = ConvertType([]any{"a", "b"}, field.TypeArray)
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff([]any{"a", "b"}, v))

	v, err = ConvertType(map[string]any{"k": 1}, field.TypeObject)
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(map[string]any{"k": 1}, v))
}

func TestConvertType_NilStaysNil(t *testing.T) {
	for _, ft := range []field.Type{
		field.TypeString, field.TypeNumber, field.TypeBoolean,
		field.TypeDate, field.TypeArray, field.TypeObject,
	} {
		v, err := ConvertType(nil, ft)
		require.NoError(t, err, ft)
		assert.Nil(t, v, ft)
	}
}

func TestConvertType_Failures(t *testing.T) {
	var merr *MappingError
	_, err := ConvertType("not a number", field.TypeNumber)
	require.ErrorAs(t, err, &merr)

	_, err = ConvertType("june first", field.TypeDate)
	require.ErrorAs(t, err, &merr)

	_, err = ConvertType("scalar", field.TypeObject)
	require.ErrorAs(t, err, &merr)
}
