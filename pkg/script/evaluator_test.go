package script

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestEvaluator_Evaluate(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	e := NewEvaluator(logger)

	t.Run("simple transform", func(t *testing.T) {
		v, err := e.Evaluate(context.Background(), `
def transform(value, attribute):
    return value.upper()
`, map[string]any{"value": "john", "attribute": "uid"})
		require.NoError(t, err)
		assert.Equal(t, "JOHN", v)
	})

	t.Run("list result", func(t *testing.T) {
		v, err := e.Evaluate(context.Background(), `
def transform(value):
    return [g for g in value if g != "skip"]
`, map[string]any{"value": []any{"A", "skip", "B"}})
		require.NoError(t, err)
		assert.Equal(t, []any{"A", "B"}, v)
	})

	t.Run("none result", func(t *testing.T) {
		v, err := e.Evaluate(context.Background(), `
def transform(value):
    return None
`, map[string]any{"value": "x"})
		require.NoError(t, err)
		assert.Nil(t, v)
	})

	t.Run("builtins available", func(t *testing.T) {
		v, err := e.Evaluate(context.Background(), `
def transform(value):
    return json.decode(json.encode({"a": value}))["a"]
`, map[string]any{"value": "roundtrip"})
		require.NoError(t, err)
		assert.Equal(t, "roundtrip", v)
	})

	t.Run("missing transform function fails", func(t *testing.T) {
		_, err := e.Evaluate(context.Background(), `x = 1`, nil)
		require.Error(t, err)
	})

	t.Run("entity map argument", func(t *testing.T) {
		v, err := e.Evaluate(context.Background(), `
def transform(value, entity):
    return entity["firstName"] + "." + entity["lastName"]
`, map[string]any{
			"value":  nil,
			"entity": map[string]any{"firstName": "john", "lastName": "doe"},
		})
		require.NoError(t, err)
		assert.Equal(t, "john.doe", v)
	})
}
