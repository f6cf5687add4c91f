package tools

import (
	"context"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noop(context.Context, map[string]any) (any, error) { return "ok", nil }

func TestNewRegistryRejectsDuplicates(t *testing.T) {
	_, err := NewRegistry(
		Tool{Name: "a", Execute: noop},
		Tool{Name: "a", Execute: noop},
	)
	assert.Error(t, err)

	_, err = NewRegistry(Tool{Name: "", Execute: noop})
	assert.Error(t, err)

	_, err = NewRegistry(Tool{Name: "b"})
	assert.Error(t, err)

	_, err = NewRegistry(Tool{Name: "c", Execute: noop, Params: map[string]Param{"x": {Kind: KindEnum}}})
	assert.Error(t, err)
}

func TestRegistryKeepsRegistrationOrder(t *testing.T) {
	reg, err := NewRegistry(
		Tool{Name: "zeta", Execute: noop},
		Tool{Name: "alpha", Execute: noop},
	)
	require.NoError(t, err)

	infos := reg.ToolInfos()
	require.Len(t, infos, 2)
	assert.Equal(t, "zeta", infos[0].Name)
	assert.Equal(t, "alpha", infos[1].Name)

	_, ok := reg.Get("missing")
	assert.False(t, ok)
}

func TestToolInfoMapsKinds(t *testing.T) {
	tool := Tool{
		Name:        "t",
		Description: "desc",
		Execute:     noop,
		Params: map[string]Param{
			"s": {Kind: KindString, Required: true, Desc: "a string"},
			"n": {Kind: KindNumber},
			"b": {Kind: KindBoolean},
			"e": {Kind: KindEnum, Enum: []string{"x", "y"}},
		},
	}

	info := tool.Info()
	assert.Equal(t, "t", info.Name)
	assert.Equal(t, "desc", info.Desc)
	require.NotNil(t, info.ParamsOneOf)

	params := tool.parameterInfos()
	assert.Equal(t, schema.String, params["s"].Type)
	assert.True(t, params["s"].Required)
	assert.Equal(t, schema.Number, params["n"].Type)
	assert.Equal(t, schema.Boolean, params["b"].Type)
	assert.Equal(t, schema.String, params["e"].Type)
	assert.Equal(t, []string{"x", "y"}, params["e"].Enum)
}

func TestNormalize(t *testing.T) {
	tool := Tool{
		Name:    "t",
		Execute: noop,
		Params: map[string]Param{
			"q":     {Kind: KindString, Required: true},
			"n":     {Kind: KindNumber},
			"flag":  {Kind: KindBoolean},
			"order": {Kind: KindEnum, Enum: []string{"asc", "desc"}},
		},
	}

	got, err := tool.Normalize(map[string]any{"q": "  hi ", "n": "12", "flag": "true", "order": "desc", "extra": 1})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"q": "hi", "n": 12.0, "flag": true, "order": "desc"}, got)

	_, err = tool.Normalize(map[string]any{})
	assert.ErrorContains(t, err, "missing required argument \"q\"")

	_, err = tool.Normalize(map[string]any{"q": "   "})
	assert.Error(t, err)

	_, err = tool.Normalize(map[string]any{"q": "x", "n": "abc"})
	assert.Error(t, err)

	_, err = tool.Normalize(map[string]any{"q": "x", "order": "sideways"})
	assert.ErrorContains(t, err, "must be one of")

	got, err = tool.Normalize(map[string]any{"q": 42.0})
	require.NoError(t, err)
	assert.Equal(t, "42", got["q"])
}

func TestParseArguments(t *testing.T) {
	m, err := ParseArguments("")
	require.NoError(t, err)
	assert.Empty(t, m)

	m, err = ParseArguments(`{"ids":"bitcoin"}`)
	require.NoError(t, err)
	assert.Equal(t, "bitcoin", m["ids"])

	_, err = ParseArguments(`[1,2]`)
	assert.Error(t, err)

	m, err = ParseArguments("null")
	require.NoError(t, err)
	assert.NotNil(t, m)
}

func TestStringify(t *testing.T) {
	s, err := Stringify("plain")
	require.NoError(t, err)
	assert.Equal(t, "plain", s)

	s, err = Stringify([]map[string]int{{"a": 1}})
	require.NoError(t, err)
	assert.JSONEq(t, `[{"a":1}]`, s)

	_, err = Stringify(make(chan int))
	assert.Error(t, err)
}

func TestDefaultRegistryAdvertisesAllTools(t *testing.T) {
	reg, err := NewDefaultRegistry(NewCoinGeckoClient(CoinGeckoOptions{}))
	require.NoError(t, err)

	var names []string
	for _, info := range reg.ToolInfos() {
		names = append(names, info.Name)
		assert.NotEmpty(t, info.Desc)
		assert.IsType(t, &schema.ParamsOneOf{}, info.ParamsOneOf)
	}
	assert.Equal(t, []string{ToolCalculator, ToolEcho, ToolResearch, ToolCryptoPrices, ToolMarketData}, names)
}
