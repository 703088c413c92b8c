package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type item struct {
	Name string `json:"name"`
}

func TestParseJSON_Array(t *testing.T) {
	out, err := ParseJSON[[]item]("Here you go:\n```json\n[{\"name\": \"Alice\"}, {\"name\": \"Bob\"}]\n```")
	require.NoError(t, err)
	assert.Equal(t, []item{{"Alice"}, {"Bob"}}, out)
}

func TestParseJSON_Object(t *testing.T) {
	out, err := ParseJSON[item](`noise {"name": "Acme"} trailing`)
	require.NoError(t, err)
	assert.Equal(t, "Acme", out.Name)
}

func TestParseJSON_Repairs(t *testing.T) {
	out, err := ParseJSON[[]item](`[{"name": "Alice",}, {'name': 'Bob'}]`)
	require.NoError(t, err)
	assert.Equal(t, []item{{"Alice"}, {"Bob"}}, out)
}

func TestParseJSON_NoJSON(t *testing.T) {
	_, err := ParseJSON[[]item]("I could not find any entities.")
	assert.ErrorIs(t, err, ErrNoJSON)
}

func TestExtractJSON(t *testing.T) {
	s, err := ExtractJSON(`x [1, 2] y`)
	require.NoError(t, err)
	assert.Equal(t, "[1, 2]", s)

	s, err = ExtractJSON(`{"a": [1, 2]}`)
	require.NoError(t, err)
	assert.Equal(t, `{"a": [1, 2]}`, s)

	s, err = ExtractJSON(`[{"name": "Alice"`)
	require.NoError(t, err)
	assert.Equal(t, `[{"name": "Alice"`, s)
}
