package action

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/contentflow/internal/content"
)

// recordDispatch returns a dispatcher that records child types and reports
// them as successful.
func recordDispatch(ran *[]string) DispatchFunc {
	return func(_ context.Context, specs []Spec, _ *content.Content) []Result {
		out := make([]Result, len(specs))
		for i, s := range specs {
			*ran = append(*ran, s.Type)
			out[i] = Result{Type: s.Type, Success: true}
		}
		return out
	}
}

const thenEmail = `[{"type":"Email","parameters":{"To":"a@example.com"}}]`

func TestParseComparison(t *testing.T) {
	cmp, err := ParseComparison(`{{data.Priority}} == "High"`)
	require.NoError(t, err)
	assert.Equal(t, Comparison{Left: "{{data.Priority}}", Op: "==", Right: "High"}, cmp)

	cmp, err = ParseComparison(`  {{status}}!="Draft" `)
	require.NoError(t, err)
	assert.Equal(t, "!=", cmp.Op)

	for _, bad := range []string{"", "{{status}}", `{{status}} > "1"`, `{{status}} == Draft`} {
		_, err := ParseComparison(bad)
		assert.Error(t, err, bad)
	}
}

func TestConditional_ThenBranch(t *testing.T) {
	var ran []string
	c := &content.Content{ID: "c-1", Data: content.Data{"Priority": "High"}}
	inv := NewInvocation(map[string]string{
		"Condition":   `{{data.Priority}} == "High"`,
		"ThenActions": thenEmail,
		"ElseActions": `[{"type":"SMS"}]`,
	}, c, recordDispatch(&ran))

	require.NoError(t, (&ConditionalHandler{}).Execute(context.Background(), inv))
	assert.Equal(t, []string{"Email"}, ran)
	assert.Len(t, inv.Nested(), 1)
}

func TestConditional_FalseWithoutElseIsNoop(t *testing.T) {
	var ran []string
	c := &content.Content{ID: "c-1", Data: content.Data{"Priority": "Low"}}
	inv := NewInvocation(map[string]string{
		"Condition":   `{{data.Priority}} == "High"`,
		"ThenActions": thenEmail,
	}, c, recordDispatch(&ran))

	require.NoError(t, (&ConditionalHandler{}).Execute(context.Background(), inv))
	assert.Empty(t, ran)
	assert.Empty(t, inv.Nested())
}

func TestConditional_AlreadyResolvedLeftSide(t *testing.T) {
	var ran []string
	inv := NewInvocation(map[string]string{
		"Condition":   `Published != "Draft"`,
		"ThenActions": thenEmail,
	}, &content.Content{}, recordDispatch(&ran))

	require.NoError(t, (&ConditionalHandler{}).Execute(context.Background(), inv))
	assert.Equal(t, []string{"Email"}, ran)
}

func TestConditional_StatusAndContentType(t *testing.T) {
	var ran []string
	c := &content.Content{ID: "c-1", ContentType: "Article", Status: content.StatusPublished}
	inv := NewInvocation(map[string]string{
		"Condition":   `{{contentType}} == "Article"`,
		"ElseActions": thenEmail,
		"ThenActions": `[{"type":"Webhook"},{"type":"SMS"}]`,
	}, c, recordDispatch(&ran))

	require.NoError(t, (&ConditionalHandler{}).Execute(context.Background(), inv))
	assert.Equal(t, []string{"Webhook", "SMS"}, ran)
}

func TestComparison_ResolvedValueIsNeverParsed(t *testing.T) {
	c := &content.Content{Data: content.Data{"Note": "", "Title": `a" != "b`}}

	cmp, err := ParseComparison(`{{data.Note}}==""`)
	require.NoError(t, err)
	assert.True(t, cmp.Holds(NewInvocation(nil, c, nil)))

	cmp, err = ParseComparison(`{{data.Title}} == "zzz"`)
	require.NoError(t, err)
	assert.False(t, cmp.Holds(NewInvocation(nil, c, nil)))

	cmp, err = ParseComparison(`{{data.Title}} == "a\" != \"b"`)
	require.NoError(t, err)
	assert.False(t, cmp.Holds(NewInvocation(nil, c, nil)), "literals are not unescaped")
}

func TestConditional_Errors(t *testing.T) {
	var ran []string
	c := &content.Content{Data: content.Data{"Priority": "High"}}

	err := (&ConditionalHandler{}).Execute(context.Background(),
		NewInvocation(map[string]string{"Condition": "Priority is High"}, c, recordDispatch(&ran)))
	assert.Error(t, err)

	err = (&ConditionalHandler{}).Execute(context.Background(),
		NewInvocation(map[string]string{"Condition": `{{data.Priority}} == "High"`, "ThenActions": "not json"}, c, recordDispatch(&ran)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ThenActions")

	err = (&ConditionalHandler{}).Execute(context.Background(),
		NewInvocation(map[string]string{"Condition": `{{data.Priority}} == "High"`, "ThenActions": `[{"parameters":{}}]`}, c, recordDispatch(&ran)))
	assert.Error(t, err)
	assert.Empty(t, ran)
}

func TestParseSpecs(t *testing.T) {
	specs, err := ParseSpecs("  ")
	require.NoError(t, err)
	assert.Empty(t, specs)

	specs, err = ParseSpecs(`[{"Type":"Email","Parameters":{"To":"x"}}]`)
	require.NoError(t, err)
	assert.Equal(t, []Spec{{Type: "Email", Parameters: map[string]string{"To": "x"}}}, specs)
}
