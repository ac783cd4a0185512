package assistant

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTruncatedReply(t *testing.T) {
	resp := Parse(`{"summary":"ok","events":[{"title":"A","tags":[]}`)
	require.NotNil(t, resp)
	require.NotNil(t, resp.Summary)
	assert.Equal(t, "ok", *resp.Summary)
	require.Len(t, resp.Events, 1)
	assert.Equal(t, "A", resp.Events[0].Title)
	assert.Equal(t, []string{}, resp.Events[0].Tags)
}

func TestParseMismatchedCloserIsNil(t *testing.T) {
	assert.Nil(t, Parse(`{"events": ]`))
	assert.Nil(t, Parse(`{"events": [}`))
}

func TestParseNoObject(t *testing.T) {
	assert.Nil(t, Parse("Sorry, I can only answer questions related to the events provided."))
	assert.Nil(t, Parse(""))
}

func TestParseDirectAndFenced(t *testing.T) {
	body := `{"summary":"  Two events  ","notes":"","events":[
		{"title":" Career Fair ","time":"Mar 5","location":" UC ","category":null,"tags":[" jobs ",1,""],"url":"  "},
		{"title":"   ","tags":[]},
		"junk",
		{"title":"Yoga","tags":"wellness","description":"Bring a mat"}
	]}`

	for _, content := range []string{
		body,
		"```json\n" + body + "\n```",
		"```\n" + body + "\n```",
		"Here you go: " + body + " Enjoy!",
	} {
		resp := Parse(content)
		require.NotNil(t, resp)
		require.NotNil(t, resp.Summary)
		assert.Equal(t, "Two events", *resp.Summary)
		assert.Nil(t, resp.Notes)
		require.Len(t, resp.Events, 2)

		fair := resp.Events[0]
		assert.Equal(t, "Career Fair", fair.Title)
		require.NotNil(t, fair.Location)
		assert.Equal(t, "UC", *fair.Location)
		assert.Nil(t, fair.Category)
		assert.Nil(t, fair.URL)
		assert.Equal(t, []string{"jobs"}, fair.Tags)

		yoga := resp.Events[1]
		assert.Equal(t, []string{}, yoga.Tags)
		require.NotNil(t, yoga.Description)
		assert.Equal(t, "Bring a mat", *yoga.Description)
	}
}

func TestParseEventsNotArray(t *testing.T) {
	resp := Parse(`{"summary":"none","events":"n/a"}`)
	require.NotNil(t, resp)
	assert.Empty(t, resp.Events)
	assert.NotNil(t, resp.Events)
}

func TestAutoClose(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
		err  error
	}{
		{"complete", `{"a":[1,2]}`, `{"a":[1,2]}`, nil},
		{"open object and array", `{"a":[{"b":1}`, `{"a":[{"b":1}]}`, nil},
		{"brackets inside strings ignored", `{"a":"]}{["`, `{"a":"]}{["}`, nil},
		{"escaped quote stays in string", `{"a":"say \"hi`, `{"a":"say \"hi"}`, nil},
		{"dangling escape", `{"a":"path\`, `{"a":"path"}`, nil},
		{"unterminated string then arrays", `{"events":[{"title":"Sprin`, `{"events":[{"title":"Sprin"}]}`, nil},
		{"mismatch", `{"a":[}`, "", ErrMismatchedCloser},
		{"stray closer", `}`, "", ErrMismatchedCloser},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := AutoClose(tc.in)
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
			assert.True(t, json.Valid([]byte(got)), "repaired output should be valid JSON: %s", got)
		})
	}
}

func TestParseCutsAtLastBrace(t *testing.T) {
	resp := Parse(`{"summary":"Events today","events":[{"title":"Spring Fair","tags":["outdoor"]},{"title":"Robotics Dem`)
	require.NotNil(t, resp)
	require.Len(t, resp.Events, 1)
	assert.Equal(t, "Spring Fair", resp.Events[0].Title)
	assert.Equal(t, []string{"outdoor"}, resp.Events[0].Tags)
}

func TestParseWithoutAnyClosingBrace(t *testing.T) {
	resp := Parse(`{"summary":"Events today","events":[{"title":"Robotics Dem`)
	require.NotNil(t, resp)
	require.Len(t, resp.Events, 1)
	assert.Equal(t, "Robotics Dem", resp.Events[0].Title)
}

func TestStripFence(t *testing.T) {
	assert.Equal(t, `{"a":1}`, StripFence("```JSON\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, StripFence("  {\"a\":1}  "))
	assert.Equal(t, `{"a":1`, StripFence("```json {\"a\":1"))
}
