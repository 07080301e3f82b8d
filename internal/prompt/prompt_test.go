package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender(t *testing.T) {
	tests := []struct {
		name     string
		template string
		vars     map[string]string
		want     string
	}{
		{"single", "Hello {{name}}", map[string]string{"name": "Go"}, "Hello Go"},
		{"repeated", "{{a}}-{{a}}", map[string]string{"a": "x"}, "x-x"},
		{"no placeholders", "plain", nil, "plain"},
		{"extra vars ignored", "{{a}}", map[string]string{"a": "1", "b": "2"}, "1"},
		{"values not re-expanded", "{{a}} {{b}}", map[string]string{"a": "{{b}}", "b": "B"}, "{{b}} B"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Render(tt.template, tt.vars)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRender_MissingVariables(t *testing.T) {
	_, err := Render("{{a}} {{b}} {{c}}", map[string]string{"b": ""})
	require.ErrorIs(t, err, ErrMissingVariables)
	assert.Contains(t, err.Error(), "a, c")
}

func TestExtractVariables(t *testing.T) {
	assert.Equal(t, []string{"context", "question"}, ExtractVariables(GroundedTemplate))
	assert.Nil(t, ExtractVariables("nothing here"))
}

func TestBuild(t *testing.T) {
	p := Build("What color is the sky?", "The sky is blue.")

	assert.True(t, strings.HasPrefix(p, "You are a helpful and strict assistant."))
	assert.Contains(t, p, "Context:\nThe sky is blue.\n")
	assert.Contains(t, p, "Question:\nWhat color is the sky?\n")
	assert.Contains(t, p, `strictly say "Information not available in the document"`)
	assert.Contains(t, p, "5. Do not use outside knowledge.")
	assert.True(t, strings.HasSuffix(p, "Answer:"))
}

func TestBuild_ContextIsVerbatim(t *testing.T) {
	ctx := "literal {{question}} braces"
	p := Build("q?", ctx)
	assert.Contains(t, p, "Context:\n"+ctx+"\n")
}

func TestBuild_EmptyInputs(t *testing.T) {
	p := Build("", "")
	assert.Contains(t, p, "Context:\n\n")
	assert.Contains(t, p, "Question:\n\n")
}

func TestIsRefusal(t *testing.T) {
	assert.True(t, IsRefusal("Information not available in the document"))
	assert.True(t, IsRefusal("information not available in the document."))
	assert.False(t, IsRefusal("The sky is blue."))
}
