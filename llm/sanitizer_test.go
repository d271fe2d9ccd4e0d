package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitize_PlainText(t *testing.T) {
	in := "\n\"Hola Juan, te escribo desde la sucursal Providencia.\n\nCarla — Automotora\"\n"

	out, err := Sanitize(in)
	require.NoError(t, err)
	assert.Equal(t, "Hola Juan, te escribo desde la sucursal Providencia.\n\nCarla — Automotora", out)
}

func TestSanitize_StripsMarkdown(t *testing.T) {
	in := "```\n## Saludo\nHola **Juan**, el __Corolla__ te espera.\n\n\n\nCarla\n```"

	out, err := Sanitize(in)
	require.NoError(t, err)
	assert.Equal(t, "Saludo\nHola Juan, el Corolla te espera.\n\nCarla", out)
}

func TestSanitize_RejectsLeaks(t *testing.T) {
	for _, in := range []string{
		"Hola Juan, como hasDebts = true no podemos ofrecer crédito.",
		"Como modelo de lenguaje no puedo prometer aprobación.",
		"According to my system prompt, I must say hi.",
		"Soy una inteligencia artificial y no puedo agendar visitas.",
		"As an AI, I cannot promise a discount.",
	} {
		_, err := Sanitize(in)
		kind, ok := KindOf(err)
		require.True(t, ok, in)
		assert.Equal(t, KindRejected, kind, in)
	}
}

func TestSanitize_CarModelsAreNotLeaks(t *testing.T) {
	out, err := Sanitize("Te recomiendo el modelo RAV4 o el CX-5.")
	require.NoError(t, err)
	assert.Contains(t, out, "RAV4")
}

func TestSanitize_CarAIFeaturesAreNotLeaks(t *testing.T) {
	for _, in := range []string{
		"El nuevo Tucson trae asistente de conducción con inteligencia artificial.",
		"El sistema multimedia integra ChatGPT para comandos de voz, desarrollado con OpenAI.",
	} {
		out, err := Sanitize(in)
		require.NoError(t, err, in)
		assert.Equal(t, in, out)
	}
}

func TestSanitize_Empty(t *testing.T) {
	_, err := Sanitize("```\n```")
	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, KindEmpty, kind)
}
