package render_test

import (
	"testing"

	"github.com/Houeta/callrelay-bot/internal/render"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender(t *testing.T) {
	t.Parallel()

	t.Run("substitutes all placeholders", func(t *testing.T) {
		t.Parallel()
		out, err := render.Render(
			"Call at {datetime}, result: {var_result}",
			map[string]string{"datetime": "01.02.2025 10:00", "var_result": "success"},
		)

		require.NoError(t, err)
		assert.Equal(t, "Call at 01.02.2025 10:00, result: success", out)
	})

	t.Run("repeated placeholder is substituted everywhere", func(t *testing.T) {
		t.Parallel()
		out, err := render.Render("{x} and {x}", map[string]string{"x": "a"})

		require.NoError(t, err)
		assert.Equal(t, "a and a", out)
	})

	t.Run("unused variables are ignored", func(t *testing.T) {
		t.Parallel()
		out, err := render.Render("Hi {x}", map[string]string{"x": "a", "y": "b"})

		require.NoError(t, err)
		assert.Equal(t, "Hi a", out)
	})

	t.Run("error - missing key is named", func(t *testing.T) {
		t.Parallel()
		out, err := render.Render("Hi {x}", map[string]string{})

		require.Error(t, err)
		require.ErrorIs(t, err, render.ErrMissingKey)
		require.ErrorContains(t, err, "x")
		assert.Empty(t, out)
	})

	t.Run("error - all missing keys are listed", func(t *testing.T) {
		t.Parallel()
		_, err := render.Render("{a} {b}", map[string]string{"c": "1"})

		require.Error(t, err)
		require.ErrorContains(t, err, "a")
		require.ErrorContains(t, err, "b")
	})

	t.Run("template without placeholders passes through", func(t *testing.T) {
		t.Parallel()
		out, err := render.Render("plain text", nil)

		require.NoError(t, err)
		assert.Equal(t, "plain text", out)
	})

	t.Run("empty substitution value is allowed", func(t *testing.T) {
		t.Parallel()
		out, err := render.Render("[{x}]", map[string]string{"x": ""})

		require.NoError(t, err)
		assert.Equal(t, "[]", out)
	})
}
