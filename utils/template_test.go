package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"outreach/models"
)

func TestExpandVariables(t *testing.T) {
	lead := &models.Lead{
		Email:            "jordan@acme.com",
		FirstName:        "Jordan",
		LastName:         "Lee",
		Company:          "Acme",
		CustomFieldsJSON: `{"pain_point": "slow deploys", "Role": "CTO"}`,
	}

	t.Run("core fields", func(t *testing.T) {
		out := ExpandVariables("Hi {{first_name}}, how is {{company}}?", lead)
		assert.Equal(t, "Hi Jordan, how is Acme?", out)
	})

	t.Run("case and underscores ignored", func(t *testing.T) {
		out := ExpandVariables("{{FirstName}} {{ LAST_NAME }}", lead)
		assert.Equal(t, "Jordan Lee", out)
	})

	t.Run("custom fields", func(t *testing.T) {
		out := ExpandVariables("About {{pain_point}}, {{role}}", lead)
		assert.Equal(t, "About slow deploys, CTO", out)
	})

	t.Run("unresolved placeholders deleted", func(t *testing.T) {
		out := ExpandVariables("Hey {{nickname}}!", lead)
		assert.Equal(t, "Hey !", out)
	})

	t.Run("nil lead passes through", func(t *testing.T) {
		assert.Equal(t, "{{first_name}}", ExpandVariables("{{first_name}}", nil))
	})

	t.Run("malformed custom bag ignored", func(t *testing.T) {
		broken := &models.Lead{Email: "x@y.com", FirstName: "X", CustomFieldsJSON: "{not json"}
		assert.Equal(t, "X ", ExpandVariables("{{first_name}} {{role}}", broken))
	})
}

func TestStripHTML(t *testing.T) {
	in := "<p>Hello <b>there</b></p><p>Second &amp; last<br>line</p>"
	assert.Equal(t, "Hello there\n\nSecond & last\nline", StripHTML(in))
}
