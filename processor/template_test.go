package processor

import (
	"testing"

	"github.com/nudgeworks/journey/model"
	"github.com/stretchr/testify/require"
)

func TestSubstitute(t *testing.T) {
	enrollment := activeEnrollment()
	enrollment.SetVariable("crm", map[string]any{"status": 200})
	enrollment.SetVariable("score", 7)
	// Same key in both places: the subject attribute must win.
	enrollment.SetVariable("firstName", "someone else")
	subject := &model.Subject{
		Id:         "s1",
		Attributes: map[string]any{"firstName": "Ada", "company": "Analytical"},
	}
	data := templateData(enrollment, subject)

	for scenario, tc := range map[string]struct {
		input string
		want  string
	}{
		"subject attribute":       {"Hi {{firstName}}", "Hi Ada"},
		"multiple tokens":         {"{{firstName}} at {{company}}", "Ada at Analytical"},
		"variable fallback":       {"score={{score}}", "score=7"},
		"jsonpath into variables": {"{{$.variables.crm.status}}", "200"},
		"jsonpath into flow":      {"{{$.flow.id}}", "f1"},
		"unresolvable goes empty": {"Hi {{nickname}}!", "Hi !"},
		"empty token":             {"{{}}", ""},
		"no tokens pass through":  {"plain text", "plain text"},
	} {
		t.Run(scenario, func(t *testing.T) {
			require.Equal(t, tc.want, Substitute(tc.input, data))
		})
	}
}

func TestTemplateDataNilSubject(t *testing.T) {
	data := templateData(activeEnrollment(), nil)
	require.Equal(t, "", Substitute("{{firstName}}", data))
}
