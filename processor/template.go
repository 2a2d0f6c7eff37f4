package processor

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/nudgeworks/journey/model"
	"github.com/oliveagle/jsonpath"
)

var tokenPattern = regexp.MustCompile(`{{(.*?)}}`)

// templateData is the lookup root for substitution: subject attributes,
// accumulated step variables and flow metadata.
func templateData(enrollment *model.Enrollment, subject *model.Subject) map[string]any {
	data := map[string]any{
		"variables": enrollment.Variables,
		"flow": map[string]any{
			"id":           enrollment.FlowId,
			"version":      enrollment.FlowVersion,
			"enrollmentId": enrollment.Id,
		},
	}
	if subject != nil {
		data["subject"] = subject.Attributes
	} else {
		data["subject"] = map[string]any{}
	}
	return data
}

// Substitute replaces {{field}} tokens in the input. A token starting with $
// is a jsonpath into the full data root; a bare name is looked up in subject
// attributes first, then in variables. Unresolvable tokens substitute empty.
func Substitute(input string, data map[string]any) string {
	return tokenPattern.ReplaceAllStringFunc(input, func(token string) string {
		path := strings.TrimSpace(token[2 : len(token)-2])
		if path == "" {
			return ""
		}
		if strings.HasPrefix(path, "$") {
			value, err := jsonpath.JsonPathLookup(data, path)
			if err != nil {
				return ""
			}
			return fmt.Sprintf("%v", value)
		}
		if subject, ok := data["subject"].(map[string]any); ok {
			if value, ok := subject[path]; ok {
				return fmt.Sprintf("%v", value)
			}
		}
		if variables, ok := data["variables"].(map[string]any); ok {
			if value, err := jsonpath.JsonPathLookup(variables, "$."+path); err == nil && value != nil {
				return fmt.Sprintf("%v", value)
			}
		}
		return ""
	})
}

func substituteMap(input map[string]any, data map[string]any) map[string]string {
	out := make(map[string]string, len(input))
	for k, v := range input {
		out[k] = Substitute(fmt.Sprintf("%v", v), data)
	}
	return out
}
