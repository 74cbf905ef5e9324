package agent

import "maps"

// ContextVariablesParam is the parameter name reserved for the shared context.
// It is stripped from every schema sent to the model and injected by the dispatcher.
const ContextVariablesParam = "context_variables"

// Variables is the explicit context map threaded through Engine, Dispatcher,
// Voter and Validator.
type Variables map[string]any

// Clone returns a shallow copy; a nil receiver yields an empty map.
func (v Variables) Clone() Variables {
	out := make(Variables, len(v))
	maps.Copy(out, v)
	return out
}

// Merge returns a new map holding v overlaid with updates.
func (v Variables) Merge(updates Variables) Variables {
	out := v.Clone()
	maps.Copy(out, updates)
	return out
}

// String returns the value for key when it is a non-empty string.
func (v Variables) String(key string) (string, bool) {
	s, ok := v[key].(string)
	return s, ok && s != ""
}
