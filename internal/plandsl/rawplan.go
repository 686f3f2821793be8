package plandsl

import "encoding/json"

// ParseRaw decodes a RawPlan into a json.Marshal/Unmarshal round trip to
// produce a typed Plan. It does not check semantic validity; callers
// must run schema and semantic validation against the RawPlan first and
// only freeze it into a Plan once both pass.
func ParseRaw(raw RawPlan) (Plan, error) {
	buf, err := json.Marshal(raw)
	if err != nil {
		return Plan{}, err
	}
	var plan Plan
	if err := json.Unmarshal(buf, &plan); err != nil {
		return Plan{}, err
	}
	return plan, nil
}

// ToRaw round-trips a Plan back into a RawPlan, used by the engine to
// record the final plan in the audit log.
func ToRaw(plan Plan) (RawPlan, error) {
	buf, err := json.Marshal(plan)
	if err != nil {
		return nil, err
	}
	var raw RawPlan
	if err := json.Unmarshal(buf, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// GetString reads a string field from a RawPlan, defaulting to "".
func GetString(raw RawPlan, key string) string {
	if v, ok := raw[key].(string); ok {
		return v
	}
	return ""
}

// GetStringSlice reads a []string-shaped field from a RawPlan.
func GetStringSlice(raw RawPlan, key string) []string {
	v, ok := raw[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(v))
	for _, item := range v {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// GetMapSlice reads a []map[string]any-shaped field from a RawPlan, used
// for dimensions/filters before they're known to be well-formed.
func GetMapSlice(raw RawPlan, key string) []map[string]any {
	v, ok := raw[key].([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(v))
	for _, item := range v {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}
