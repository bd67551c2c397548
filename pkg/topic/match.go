package topic

import "strings"

// Matcher reports whether a concrete topic falls under a subscription pattern.
type Matcher func(pattern, topic string) bool

// Match compares pattern and topic level by level. Both must have the same
// number of levels; a pattern level matches when it is "+", "#" or equal to
// the topic level. "#" therefore only stands in for exactly one trailing
// level, which is how the dashboard callbacks have always been dispatched.
func Match(pattern, topic string) bool {
	pp := strings.Split(pattern, "/")
	tp := strings.Split(topic, "/")
	if len(pp) != len(tp) {
		return false
	}
	for i, p := range pp {
		if p != "+" && p != "#" && p != tp[i] {
			return false
		}
	}
	return true
}

// MatchMQTT implements MQTT 3.1.1 topic filter semantics: "+" matches one
// level, a final "#" matches the parent level and any number of child levels,
// and wildcards at the first level never match topics starting with "$".
func MatchMQTT(pattern, topic string) bool {
	if pattern == "" || topic == "" {
		return false
	}
	if strings.HasPrefix(topic, "$") && (strings.HasPrefix(pattern, "+") || strings.HasPrefix(pattern, "#")) {
		return false
	}
	pp := strings.Split(pattern, "/")
	tp := strings.Split(topic, "/")
	for i, p := range pp {
		if p == "#" {
			// only valid as the last level
			return i == len(pp)-1
		}
		if i >= len(tp) {
			return false
		}
		if p != "+" && p != tp[i] {
			return false
		}
	}
	return len(pp) == len(tp)
}
