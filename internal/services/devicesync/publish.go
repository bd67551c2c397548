package devicesync

import (
	"encoding/json"
	"fmt"
	"slices"
)

// Publish sends payload on topic. It returns false without touching the
// transport when the session is down. Strings and byte slices are sent
// as-is, anything else is JSON encoded.
func (s *Synchronizer) Publish(topic string, payload any, qos byte) bool {
	if !s.Connected() {
		s.log.Warn().Str("topic", topic).Msg("not connected to broker, cannot publish")
		publishResult("disconnected")
		return false
	}
	client := s.currentClient()
	if client == nil {
		s.log.Warn().Str("topic", topic).Msg("no mqtt client, cannot publish")
		publishResult("disconnected")
		return false
	}

	body, err := encodePayload(payload)
	if err != nil {
		s.log.Error().Err(err).Str("topic", topic).Msg("publish encode error")
		publishResult("invalid")
		return false
	}

	token := client.Publish(topic, qos, false, body)
	if !token.WaitTimeout(s.cfg.PublishTimeout) {
		s.log.Error().Str("topic", topic).Msg("publish timed out")
		publishResult("error")
		return false
	}
	if err := token.Error(); err != nil {
		s.log.Error().Err(err).Str("topic", topic).Msg("publish error")
		publishResult("error")
		return false
	}
	s.log.Info().Str("topic", topic).Str("payload", body).Msg("published")
	publishResult("ok")
	return true
}

// Subscribe adds pattern to the session and, when cb is not nil, runs cb for
// every message whose topic matches pattern. The pattern survives reconnects.
// The return value reports whether the broker acknowledged the subscription
// now; while disconnected it is false and the pattern is applied on connect.
func (s *Synchronizer) Subscribe(pattern string, cb Callback) bool {
	s.subMu.Lock()
	if cb != nil {
		s.callbacks[pattern] = cb
	}
	if !slices.Contains(defaultPatterns, pattern) && !slices.Contains(s.extra, pattern) {
		s.extra = append(s.extra, pattern)
	}
	s.subMu.Unlock()

	if !s.Connected() {
		s.log.Info().Str("pattern", pattern).Msg("not connected, subscription deferred until connect")
		return false
	}
	client := s.currentClient()
	if client == nil {
		s.log.Info().Str("pattern", pattern).Msg("not connected, subscription deferred until connect")
		return false
	}
	return s.subscribeOn(client, pattern)
}

func encodePayload(p any) (string, error) {
	switch v := p.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case fmt.Stringer:
		return v.String(), nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("encode payload: %w", err)
		}
		return string(b), nil
	}
}
