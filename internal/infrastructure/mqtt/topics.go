package mqtt

import (
	"fmt"
	"strings"
	"unicode"
)

// maxTopicLength is the MQTT limit on an encoded topic name.
const maxTopicLength = 65535

// ValidateTopic checks that topic can be used both to subscribe and to
// publish.
//
// A chat topic must be non-empty and free of whitespace. Wildcards ('+' and
// '#') are rejected as well because the same topic is published to, and
// brokers refuse wildcard topic names on PUBLISH. The null character is
// forbidden by the MQTT specification.
//
// Example:
//
//	mqtt.ValidateTopic("lobby")     // nil
//	mqtt.ValidateTopic("chat room") // ErrInvalidTopic
func ValidateTopic(topic string) error {
	if topic == "" {
		return fmt.Errorf("%w: topic cannot be empty", ErrInvalidTopic)
	}
	if len(topic) > maxTopicLength {
		return fmt.Errorf("%w: topic exceeds %d bytes", ErrInvalidTopic, maxTopicLength)
	}
	if strings.IndexFunc(topic, unicode.IsSpace) >= 0 {
		return fmt.Errorf("%w: %q contains whitespace", ErrInvalidTopic, topic)
	}
	if strings.ContainsAny(topic, "+#") {
		return fmt.Errorf("%w: %q contains a wildcard", ErrInvalidTopic, topic)
	}
	if strings.ContainsRune(topic, 0) {
		return fmt.Errorf("%w: topic contains a null character", ErrInvalidTopic)
	}
	return nil
}
