package mqtt

import "fmt"

// Topic prefixes for the access service.
const (
	// TopicPrefixAccess is the base for every topic this service owns.
	TopicPrefixAccess = "graylogic/access"
)

// Access event names used with Topics.AccessEvent.
const (
	EventDecision    = "decision"
	EventKeyIssued   = "key_issued"
	EventKeyReturned = "key_returned"
)

// Topics builds access service topic names.
//
//	topic := mqtt.Topics{}.AccessEvent(mqtt.EventKeyIssued)
//	// graylogic/access/event/key_issued
type Topics struct{}

// Status returns the retained online/offline status topic.
//
// Example: graylogic/access/status
func (Topics) Status() string {
	return TopicPrefixAccess + "/status"
}

// AccessEvent returns the topic for an access event.
//
// Example: graylogic/access/event/decision
func (Topics) AccessEvent(event string) string {
	return fmt.Sprintf("%s/event/%s", TopicPrefixAccess, event)
}

// VerifyRequest returns the topic a door controller publishes verify requests on.
//
// Example: graylogic/access/request/door-lobby
func (Topics) VerifyRequest(door string) string {
	return fmt.Sprintf("%s/request/%s", TopicPrefixAccess, door)
}

// VerifyResponse returns the topic verify results for a door are published on.
//
// Example: graylogic/access/response/door-lobby
func (Topics) VerifyResponse(door string) string {
	return fmt.Sprintf("%s/response/%s", TopicPrefixAccess, door)
}

// AllVerifyRequests matches verify requests from every door.
//
// Pattern: graylogic/access/request/+
func (Topics) AllVerifyRequests() string {
	return TopicPrefixAccess + "/request/+"
}

// AllAccessEvents matches every access event.
//
// Pattern: graylogic/access/event/+
func (Topics) AllAccessEvents() string {
	return TopicPrefixAccess + "/event/+"
}

// DoorFromRequestTopic extracts the door id from a verify request topic.
// It returns false when topic is not a verify request topic.
func DoorFromRequestTopic(topic string) (string, bool) {
	prefix := TopicPrefixAccess + "/request/"
	if len(topic) <= len(prefix) || topic[:len(prefix)] != prefix {
		return "", false
	}
	door := topic[len(prefix):]
	for i := range len(door) {
		if door[i] == '/' {
			return "", false
		}
	}
	return door, true
}
