package mqtt

import "fmt"

// Subscribe registers a handler for messages on a topic.
//
// Parameters:
//   - topic: Topic filter, may contain + (single level) and # (multi level) wildcards
//   - qos: Quality of Service level (0, 1, or 2)
//   - handler: Called for each message; runs on a paho goroutine and must not block
//
// The subscription is tracked and restored automatically after a reconnect.
// A panic inside handler is recovered and logged so one bad message cannot
// stop delivery.
//
// Returns:
//   - error: nil on success, ErrNotConnected when offline, or a wrapped
//     ErrSubscribeFailed on timeout or broker rejection
//
// Example:
//
//	err := client.Subscribe(mqtt.Topics{}.AllVerifyRequests(), 1,
//	    func(topic string, payload []byte) error {
//	        return handleVerify(payload)
//	    })
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if handler == nil {
		return fmt.Errorf("%w: handler cannot be nil", ErrSubscribeFailed)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.subMu.Lock()
	c.subscriptions[topic] = subscription{topic: topic, qos: qos, handler: handler}
	c.subMu.Unlock()

	token := c.client.Subscribe(topic, qos, c.wrapHandler(handler))
	if !token.WaitTimeout(defaultPublishTimeout) {
		c.forget(topic)
		return fmt.Errorf("%w: timeout after %v", ErrSubscribeFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		c.forget(topic)
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}
	return nil
}

// Unsubscribe stops delivery for a topic previously passed to Subscribe.
//
// The topic is dropped from the tracked set before the broker round trip,
// so it will not be restored on reconnect even if the request times out.
//
// Returns:
//   - error: nil on success, ErrNotConnected when offline, or a wrapped
//     ErrUnsubscribeFailed
func (c *Client) Unsubscribe(topic string) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.forget(topic)

	token := c.client.Unsubscribe(topic)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrUnsubscribeFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrUnsubscribeFailed, err)
	}
	return nil
}

// SubscriptionCount returns the number of tracked subscriptions.
//
// Useful for health checks and tests.
func (c *Client) SubscriptionCount() int {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	return len(c.subscriptions)
}

func (c *Client) forget(topic string) {
	c.subMu.Lock()
	delete(c.subscriptions, topic)
	c.subMu.Unlock()
}
