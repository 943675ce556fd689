// Package mqtt connects the access service to the site MQTT broker.
//
// The access service uses the bus in two directions:
//   - It publishes access events (decisions, key issue and return) so door
//     controllers, dashboards, and other Gray Logic services can react.
//   - It answers verify requests from door controllers that prefer MQTT
//     over HTTP.
//
// Connection state is announced on a retained status topic, with a Last
// Will so subscribers notice an unexpected disconnect.
//
// # Topics
//
//	graylogic/access/status            retained online/offline status
//	graylogic/access/event/{event}     access events (decision, key_issued, key_returned)
//	graylogic/access/request/{door}    verify requests from door controllers
//	graylogic/access/response/{door}   verify results
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topic := mqtt.Topics{}.AccessEvent("key_issued")
//	err = client.Publish(topic, payload, 1, false)
package mqtt
