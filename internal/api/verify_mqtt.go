package api

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-access/internal/access"
	"github.com/nerrad567/gray-logic-access/internal/infrastructure/mqtt"
)

// mqttVerifyTimeout bounds a directory lookup made for an MQTT request.
const mqttVerifyTimeout = 5 * time.Second

// subscribeVerifyRequests lets door controllers on the site bus ask for
// decisions without HTTP. Requests arrive on graylogic/access/request/{door}
// and answers go to graylogic/access/response/{door}.
func (s *Server) subscribeVerifyRequests() error {
	if s.mqtt == nil {
		return nil
	}
	topic := mqtt.Topics{}.AllVerifyRequests()
	s.logger.Info("subscribing to MQTT verify requests", "topic", topic)
	return s.mqtt.Subscribe(topic, 1, s.handleVerifyMessage)
}

func (s *Server) unsubscribeVerifyRequests() {
	if !s.mqttConnected() {
		return
	}
	if err := s.mqtt.Unsubscribe(mqtt.Topics{}.AllVerifyRequests()); err != nil {
		s.logger.Debug("unsubscribe verify requests failed", "error", err)
	}
}

// handleVerifyMessage decides one MQTT verify request and publishes the
// answer. The payload has the same shape as the HTTP verify body, plus an
// optional request_id that is echoed back.
func (s *Server) handleVerifyMessage(topic string, payload []byte) error {
	door, ok := mqtt.DoorFromRequestTopic(topic)
	if !ok {
		return fmt.Errorf("unexpected verify topic %q", topic)
	}

	resp := s.verifyFromBus(door, payload)
	if !s.mqttConnected() {
		return mqtt.ErrNotConnected
	}
	return s.mqtt.PublishJSON(mqtt.Topics{}.VerifyResponse(door), resp)
}

// verifyFromBus runs the decision for a bus request and records it.
func (s *Server) verifyFromBus(door string, payload []byte) VerifyResponse {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), mqttVerifyTimeout)
	defer cancel()

	req, requestID, err := decodeVerifyRequest(bytes.NewReader(payload))
	var d access.Decision
	if err == nil {
		d, err = s.engine.Decide(ctx, req)
	}

	s.recordDecision(origin{transport: "mqtt", door: door, requestID: requestID}, req, d, err, time.Since(start))

	resp := buildVerifyResponse(d, err)
	resp.RequestID = requestID
	return resp
}
