// Copyright (C) 2026 Relaytune Authors
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package drivers

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"relaytune/pkg/log"
)

// MQTTOptions configures a broker connection for a source or actuator.
type MQTTOptions struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Topic    string
	QoS      byte

	ConnectTimeout time.Duration
}

func (o *MQTTOptions) clientOptions() *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(o.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(o.ConnectTimeout)
	if o.Username != "" {
		opts.SetUsername(o.Username)
		opts.SetPassword(o.Password)
	}
	return opts
}

func (o *MQTTOptions) normalize(role string) error {
	if o.Broker == "" {
		return fmt.Errorf("drivers: mqtt %s: broker required", role)
	}
	if o.Topic == "" {
		return fmt.Errorf("drivers: mqtt %s: topic required", role)
	}
	if o.ClientID == "" {
		o.ClientID = "relaytune-" + role
	}
	if o.ConnectTimeout == 0 {
		o.ConnectTimeout = 10 * time.Second
	}
	return nil
}

// MQTTSource subscribes to a topic and caches the latest measurement.
// Payloads are either a bare number or a JSON object with a "value"
// field and an optional RFC 3339 "timestamp".
type MQTTSource struct {
	client mqtt.Client
	logger *log.Logger

	mu    sync.Mutex
	value float64
	at    time.Time
	valid bool
}

// NewMQTTSource connects and subscribes.
func NewMQTTSource(opts MQTTOptions) (*MQTTSource, error) {
	if err := opts.normalize("source"); err != nil {
		return nil, err
	}
	s := &MQTTSource{logger: log.GetLogger("mqtt")}
	s.client = mqtt.NewClient(opts.clientOptions())
	if token := s.client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("drivers: mqtt connect: %w", token.Error())
	}
	token := s.client.Subscribe(opts.Topic, opts.QoS, func(_ mqtt.Client, msg mqtt.Message) {
		s.ingest(msg.Payload())
	})
	if token.Wait() && token.Error() != nil {
		s.client.Disconnect(250)
		return nil, fmt.Errorf("drivers: mqtt subscribe %s: %w", opts.Topic, token.Error())
	}
	return s, nil
}

func (s *MQTTSource) ingest(payload []byte) {
	value, at, err := parseMeasurementPayload(payload)
	if err != nil {
		s.logger.WarnFields("unparseable payload", log.Fields{
			"payload": string(payload), "error": err.Error()})
		return
	}
	s.mu.Lock()
	s.value = value
	s.at = at
	s.valid = true
	s.mu.Unlock()
}

// Latest returns the cached measurement.
func (s *MQTTSource) Latest() (float64, time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value, s.at, s.valid
}

// Close disconnects from the broker.
func (s *MQTTSource) Close() {
	s.client.Disconnect(250)
}

func parseMeasurementPayload(payload []byte) (float64, time.Time, error) {
	text := strings.TrimSpace(string(payload))
	if v, err := strconv.ParseFloat(text, 64); err == nil {
		return v, time.Now(), nil
	}
	var msg struct {
		Value     *float64 `json:"value"`
		Timestamp string   `json:"timestamp"`
	}
	if err := json.Unmarshal(payload, &msg); err != nil {
		return 0, time.Time{}, err
	}
	if msg.Value == nil {
		return 0, time.Time{}, fmt.Errorf("no value field")
	}
	at := time.Now()
	if msg.Timestamp != "" {
		parsed, err := time.Parse(time.RFC3339, msg.Timestamp)
		if err != nil {
			return 0, time.Time{}, fmt.Errorf("bad timestamp: %w", err)
		}
		at = parsed
	}
	return *msg.Value, at, nil
}

// MQTTActuator publishes relay commands to a topic. It implements
// both actuator interfaces; the payload states which form was used.
type MQTTActuator struct {
	client mqtt.Client
	topic  string
	qos    byte
	logger *log.Logger
}

// NewMQTTActuator connects a publisher.
func NewMQTTActuator(opts MQTTOptions) (*MQTTActuator, error) {
	if err := opts.normalize("actuator"); err != nil {
		return nil, err
	}
	a := &MQTTActuator{
		topic:  opts.Topic,
		qos:    opts.QoS,
		logger: log.GetLogger("mqtt"),
	}
	a.client = mqtt.NewClient(opts.clientOptions())
	if token := a.client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("drivers: mqtt connect: %w", token.Error())
	}
	return a, nil
}

// SetValue publishes a continuous setpoint command.
func (a *MQTTActuator) SetValue(value float64) error {
	return a.publish(commandPayload{Value: &value})
}

// SetDuty publishes a time-proportioned command in seconds.
func (a *MQTTActuator) SetDuty(on, period time.Duration) error {
	onSec := on.Seconds()
	periodSec := period.Seconds()
	return a.publish(commandPayload{OnSeconds: &onSec, PeriodSeconds: &periodSec})
}

// Close disconnects from the broker.
func (a *MQTTActuator) Close() {
	a.client.Disconnect(250)
}

type commandPayload struct {
	Value         *float64 `json:"value,omitempty"`
	OnSeconds     *float64 `json:"on_seconds,omitempty"`
	PeriodSeconds *float64 `json:"period_seconds,omitempty"`
}

func (a *MQTTActuator) publish(cmd commandPayload) error {
	data, err := json.Marshal(cmd)
	if err != nil {
		return err
	}
	token := a.client.Publish(a.topic, a.qos, false, data)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("drivers: mqtt publish %s: %w", a.topic, token.Error())
	}
	return nil
}
