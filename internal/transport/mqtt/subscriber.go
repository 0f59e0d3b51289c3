package mqtt

import (
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"charger-monitor/reliability/internal/domain"
)

type Ingester interface {
	Ingest(source string, obs *domain.Observation) error
}

// Subscriber feeds charger status topics into the ingest pipeline.
type Subscriber struct {
	client paho.Client
	topic  string
	ingest Ingester
	log    *logrus.Logger
	now    func() time.Time
}

func NewSubscriber(broker, clientID, topic string, ingest Ingester, log *logrus.Logger) (*Subscriber, error) {
	s := &Subscriber{
		topic:  topic,
		ingest: ingest,
		log:    log,
		now:    time.Now,
	}

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOnConnectHandler(s.subscribe).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.WithError(err).Warn("mqtt connection lost")
		})

	s.client = paho.NewClient(opts)
	token := s.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return s, nil
}

// subscribe runs on every (re)connect since the session is not persistent.
func (s *Subscriber) subscribe(c paho.Client) {
	token := c.Subscribe(s.topic, 1, s.handle)
	if !token.WaitTimeout(10*time.Second) || token.Error() != nil {
		s.log.WithError(token.Error()).WithField("topic", s.topic).Error("mqtt subscribe failed")
		return
	}
	s.log.WithField("topic", s.topic).Info("mqtt subscribed")
}

func (s *Subscriber) handle(_ paho.Client, msg paho.Message) {
	s.process(msg.Topic(), msg.Payload())
}

func (s *Subscriber) process(topic string, payload []byte) {
	fields := logrus.Fields{"topic": topic}
	chargerID, err := ChargerFromTopic(topic)
	if err != nil {
		s.log.WithError(err).WithFields(fields).Warn("status message dropped")
		return
	}
	fields["charger_id"] = chargerID

	obs, err := ParsePayload(chargerID, payload, s.now())
	if err != nil {
		s.log.WithError(err).WithFields(fields).Warn("status message dropped")
		return
	}
	if err := s.ingest.Ingest("mqtt", &obs); err != nil {
		s.log.WithError(err).WithFields(fields).Warn("status message rejected")
	}
}

func (s *Subscriber) Close() {
	s.client.Disconnect(1000)
}
