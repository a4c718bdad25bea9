package publisher

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSPublisher announces computed journeys on NATS
type NATSPublisher struct {
	nc      *nats.Conn
	subject string
	metrics PublisherMetrics
}

type PublisherMetrics interface {
	NATSPublishedInc()
	NATSPublishErrInc()
	NATSSetConnected(connected bool)
}

func NewNATSPublisher(url, subject string, m PublisherMetrics) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("connscan"),
		nats.DisconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			log.Printf("nats disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(true)
			}
			log.Printf("nats reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			log.Printf("nats closed")
		}),
	)
	if err != nil {
		return nil, err
	}
	if m != nil {
		m.NATSSetConnected(true)
	}
	return &NATSPublisher{nc: nc, subject: subject, metrics: m}, nil
}

func (p *NATSPublisher) Close() {
	if p.nc != nil {
		p.nc.Drain()
		p.nc.Close()
	}
}

// JourneyEvent is published once per successful journey search
type JourneyEvent struct {
	From          string    `json:"from"`
	To            string    `json:"to"`
	Priority      string    `json:"priority"`
	RequestedAt   time.Time `json:"requestedAt"`
	DepartureTime time.Time `json:"departureTime"`
	ArrivalTime   time.Time `json:"arrivalTime"`
	Transfers     int       `json:"transfers"`
	Connections   int       `json:"connections"`
	Cached        bool      `json:"cached"`
}

// Subject returns the subject an event is published on:
// <prefix>.<priority>.<from>.<to>
func (p *NATSPublisher) Subject(ev JourneyEvent) string {
	return JourneySubject(p.subject, ev)
}

func JourneySubject(prefix string, ev JourneyEvent) string {
	return fmt.Sprintf("%s.%s.%s.%s", prefix, subjectToken(ev.Priority), subjectToken(ev.From), subjectToken(ev.To))
}

func (p *NATSPublisher) PublishJourney(ev JourneyEvent) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	err = p.nc.Publish(p.Subject(ev), b)
	if p.metrics != nil {
		if err != nil {
			p.metrics.NATSPublishErrInc()
		} else {
			p.metrics.NATSPublishedInc()
		}
	}
	return err
}

func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	// NATS token cannot contain spaces, '>', '*', or trailing '.'
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}
