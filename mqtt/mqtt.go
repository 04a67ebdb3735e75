package mqtt

import (
	"encoding/json"
	"log"
	"time"

	MQTT "github.com/eclipse/paho.mqtt.golang"

	"doorworks/prox/card"
)

type Config struct {
	// Address for MQTT broker (e.g. "tcp://foobar.com:1883").
	// Leave empty to disable MQTT entirely.
	BrokerAddr string `yaml:"broker_addr"`
	// Username for MQTT broker (ignored if empty)
	Username string `yaml:"username"`
	// Password for MQTT broker (ignored if empty)
	Password string `yaml:"password"`
	// Client ID for MQTT broker (ignored if empty)
	ClientID string `yaml:"client_id"`
	// MQTT topic to which we'll publish card scans
	TopicCard string `yaml:"topic_card"`
	// MQTT topic to which we'll publish contact sensor changes
	TopicContact string `yaml:"topic_contact"`
}

func NewClient(c Config) MQTT.Client {

	opts := MQTT.NewClientOptions()
	opts.AddBroker(c.BrokerAddr)
	opts.SetClientID(c.ClientID)
	opts.SetUsername(c.Username)
	opts.SetPassword(c.Password)
	opts.SetDefaultPublishHandler(
		func(client MQTT.Client, msg MQTT.Message) {
			log.Printf("MQTT: recv topic %s: %s", msg.Topic(), msg.Payload())
		})
	opts.SetOnConnectHandler(
		func(client MQTT.Client) {
			log.Printf("MQTT: connected")
		})
	opts.SetConnectionLostHandler(
		func(client MQTT.Client, err error) {
			log.Printf("MQTT: connection lost: %v", err)
		})
	opts.SetReconnectingHandler(
		func(client MQTT.Client, options *MQTT.ClientOptions) {
			log.Printf("MQTT: reconnecting")
		})
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(10 * time.Second)
	client := MQTT.NewClient(opts)

	go func(client MQTT.Client) {
		for {
			token := client.Connect()
			if token.Wait() && token.Error() != nil {
				log.Printf("MQTT: unable to connect, %s", token.Error())
				<-time.After(10 * time.Second)
			} else {
				break
			}
		}
	}(client)

	return client
}

// scanMessage is the JSON payload published for each card scan.
type scanMessage struct {
	Format   string    `json:"format"`
	Facility uint32    `json:"facility"`
	Number   uint64    `json:"number"`
	Bits     int       `json:"bits"`
	ParityOK bool      `json:"parity_ok"`
	Raw      string    `json:"raw"`
	Time     time.Time `json:"time"`
}

// contactMessage is the JSON payload published for each contact
// sensor transition.
type contactMessage struct {
	Closed bool      `json:"closed"`
	Time   time.Time `json:"time"`
}

func cardPayload(c card.Card, at time.Time) ([]byte, error) {
	return json.Marshal(scanMessage{
		Format:   c.Format.String(),
		Facility: c.Facility,
		Number:   c.Number,
		Bits:     c.BitCount,
		ParityOK: c.ParityOK,
		Raw:      c.BitString(),
		Time:     at,
	})
}

func contactPayload(closed bool, at time.Time) ([]byte, error) {
	return json.Marshal(contactMessage{Closed: closed, Time: at})
}

// PublishCard publishes one card scan to the topic.  Delivery is
// fire-and-forget; the client retries connections on its own.
func PublishCard(client MQTT.Client, topic string, c card.Card) error {
	payload, err := cardPayload(c, time.Now())
	if err != nil {
		return err
	}
	client.Publish(topic, 0, false, payload)
	return nil
}

// PublishContact publishes one contact sensor transition to the topic.
func PublishContact(client MQTT.Client, topic string, closed bool) error {
	payload, err := contactPayload(closed, time.Now())
	if err != nil {
		return err
	}
	client.Publish(topic, 0, false, payload)
	return nil
}
