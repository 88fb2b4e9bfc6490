/* Copyright 2020 Comcast Cable Communications Management, LLC
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 * http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/Comcast/rover/sio"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTCouplings is an sio.Couplings for an MQTT client.
//
// Each in-bound payload is one message.  Emitted messages are
// published as JSON to their "topic" property or to the default
// out-bound topic.
type MQTTCouplings struct {
	Client               mqtt.Client
	Quiesce              uint
	SubTopics            string
	DefaultOutboundTopic string

	InTimeout time.Duration

	incoming chan []byte
	outbound chan *sio.Result
	done     chan bool
}

func NewMQTTCouplings(args []string) (*MQTTCouplings, *flag.FlagSet) {
	var (
		// Follow mosquitto_sub command line args.

		fs = flag.NewFlagSet("mq", flag.ExitOnError)

		broker      = fs.String("h", "tcp://localhost", "Broker hostname")
		clientId    = fs.String("i", "", "Client id")
		port        = fs.Int("p", 1883, "Broker port")
		keepAlive   = fs.Int("k", 10, "Keep-alive in seconds")
		userName    = fs.String("u", "", "Username")
		password    = fs.String("P", "", "Password")
		willTopic   = fs.String("will-topic", "", "Optional will topic")
		willPayload = fs.String("will-payload", "", "Optional will message")
		willQoS     = fs.Int("will-qos", 0, "Optional will QoS")
		willRetain  = fs.Bool("will-retain", false, "Optional will retention")
		reconnect   = fs.Bool("reconnect", true, "Automatically attempt to reconnect")
		clean       = fs.Bool("c", true, "Clean session")
		quiesce     = fs.Int("quiesce", 100, "Disconnection quiescence (in milliseconds)")

		certFilename = fs.String("cert", "", "Optional cert filename")
		keyFilename  = fs.String("key", "", "Optional key filename")
		insecure     = fs.Bool("insecure", false, "Skip broker cert checking")
		caFilename   = fs.String("cafile", "", "Optional CA cert filename")

		subTopics = fs.String("t", "rover/commands", "subscription topic(s) as TOPIC[:QOS],...")

		defaultOutboundTopic = fs.String("def-outbound-topic", "rover/out", "Default out-bound message topic")
		inTimeout            = fs.Duration("in-timeout", time.Second, "timeout for in-bound queuing")
	)

	if args == nil {
		return nil, fs
	}

	fs.Parse(args)

	mqtt.ERROR = log.New(os.Stderr, "mqtt.error ", 0)

	opts := mqtt.NewClientOptions()

	opts.AddBroker(fmt.Sprintf("%s:%d", *broker, *port))
	opts.SetClientID(*clientId)
	opts.SetKeepAlive(time.Second * time.Duration(*keepAlive))

	opts.Username = *userName
	opts.Password = *password
	opts.AutoReconnect = *reconnect
	opts.CleanSession = *clean

	if *willTopic != "" {
		if *willPayload == "" {
			log.Fatal("will topic without payload")
		}
		opts.WillEnabled = true
		opts.WillTopic = *willTopic
		opts.WillPayload = []byte(*willPayload)
		opts.WillRetained = *willRetain
		opts.WillQos = byte(*willQoS)
	}

	tlsConf := &tls.Config{
		InsecureSkipVerify: *insecure,
	}

	if *caFilename != "" {
		rootCAs, _ := x509.SystemCertPool()
		if rootCAs == nil {
			rootCAs = x509.NewCertPool()
		}
		certs, err := os.ReadFile(*caFilename)
		if err != nil {
			log.Fatalf("couldn't read '%s': %s", *caFilename, err)
		}
		if ok := rootCAs.AppendCertsFromPEM(certs); !ok {
			log.Println("No certs appended, using system certs only")
		}
		tlsConf.RootCAs = rootCAs
	}

	if *keyFilename != "" {
		cert, err := tls.LoadX509KeyPair(*certFilename, *keyFilename)
		if err != nil {
			log.Fatal(err)
		}
		tlsConf.Certificates = []tls.Certificate{cert}
	}

	opts.SetTLSConfig(tlsConf)

	opts.OnConnectionLost = func(client mqtt.Client, err error) {
		log.Printf("MQTT connection lost: %s", err)
	}

	c := &MQTTCouplings{
		Quiesce:              uint(*quiesce),
		SubTopics:            *subTopics,
		DefaultOutboundTopic: *defaultOutboundTopic,
		InTimeout:            *inTimeout,

		incoming: make(chan []byte),
		outbound: make(chan *sio.Result),
		done:     make(chan bool),
	}

	c.Client = mqtt.NewClient(opts)

	return c, fs
}

// inHandler is a Paho publish handler, which is used to handle
// messages send to us from the MQTT broker due to our subscriptions.
func (c *MQTTCouplings) inHandler(ctx context.Context, client mqtt.Client, msg mqtt.Message) {
	payload := sio.TrimEOL(msg.Payload())
	log.Printf("incoming: %s %s\n", msg.Topic(), payload)

	to := time.NewTimer(c.InTimeout)
	defer to.Stop()

	select {
	case <-ctx.Done():
		log.Printf("Not forwarding due to ctx.Done()")
	case c.incoming <- payload:
	case <-to.C:
		log.Printf("Not forwarding due to stall")
	}
}

// Start creates the MQTT session and starts the out-bound loop.
func (c *MQTTCouplings) Start(ctx context.Context) error {
	log.Printf("Attempting to connect to broker")
	if token := c.Client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	log.Printf("Connected to broker")

	handler := func(client mqtt.Client, msg mqtt.Message) {
		c.inHandler(ctx, client, msg)
	}

	for _, topic := range strings.Split(c.SubTopics, ",") {
		topic, qos := parseTopic(topic)
		if topic == "" {
			continue
		}
		log.Printf("Subscribing to %s (%d)", topic, qos)
		if t := c.Client.Subscribe(topic, qos, handler); t.Wait() && t.Error() != nil {
			return t.Error()
		}
	}

	go c.outLoop(ctx)

	log.Printf("Couplings started")

	return nil
}

// IO returns the channels.
func (c *MQTTCouplings) IO(ctx context.Context) (chan []byte, chan *sio.Result, chan bool, error) {
	return c.incoming, c.outbound, c.done, nil
}

// route determines the topic, QoS, and payload for an emitted
// message.
func (c *MQTTCouplings) route(x interface{}) (string, byte, []byte, error) {
	topic, qos := parseTopic(c.DefaultOutboundTopic)
	if m, is := x.(map[string]interface{}); is {
		if s, is := m["topic"].(string); is {
			topic, qos = parseTopic(s)
		}
		if n, have := m["qos"]; have {
			switch vv := n.(type) {
			case float64:
				qos = byte(vv)
			case int:
				qos = byte(vv)
			default:
				log.Printf("warning: ignoring qos %#v %T", n, n)
			}
		}
	}
	js, err := json.Marshal(x)
	return topic, qos, js, err
}

// outLoop forwards messages outbound from the Station to the MQTT
// broker.
func (c *MQTTCouplings) outLoop(ctx context.Context) {
LOOP:
	for {
		select {
		case <-ctx.Done():
			break LOOP
		case r := <-c.outbound:
			for _, x := range r.Emitted {
				topic, qos, js, err := c.route(x)
				if err != nil {
					log.Printf("Failed to marshal %#v", x)
					continue
				}
				token := c.Client.Publish(topic, qos, false, js)
				token.Wait()
				if token.Error() != nil {
					log.Printf("Publish error: %s", token.Error())
				}
			}
		}
	}
}

// Stop terminates the MQTT session.
func (c *MQTTCouplings) Stop(ctx context.Context) error {
	log.Printf("Disconnecting")
	c.Client.Disconnect(c.Quiesce)
	close(c.done)
	return nil
}

// parseTopic can extract QoS from a topic name of the form TOPIC:QOS.
func parseTopic(s string) (string, byte) {
	var (
		topic string
		qos   byte
	)
	if _, err := fmt.Sscanf(strings.Replace(s, ":", " ", 1), "%s %d", &topic, &qos); err == nil {
		return topic, qos
	}
	return strings.TrimSpace(s), 0
}
