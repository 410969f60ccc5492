package mqtt

import (
	"testing"

	"camspec2mqtt/internal/config"

	"github.com/stretchr/testify/assert"
)

type fakeMessage struct {
	topic   string
	payload string
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 0 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 0 }
func (m fakeMessage) Payload() []byte   { return []byte(m.payload) }
func (m fakeMessage) Ack()              {}

func testClient() *MQTTClient {
	return &MQTTClient{
		cfg:                      config.MQTTConfig{BaseTopic: "camspec"},
		switchCommandRegexp:      switchCommandExtractor("camspec"),
		inputNumberCommandRegexp: inputNumberCommandExtractor("camspec"),
	}
}

func TestParseAcquireSwitchCommand(t *testing.T) {
	c := testClient()

	cmd, err := c.ParseMQTTCommand(fakeMessage{topic: "camspec/switch/acquire/command", payload: "on"})
	assert.NoError(t, err)
	assert.Equal(t, "acquire", cmd.EntityId)
	assert.Equal(t, "switch", cmd.Command)
	assert.Equal(t, "on", cmd.Payload)
}

func TestParseAttributeNumberCommand(t *testing.T) {
	c := testClient()

	cmd, err := c.ParseMQTTCommand(fakeMessage{topic: "camspec/number/gain/set", payload: "2.5"})
	assert.NoError(t, err)
	assert.Equal(t, "gain", cmd.EntityId)
	assert.Equal(t, "number", cmd.Command)
	assert.Equal(t, "2.5", cmd.Payload)
}

func TestParseNumberCommandRejectsNonNumericPayload(t *testing.T) {
	c := testClient()

	_, err := c.ParseMQTTCommand(fakeMessage{topic: "camspec/number/exposuretime/set", payload: "fast"})
	assert.Error(t, err)
}

func TestParseIgnoresStateTopics(t *testing.T) {
	c := testClient()

	_, err := c.ParseMQTTCommand(fakeMessage{topic: "camspec/switch/acquire/state", payload: "on"})
	assert.Error(t, err)
	_, err = c.ParseMQTTCommand(fakeMessage{topic: "camspec/sensor/spectrum_peak/state", payload: "512.3"})
	assert.Error(t, err)
}

func TestSwitchCommandExtractor(t *testing.T) {
	r := switchCommandExtractor("camspec")
	matches := r.FindAllStringSubmatch("camspec/switch/acquire/command", 1)
	assert.Equal(t, "acquire", matches[0][1])

	assert.Empty(t, r.FindAllStringSubmatch("camspec/switch/acquire/state", 1))
}

func TestInputNumberCommandExtractor(t *testing.T) {
	r := inputNumberCommandExtractor("camspec")
	matches := r.FindAllStringSubmatch("camspec/number/exposuretime/set", 1)
	assert.Equal(t, "exposuretime", matches[0][1])

	assert.Empty(t, r.FindAllStringSubmatch("camspec/switch/exposuretime/command", 1))
}
