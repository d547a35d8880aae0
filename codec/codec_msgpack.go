package codec

import "github.com/vmihailenco/msgpack/v5"

// Msgpack encodes/decodes records as MessagePack.
type Msgpack struct{}

func (c *Msgpack) Encode(record any) ([]byte, error) {
	return msgpack.Marshal(record)
}

func (c *Msgpack) Decode(data []byte, record any) error {
	return msgpack.Unmarshal(data, record)
}

func (c *Msgpack) Name() string { return NameMsgpack }
