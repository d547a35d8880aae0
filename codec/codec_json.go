package codec

import "encoding/json"

// JSON encodes/decodes records as JSON.
type JSON struct{}

func (c *JSON) Encode(record any) ([]byte, error) {
	return json.Marshal(record)
}

func (c *JSON) Decode(data []byte, record any) error {
	return json.Unmarshal(data, record)
}

func (c *JSON) Name() string { return NameJSON }
