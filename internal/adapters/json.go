package adapters

import "encoding/json"

func decodeJSON(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

// DecodeSessionCommand parses a raw session.control payload.
func DecodeSessionCommand(data []byte) (SessionCommand, error) {
	var cmd SessionCommand
	if err := json.Unmarshal(data, &cmd); err != nil {
		return SessionCommand{}, err
	}
	return cmd, nil
}
