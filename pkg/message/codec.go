package message

import (
	"encoding/json"
	"fmt"
)

// DecodeRequest parses a JSON request with a "type" discriminator.
func DecodeRequest(data []byte) (Request, error) {
	var head struct {
		Type Kind `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}

	var req Request
	var err error
	switch head.Type {
	case KindStatus:
		req = Status{}
	case KindUnlock:
		var r Unlock
		err = json.Unmarshal(data, &r)
		req = r
	case KindLock:
		req = Lock{}
	case KindGetCredentialsForOrigin:
		var r GetCredentialsForOrigin
		err = json.Unmarshal(data, &r)
		req = r
	case KindSaveCredential:
		var r SaveCredential
		err = json.Unmarshal(data, &r)
		req = r
	case KindListCredentials:
		req = ListCredentials{}
	case KindDeleteCredential:
		var r DeleteCredential
		err = json.Unmarshal(data, &r)
		req = r
	case KindSetAutolockDuration:
		var r SetAutolockDuration
		err = json.Unmarshal(data, &r)
		req = r
	case KindTriggerAutofill:
		req = TriggerAutofill{}
	case KindApplyCredential:
		var r ApplyCredential
		err = json.Unmarshal(data, &r)
		req = r
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrBadRequest, head.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	return req, nil
}

// EncodeRequest renders req as a JSON object with its "type" tag.
func EncodeRequest(req Request) ([]byte, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	tag, _ := json.Marshal(req.Kind())
	fields["type"] = tag
	return json.Marshal(fields)
}
