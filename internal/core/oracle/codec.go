package oracle

import (
	"github.com/AntoineMrtl/oracle-swap-back/internal/codec/cbor"
	"github.com/AntoineMrtl/oracle-swap-back/internal/core/tx"
)

// EncodeBody encodes an update body.
func EncodeBody(body UpdateBody) ([]byte, error) {
	return cbor.Marshal(body)
}

// EncodeEnvelope encodes a signed envelope into an update payload.
func EncodeEnvelope(env Envelope) ([]byte, error) {
	return cbor.Marshal(env)
}

// DecodeEnvelope decodes the outer envelope of a payload without looking at
// the body. Any structural problem is temMALFORMED.
func DecodeEnvelope(payload []byte) (Envelope, error) {
	var env Envelope
	if len(payload) == 0 || len(payload) > MaxPayloadSize {
		return env, tx.TemMALFORMED
	}
	if err := cbor.Unmarshal(payload, &env); err != nil {
		return env, tx.TemMALFORMED
	}
	if len(env.Body) == 0 || len(env.PublisherKey) == 0 || len(env.Signature) == 0 {
		return env, tx.TemMALFORMED
	}
	return env, nil
}

// DecodeBody decodes and structurally validates an update body.
func DecodeBody(data []byte) (UpdateBody, error) {
	var body UpdateBody
	if err := cbor.Unmarshal(data, &body); err != nil {
		return body, tx.TemMALFORMED
	}
	if body.Magic != PayloadMagic || body.Version != PayloadVersion {
		return body, tx.TemMALFORMED
	}
	if len(body.Updates) == 0 || len(body.Updates) > MaxUpdatesPerPayload {
		return body, tx.TemMALFORMED
	}
	for _, u := range body.Updates {
		if u.FeedID.IsZero() || u.Mantissa <= 0 || u.PublishTime <= 0 || u.Expo < MinExpo || u.Expo > MaxExpo {
			return body, tx.TemMALFORMED
		}
	}
	return body, nil
}

// decoded is a payload that passed structural checks.
type decoded struct {
	env  Envelope
	body UpdateBody
}

func decodeBatch(batch [][]byte) ([]decoded, error) {
	if len(batch) > MaxBatchSize {
		return nil, tx.TemMALFORMED
	}
	out := make([]decoded, 0, len(batch))
	for _, payload := range batch {
		env, err := DecodeEnvelope(payload)
		if err != nil {
			return nil, err
		}
		body, err := DecodeBody(env.Body)
		if err != nil {
			return nil, err
		}
		out = append(out, decoded{env: env, body: body})
	}
	return out, nil
}

func countUpdates(payloads []decoded) uint64 {
	var n uint64
	for _, p := range payloads {
		n += uint64(len(p.body.Updates))
	}
	return n
}
