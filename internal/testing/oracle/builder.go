package oracle

import (
	"time"

	"github.com/AntoineMrtl/oracle-swap-back/internal/codec/cbor"
	"github.com/AntoineMrtl/oracle-swap-back/internal/core/oracle"
	"github.com/AntoineMrtl/oracle-swap-back/internal/testing"
)

// BatchBuilder provides a fluent interface for building price update batches.
// Each Payload call starts a new payload, optionally signed by another account.
type BatchBuilder struct {
	payloads []*payloadBuilder
}

type payloadBuilder struct {
	signer  *testing.Account
	magic   uint32
	version uint8
	updates []oracle.PriceUpdate
	tamper  bool
	rawKey  []byte
}

// Batch creates a new BatchBuilder whose first payload is signed by signer.
func Batch(signer *testing.Account) *BatchBuilder {
	b := &BatchBuilder{}
	return b.Payload(signer)
}

// Payload starts a new payload signed by signer.
func (b *BatchBuilder) Payload(signer *testing.Account) *BatchBuilder {
	b.payloads = append(b.payloads, &payloadBuilder{
		signer:  signer,
		magic:   oracle.PayloadMagic,
		version: oracle.PayloadVersion,
	})
	return b
}

func (b *BatchBuilder) current() *payloadBuilder {
	return b.payloads[len(b.payloads)-1]
}

// Price adds an update for feed with a decimal price such as "20000.00".
func (b *BatchBuilder) Price(feed oracle.FeedID, price string, publishTime time.Time) *BatchBuilder {
	return b.RawPrice(feed, testing.PriceMantissa(price), testing.PriceExpo, publishTime)
}

// RawPrice adds an update with an explicit mantissa and exponent.
func (b *BatchBuilder) RawPrice(feed oracle.FeedID, mantissa int64, expo int32, publishTime time.Time) *BatchBuilder {
	p := b.current()
	p.updates = append(p.updates, oracle.PriceUpdate{
		FeedID:      feed,
		Mantissa:    mantissa,
		Expo:        expo,
		Conf:        uint64(mantissa / 1000),
		PublishTime: publishTime.Unix(),
	})
	return b
}

// Version overrides the body version of the current payload.
func (b *BatchBuilder) Version(v uint8) *BatchBuilder {
	b.current().version = v
	return b
}

// Magic overrides the body magic of the current payload.
func (b *BatchBuilder) Magic(m uint32) *BatchBuilder {
	b.current().magic = m
	return b
}

// Tamper flips a bit of the current payload body after signing.
func (b *BatchBuilder) Tamper() *BatchBuilder {
	b.current().tamper = true
	return b
}

// PublisherKey replaces the public key in the envelope after signing.
func (b *BatchBuilder) PublisherKey(key []byte) *BatchBuilder {
	b.current().rawKey = key
	return b
}

// Build signs every payload and returns the batch.
func (b *BatchBuilder) Build() [][]byte {
	out := make([][]byte, 0, len(b.payloads))
	for _, p := range b.payloads {
		out = append(out, p.build())
	}
	return out
}

func (p *payloadBuilder) build() []byte {
	body, err := oracle.EncodeBody(oracle.UpdateBody{
		Magic:   p.magic,
		Version: p.version,
		Updates: p.updates,
	})
	if err != nil {
		panic(err)
	}
	payload, err := p.signer.Publisher.SignBody(body)
	if err != nil {
		panic(err)
	}
	if !p.tamper && p.rawKey == nil {
		return payload
	}

	var env oracle.Envelope
	if err := cbor.Unmarshal(payload, &env); err != nil {
		panic(err)
	}
	if p.tamper {
		// Re-encode the body with a shifted price so it still decodes.
		tampered := oracle.UpdateBody{Magic: p.magic, Version: p.version, Updates: append([]oracle.PriceUpdate(nil), p.updates...)}
		if len(tampered.Updates) > 0 {
			tampered.Updates[0].Mantissa++
		}
		if env.Body, err = oracle.EncodeBody(tampered); err != nil {
			panic(err)
		}
	}
	if p.rawKey != nil {
		env.PublisherKey = p.rawKey
	}
	payload, err = oracle.EncodeEnvelope(env)
	if err != nil {
		panic(err)
	}
	return payload
}
