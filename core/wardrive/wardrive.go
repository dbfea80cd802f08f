// Package wardrive turns decoded MeshCore packets into map facts: repeater
// positions from adverts and coverage samples from a watched group channel.
//
// Decoders here only extract; location admissibility is decided by the
// caller so that rejections can be logged and counted in one place.
package wardrive

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kabili207/meshcore-wardrive/core/codec"
	"github.com/kabili207/meshcore-wardrive/core/coords"
	"github.com/kabili207/meshcore-wardrive/core/crypto"
)

// GrpTxtHeaderSize is the number of decrypted bytes (timestamp + type/attempt)
// preceding the message text.
const GrpTxtHeaderSize = 5

var (
	ErrPlaintextTooShort    = errors.New("decrypted payload too short")
	ErrCiphertextNotAligned = crypto.ErrCiphertextNotAligned
)

// Repeater is a repeater node position taken from an advert.
type Repeater struct {
	ID   string // first public key byte, 2 lowercase hex chars
	Name string
	Lat  float64
	Lon  float64
}

// Sample is a coverage sample attributed to the repeater that first relayed it.
type Sample struct {
	Lat  float64
	Lon  float64
	Path []string // exactly one hop ID
}

// PathRecord describes the route one observer saw a packet take.
type PathRecord struct {
	PacketHash   string
	PacketType   int
	RouteType    int
	ObserverID   string
	ObserverName string
	SourceNode   string
	DestNode     string
	Path         []string
	Timestamp    int64 // milliseconds since epoch
}

// NewPathRecord fills source and destination from the ends of path.
func NewPathRecord(hash string, packetType, routeType int, observerID, observerName string, path []string, ts int64) PathRecord {
	rec := PathRecord{
		PacketHash:   hash,
		PacketType:   packetType,
		RouteType:    routeType,
		ObserverID:   observerID,
		ObserverName: observerName,
		Path:         path,
		Timestamp:    ts,
	}
	if len(path) > 0 {
		rec.SourceNode = path[0]
		rec.DestNode = path[len(path)-1]
	}
	return rec
}

// DecodeRepeater decodes an ADVERT packet. It returns nil without error when
// the advertising node is not a repeater. Repeaters without a location
// report 0, 0. Optional fields are only read for repeaters.
func DecodeRepeater(pkt *codec.Packet) (*Repeater, error) {
	nodeType, err := codec.AdvertNodeType(pkt.Payload)
	if err != nil {
		return nil, err
	}
	if nodeType != codec.NodeTypeRepeater {
		return nil, nil
	}

	advert, err := codec.ParseAdvertPayload(pkt.Payload)
	if err != nil {
		return nil, err
	}
	ad := advert.AppData

	r := &Repeater{
		ID:   codec.HopIDs(advert.PubKey[:1])[0],
		Name: ad.Name,
	}
	if ad.HasLocation() {
		r.Lat, r.Lon = *ad.Lat, *ad.Lon
	}
	return r, nil
}

// ChannelDecoder decrypts group messages on one watched channel.
type ChannelDecoder struct {
	hash uint8
	key  []byte
}

// NewChannelDecoder returns a decoder for the channel identified by hash and
// encrypted with key.
func NewChannelDecoder(hash uint8, key []byte) (*ChannelDecoder, error) {
	if err := crypto.ValidateKey(key); err != nil {
		return nil, err
	}
	return &ChannelDecoder{hash: hash, key: append([]byte(nil), key...)}, nil
}

// ChannelHash returns the watched channel hash.
func (d *ChannelDecoder) ChannelHash() uint8 {
	return d.hash
}

// DecryptText decrypts a group payload on the watched channel and returns its
// lowercased message text. ok is false without error when the payload belongs
// to another channel.
func (d *ChannelDecoder) DecryptText(payload []byte) (text string, ok bool, err error) {
	gp, err := codec.ParseGroupPayload(payload)
	if err != nil {
		return "", false, err
	}

	if len(gp.Ciphertext)%crypto.CipherBlockSize != 0 {
		return "", false, fmt.Errorf("%w: %d bytes", ErrCiphertextNotAligned, len(gp.Ciphertext))
	}

	if gp.ChannelHash != d.hash {
		return "", false, nil
	}

	// gp.MAC is not verified.
	data, err := crypto.DecryptGroupCiphertext(gp.Ciphertext, d.key)
	if err != nil {
		return "", false, err
	}

	if len(data) <= 4 {
		return "", false, fmt.Errorf("%w: %d bytes", ErrPlaintextTooShort, len(data))
	}

	var body []byte
	if len(data) > GrpTxtHeaderSize {
		body = data[GrpTxtHeaderSize:]
	}
	return strings.ToLower(codec.DecodeText(body)), true, nil
}

// DecodeSample decodes a GRP_TXT packet into a coverage sample. hops is the
// packet's path as reported, observer included. It returns nil without error
// when the message is for another channel, holds no coordinates, or has no
// hop to attribute it to.
//
// The sample is attributed to the first hop. A sender riding with a mobile
// repeater names that repeater after the coordinates; when it matches the
// first hop, the second hop is used instead.
func (d *ChannelDecoder) DecodeSample(pkt *codec.Packet, hops []string) (*Sample, error) {
	text, ok, err := d.DecryptText(pkt.Payload)
	if err != nil || !ok {
		return nil, err
	}

	m, ok := coords.Extract(text)
	if !ok {
		return nil, nil
	}

	hop := FirstRelay(hops, m.Ignored)
	if hop == "" {
		return nil, nil
	}

	return &Sample{Lat: m.Lat, Lon: m.Lon, Path: []string{hop}}, nil
}

// FirstRelay returns the hop a sample is attributed to: the first hop, or the
// second when the first is the ignored repeater.
func FirstRelay(hops []string, ignored string) string {
	hop := hopAt(hops, 0)
	if ignored != "" && ignored == hop {
		return hopAt(hops, 1)
	}
	return hop
}

func hopAt(hops []string, i int) string {
	if i < len(hops) {
		return hops[i]
	}
	return ""
}
