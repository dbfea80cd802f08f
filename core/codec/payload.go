package codec

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// Advert payload sizes
	AdvertPubKeySize    = 32
	AdvertTimestampSize = 4
	AdvertSignatureSize = 64
	AdvertMinSize       = AdvertPubKeySize + AdvertTimestampSize + AdvertSignatureSize // 100 bytes

	// AppData flags - node types (lower 4 bits)
	NodeTypeChat     = 0x01
	NodeTypeRepeater = 0x02
	NodeTypeRoom     = 0x03
	NodeTypeSensor   = 0x04
	NodeTypeMask     = 0x0F

	// AppData flags - presence flags (upper 4 bits)
	FlagHasLocation = 0x10
	FlagHasFeature1 = 0x20
	FlagHasFeature2 = 0x40
	FlagHasName     = 0x80

	// Coordinate scale factor (lat/lon stored as int32 * 1_000_000)
	CoordScale = 1_000_000.0

	// Group payload header size (GRP_TXT, GRP_DATA)
	// channel_hash(1) + MAC(2) = 3 bytes
	GroupHeaderSize = 3
)

var (
	ErrAdvertTooShort  = errors.New("advert payload too short")
	ErrAppDataTooShort = errors.New("appdata too short")
	ErrGroupTooShort   = errors.New("group payload too short")
)

// AdvertPayload represents a parsed node advertisement payload.
type AdvertPayload struct {
	PubKey    [32]byte
	Timestamp uint32
	Signature [64]byte
	AppData   *AdvertAppData
}

// AdvertAppData represents the application data that follows the signature.
type AdvertAppData struct {
	Flags    uint8
	NodeType uint8    // Lower 4 bits of flags: chat, repeater, room, sensor
	Name     string   // Node name (if FlagHasName set)
	Lat      *float64 // Latitude in decimal degrees (if FlagHasLocation set)
	Lon      *float64 // Longitude in decimal degrees (if FlagHasLocation set)
	Feature1 *uint16  // Reserved (if FlagHasFeature1 set)
	Feature2 *uint16  // Reserved (if FlagHasFeature2 set)
}

// ParseAdvertPayload parses an ADVERT payload. Fields are read strictly in
// wire order; the flags byte is required.
func ParseAdvertPayload(data []byte) (*AdvertPayload, error) {
	r := NewReader(data)
	advert := &AdvertPayload{}

	pub, err := r.Bytes(AdvertPubKeySize)
	if err != nil {
		return nil, fmt.Errorf("%w: public key: %w", ErrAdvertTooShort, err)
	}
	copy(advert.PubKey[:], pub)

	if advert.Timestamp, err = r.Uint32LE(); err != nil {
		return nil, fmt.Errorf("%w: timestamp: %w", ErrAdvertTooShort, err)
	}

	sig, err := r.Bytes(AdvertSignatureSize)
	if err != nil {
		return nil, fmt.Errorf("%w: signature: %w", ErrAdvertTooShort, err)
	}
	copy(advert.Signature[:], sig)

	appData, err := readAdvertAppData(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse appdata: %w", err)
	}
	advert.AppData = appData

	return advert, nil
}

// AdvertNodeType returns the node type from an ADVERT payload's flags byte
// without reading any of the optional fields that follow it.
func AdvertNodeType(data []byte) (uint8, error) {
	r := NewReader(data)
	if err := r.Skip(AdvertMinSize); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrAdvertTooShort, err)
	}
	flags, err := r.Uint8()
	if err != nil {
		return 0, fmt.Errorf("%w: flags: %w", ErrAppDataTooShort, err)
	}
	return flags & NodeTypeMask, nil
}

func readAdvertAppData(r *Reader) (*AdvertAppData, error) {
	flags, err := r.Uint8()
	if err != nil {
		return nil, fmt.Errorf("%w: flags: %w", ErrAppDataTooShort, err)
	}

	appData := &AdvertAppData{
		Flags:    flags,
		NodeType: flags & NodeTypeMask,
	}

	if flags&FlagHasLocation != 0 {
		latRaw, err := r.Int32LE()
		if err != nil {
			return nil, fmt.Errorf("%w: latitude: %w", ErrAppDataTooShort, err)
		}
		lonRaw, err := r.Int32LE()
		if err != nil {
			return nil, fmt.Errorf("%w: longitude: %w", ErrAppDataTooShort, err)
		}
		lat := float64(latRaw) / CoordScale
		lon := float64(lonRaw) / CoordScale
		appData.Lat = &lat
		appData.Lon = &lon
	}

	if flags&FlagHasFeature1 != 0 {
		f1, err := r.Uint16LE()
		if err != nil {
			return nil, fmt.Errorf("%w: feature1: %w", ErrAppDataTooShort, err)
		}
		appData.Feature1 = &f1
	}

	if flags&FlagHasFeature2 != 0 {
		f2, err := r.Uint16LE()
		if err != nil {
			return nil, fmt.Errorf("%w: feature2: %w", ErrAppDataTooShort, err)
		}
		appData.Feature2 = &f2
	}

	if flags&FlagHasName != 0 {
		appData.Name = DecodeText(r.Rest())
	}

	return appData, nil
}

// HasLocation returns true if the appdata includes location information.
func (a *AdvertAppData) HasLocation() bool {
	return a.Lat != nil && a.Lon != nil
}

// -----------------------------------------------------------------------------
// Group Payload (GRP_TXT, GRP_DATA)
// -----------------------------------------------------------------------------

// GroupPayload represents a group channel message payload.
type GroupPayload struct {
	ChannelHash uint8  // First byte of SHA256 of the channel's shared key
	MAC         uint16 // Truncated HMAC over the ciphertext; carried, not checked
	Ciphertext  []byte // AES-ECB encrypted content
}

// ParseGroupPayload parses a group payload header. The ciphertext may be empty.
func ParseGroupPayload(data []byte) (*GroupPayload, error) {
	r := NewReader(data)
	hash, err := r.Uint8()
	if err != nil {
		return nil, fmt.Errorf("%w: channel hash: %w", ErrGroupTooShort, err)
	}
	mac, err := r.Uint16LE()
	if err != nil {
		return nil, fmt.Errorf("%w: mac: %w", ErrGroupTooShort, err)
	}
	return &GroupPayload{
		ChannelHash: hash,
		MAC:         mac,
		Ciphertext:  r.Rest(),
	}, nil
}

// DecodeText decodes radio text as UTF-8, dropping invalid sequences and
// NUL padding.
func DecodeText(b []byte) string {
	s := strings.ToValidUTF8(string(b), "")
	return strings.ReplaceAll(s, "\x00", "")
}
