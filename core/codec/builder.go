package codec

import (
	"encoding/binary"
	"math"
)

// BuildAdvertPayload builds a wire-format ADVERT payload.
func BuildAdvertPayload(pubKey [32]byte, timestamp uint32, signature [64]byte, appData *AdvertAppData) []byte {
	appDataBytes := BuildAdvertAppData(appData)

	data := make([]byte, AdvertMinSize+len(appDataBytes))
	copy(data[0:32], pubKey[:])
	binary.LittleEndian.PutUint32(data[32:36], timestamp)
	copy(data[36:100], signature[:])
	copy(data[AdvertMinSize:], appDataBytes)

	return data
}

// BuildAdvertAppData builds the application data portion of an ADVERT.
// Presence flags are computed from the struct fields; NodeType supplies the
// low nibble. Returns nil if appData is nil.
func BuildAdvertAppData(appData *AdvertAppData) []byte {
	if appData == nil {
		return nil
	}

	flags := appData.NodeType & NodeTypeMask
	if appData.HasLocation() {
		flags |= FlagHasLocation
	}
	if appData.Feature1 != nil {
		flags |= FlagHasFeature1
	}
	if appData.Feature2 != nil {
		flags |= FlagHasFeature2
	}
	if appData.Name != "" {
		flags |= FlagHasName
	}

	data := []byte{flags}

	if flags&FlagHasLocation != 0 {
		data = binary.LittleEndian.AppendUint32(data, uint32(int32(math.Round(*appData.Lat*CoordScale))))
		data = binary.LittleEndian.AppendUint32(data, uint32(int32(math.Round(*appData.Lon*CoordScale))))
	}
	if flags&FlagHasFeature1 != 0 {
		data = binary.LittleEndian.AppendUint16(data, *appData.Feature1)
	}
	if flags&FlagHasFeature2 != 0 {
		data = binary.LittleEndian.AppendUint16(data, *appData.Feature2)
	}
	if flags&FlagHasName != 0 {
		data = append(data, appData.Name...)
	}

	return data
}

// BuildGroupPayload builds a wire-format group payload.
func BuildGroupPayload(channelHash uint8, mac uint16, ciphertext []byte) []byte {
	data := make([]byte, GroupHeaderSize+len(ciphertext))
	data[0] = channelHash
	binary.LittleEndian.PutUint16(data[1:3], mac)
	copy(data[GroupHeaderSize:], ciphertext)
	return data
}

// MakeHeader composes a packet header byte from route and payload type.
func MakeHeader(routeType, payloadType uint8) uint8 {
	return (payloadType&PHTypeMask)<<PHTypeShift | routeType&PHRouteMask
}
