package codec

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

const (
	// Header bit masks and shifts
	PHRouteMask = 0x03 // 2-bit route type
	PHTypeShift = 2
	PHTypeMask  = 0x0F // 4-bit payload type
	PHVerShift  = 6
	PHVerMask   = 0x03 // 2-bit version

	// Route types
	RouteTypeTransportFlood  = 0x00 // Flood mode + transport codes
	RouteTypeFlood           = 0x01 // Flood mode, path built up
	RouteTypeDirect          = 0x02 // Direct route, path supplied
	RouteTypeTransportDirect = 0x03 // Direct route + transport codes

	// Payload types
	PayloadTypeReq       = 0x00 // Request (dest/src hashes, MAC, encrypted data)
	PayloadTypeResponse  = 0x01 // Response to REQ or ANON_REQ
	PayloadTypeTxtMsg    = 0x02 // Plain text message
	PayloadTypeAck       = 0x03 // Simple acknowledgment
	PayloadTypeAdvert    = 0x04 // Node advertising its identity
	PayloadTypeGrpTxt    = 0x05 // Group text message (unverified)
	PayloadTypeGrpData   = 0x06 // Group datagram (unverified)
	PayloadTypeAnonReq   = 0x07 // Anonymous request
	PayloadTypePath      = 0x08 // Returned path
	PayloadTypeTrace     = 0x09 // Trace path, collecting SNI for each hop
	PayloadTypeMultipart = 0x0A // Packet is one of a set
	PayloadTypeControl   = 0x0B // Control/discovery packet
	PayloadTypeRawCustom = 0x0F // Custom packet (raw bytes)
)

var (
	ErrShortRead      = errors.New("read past end of buffer")
	ErrPacketTooShort = errors.New("packet too short")
	ErrInvalidHex     = errors.New("invalid hex encoding")
)

// Packet represents a MeshCore packet as received over the air.
type Packet struct {
	Header         uint8
	TransportCodes [2]uint16 // Only present on the wire if route type includes transport
	PathLen        uint8
	Path           []byte // One byte per hop, in receipt order
	Payload        []byte
}

// RouteType returns the routing type from the header (2-bit field).
func (p *Packet) RouteType() uint8 {
	return p.Header & PHRouteMask
}

// PayloadType returns the payload type from the header (4-bit field).
func (p *Packet) PayloadType() uint8 {
	return (p.Header >> PHTypeShift) & PHTypeMask
}

// HasTransportCodes returns true if the packet includes transport codes.
func (p *Packet) HasTransportCodes() bool {
	rt := p.RouteType()
	return rt == RouteTypeTransportFlood || rt == RouteTypeTransportDirect
}

// HopIDs returns the path as 2-character lowercase hex node IDs.
func (p *Packet) HopIDs() []string {
	return HopIDs(p.Path)
}

// HopIDs splits a path into 2-character lowercase hex node IDs.
func HopIDs(path []byte) []string {
	ids := make([]string, len(path))
	for i, b := range path {
		ids[i] = hex.EncodeToString([]byte{b})
	}
	return ids
}

// ParsePacket decodes a packet from raw bytes.
func ParsePacket(data []byte) (*Packet, error) {
	p := &Packet{}
	if err := p.ReadFrom(data); err != nil {
		return nil, err
	}
	return p, nil
}

// DecodeHexPacket decodes a hex-encoded wire frame.
func DecodeHexPacket(s string) (*Packet, error) {
	data, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidHex, err)
	}
	return ParsePacket(data)
}

// ReadFrom decodes a packet from raw bytes. The payload is whatever follows
// the path and may be empty.
func (p *Packet) ReadFrom(data []byte) error {
	r := NewReader(data)

	header, err := r.Uint8()
	if err != nil {
		return fmt.Errorf("%w: header: %w", ErrPacketTooShort, err)
	}
	p.Header = header

	// Transport codes are little endian per MeshCore
	p.TransportCodes = [2]uint16{}
	if p.HasTransportCodes() {
		for i := range p.TransportCodes {
			if p.TransportCodes[i], err = r.Uint16LE(); err != nil {
				return fmt.Errorf("%w: transport codes: %w", ErrPacketTooShort, err)
			}
		}
	}

	if p.PathLen, err = r.Uint8(); err != nil {
		return fmt.Errorf("%w: path length: %w", ErrPacketTooShort, err)
	}

	path, err := r.Bytes(int(p.PathLen))
	if err != nil {
		return fmt.Errorf("%w: path: %w", ErrPacketTooShort, err)
	}
	p.Path = make([]byte, len(path))
	copy(p.Path, path)

	rest := r.Rest()
	p.Payload = make([]byte, len(rest))
	copy(p.Payload, rest)

	return nil
}

// WriteTo encodes the packet to raw bytes. PathLen is taken from len(Path).
func (p *Packet) WriteTo() []byte {
	size := 1 + 1 + len(p.Path) + len(p.Payload) // header + pathLen + path + payload
	if p.HasTransportCodes() {
		size += 4 // 2 transport codes * 2 bytes each
	}

	data := make([]byte, size)
	i := 0

	data[i] = p.Header
	i++

	if p.HasTransportCodes() {
		binary.LittleEndian.PutUint16(data[i:], p.TransportCodes[0])
		i += 2
		binary.LittleEndian.PutUint16(data[i:], p.TransportCodes[1])
		i += 2
	}

	data[i] = uint8(len(p.Path))
	i++
	copy(data[i:], p.Path)
	i += len(p.Path)

	copy(data[i:], p.Payload)

	return data
}

// PayloadTypeName returns a human-readable name for the payload type.
func PayloadTypeName(t uint8) string {
	switch t {
	case PayloadTypeReq:
		return "REQ"
	case PayloadTypeResponse:
		return "RESPONSE"
	case PayloadTypeTxtMsg:
		return "TXT_MSG"
	case PayloadTypeAck:
		return "ACK"
	case PayloadTypeAdvert:
		return "ADVERT"
	case PayloadTypeGrpTxt:
		return "GRP_TXT"
	case PayloadTypeGrpData:
		return "GRP_DATA"
	case PayloadTypeAnonReq:
		return "ANON_REQ"
	case PayloadTypePath:
		return "PATH"
	case PayloadTypeTrace:
		return "TRACE"
	case PayloadTypeMultipart:
		return "MULTIPART"
	case PayloadTypeControl:
		return "CONTROL"
	case PayloadTypeRawCustom:
		return "RAW_CUSTOM"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", t)
	}
}

// RouteTypeName returns a human-readable name for the route type.
func RouteTypeName(t uint8) string {
	switch t {
	case RouteTypeTransportFlood:
		return "TRANSPORT_FLOOD"
	case RouteTypeFlood:
		return "FLOOD"
	case RouteTypeDirect:
		return "DIRECT"
	case RouteTypeTransportDirect:
		return "TRANSPORT_DIRECT"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", t)
	}
}
