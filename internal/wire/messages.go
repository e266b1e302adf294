// Package wire implements the binary ingestion/report protocol spoken
// between matchd and its clients: a fixed-width header per message type
// followed by any variable-length fields, encoded big-endian.
//
// This is a boundary concern spec.md explicitly leaves unspecified
// ("network/FIX/binary wire encoding" is out of scope for the core); the
// format here exists only so cmd/matchd and cmd/matchctl have something
// concrete to speak. Grounded on the teacher's internal/net/messages.go,
// extended with ModifyOrder, the stop order types/StopPrice field, and
// Report.OrderStatus (SPEC_FULL.md §6).
package wire

import (
	"encoding/binary"
	"errors"

	"garm/internal/domain"
)

var (
	ErrInvalidMessageType = errors.New("wire: invalid message type")
	ErrMessageTooShort    = errors.New("wire: message too short")
)

// MessageType identifies a client-to-server message.
type MessageType uint16

const (
	Heartbeat MessageType = iota
	NewOrder
	CancelOrder
	ModifyOrder
	SnapshotRequest
)

// ReportMessageType identifies a server-to-client message.
type ReportMessageType uint8

const (
	ExecutionReport ReportMessageType = iota
	AckReport
	ErrorReport
)

// Message format constants. All multi-byte integers are big-endian.
const (
	baseHeaderLen = 2 // MessageType

	// NewOrderMessage: type(2) side(1) orderType(1) qty(8) price(8) stopPrice(8) clientOrderIDLen(1)
	newOrderHeaderLen = 2 + 1 + 1 + 8 + 8 + 8 + 1

	// CancelOrderMessage: type(2) orderID(8)
	cancelOrderHeaderLen = 2 + 8

	// ModifyOrderMessage: type(2) orderID(8) hasQty(1) qty(8) hasPrice(1) price(8)
	modifyOrderHeaderLen = 2 + 8 + 1 + 8 + 1 + 8

	// SnapshotRequestMessage: type(2) depth(2)
	snapshotRequestLen = 2 + 2
)

// NewOrderMessage is the wire form of domain.NewOrderRequest, minus
// Symbol and ClientID, which are not sent per-message: the server fills
// ClientID from the connection's remote address and leaves Symbol empty.
type NewOrderMessage struct {
	Side          domain.Side
	Type          domain.OrderType
	Quantity      int64
	Price         domain.Ticks
	StopPrice     domain.Ticks
	ClientOrderID string
}

// EncodeNewOrder serializes m, prefixed with its message type.
func EncodeNewOrder(m NewOrderMessage) []byte {
	idBytes := []byte(m.ClientOrderID)
	buf := make([]byte, newOrderHeaderLen+len(idBytes))

	binary.BigEndian.PutUint16(buf[0:2], uint16(NewOrder))
	buf[2] = byte(m.Side)
	buf[3] = byte(m.Type)
	binary.BigEndian.PutUint64(buf[4:12], uint64(m.Quantity))
	binary.BigEndian.PutUint64(buf[12:20], uint64(m.Price))
	binary.BigEndian.PutUint64(buf[20:28], uint64(m.StopPrice))
	buf[28] = uint8(len(idBytes))
	copy(buf[29:], idBytes)
	return buf
}

func decodeNewOrder(body []byte) (NewOrderMessage, error) {
	if len(body) < newOrderHeaderLen-baseHeaderLen {
		return NewOrderMessage{}, ErrMessageTooShort
	}
	m := NewOrderMessage{
		Side:      domain.Side(body[0]),
		Type:      domain.OrderType(body[1]),
		Quantity:  int64(binary.BigEndian.Uint64(body[2:10])),
		Price:     domain.Ticks(binary.BigEndian.Uint64(body[10:18])),
		StopPrice: domain.Ticks(binary.BigEndian.Uint64(body[18:26])),
	}
	idLen := int(body[26])
	if len(body) < 27+idLen {
		return NewOrderMessage{}, ErrMessageTooShort
	}
	m.ClientOrderID = string(body[27 : 27+idLen])
	return m, nil
}

// CancelOrderMessage requests cancellation of OrderID.
type CancelOrderMessage struct {
	OrderID uint64
}

func EncodeCancelOrder(m CancelOrderMessage) []byte {
	buf := make([]byte, cancelOrderHeaderLen)
	binary.BigEndian.PutUint16(buf[0:2], uint16(CancelOrder))
	binary.BigEndian.PutUint64(buf[2:10], m.OrderID)
	return buf
}

func decodeCancelOrder(body []byte) (CancelOrderMessage, error) {
	if len(body) < cancelOrderHeaderLen-baseHeaderLen {
		return CancelOrderMessage{}, ErrMessageTooShort
	}
	return CancelOrderMessage{OrderID: binary.BigEndian.Uint64(body[0:8])}, nil
}

// ModifyOrderMessage requests a quantity and/or price change to OrderID.
// HasQuantity/HasPrice distinguish "leave unchanged" from "set to zero".
type ModifyOrderMessage struct {
	OrderID     uint64
	HasQuantity bool
	Quantity    int64
	HasPrice    bool
	Price       domain.Ticks
}

func EncodeModifyOrder(m ModifyOrderMessage) []byte {
	buf := make([]byte, modifyOrderHeaderLen)
	binary.BigEndian.PutUint16(buf[0:2], uint16(ModifyOrder))
	binary.BigEndian.PutUint64(buf[2:10], m.OrderID)
	buf[10] = boolByte(m.HasQuantity)
	binary.BigEndian.PutUint64(buf[11:19], uint64(m.Quantity))
	buf[19] = boolByte(m.HasPrice)
	binary.BigEndian.PutUint64(buf[20:28], uint64(m.Price))
	return buf
}

func decodeModifyOrder(body []byte) (ModifyOrderMessage, error) {
	if len(body) < modifyOrderHeaderLen-baseHeaderLen {
		return ModifyOrderMessage{}, ErrMessageTooShort
	}
	return ModifyOrderMessage{
		OrderID:     binary.BigEndian.Uint64(body[0:8]),
		HasQuantity: body[8] != 0,
		Quantity:    int64(binary.BigEndian.Uint64(body[9:17])),
		HasPrice:    body[17] != 0,
		Price:       domain.Ticks(binary.BigEndian.Uint64(body[18:26])),
	}, nil
}

// SnapshotRequestMessage asks for the top Depth price levels per side.
type SnapshotRequestMessage struct {
	Depth uint16
}

func EncodeSnapshotRequest(m SnapshotRequestMessage) []byte {
	buf := make([]byte, snapshotRequestLen)
	binary.BigEndian.PutUint16(buf[0:2], uint16(SnapshotRequest))
	binary.BigEndian.PutUint16(buf[2:4], m.Depth)
	return buf
}

func decodeSnapshotRequest(body []byte) (SnapshotRequestMessage, error) {
	if len(body) < snapshotRequestLen-baseHeaderLen {
		return SnapshotRequestMessage{}, ErrMessageTooShort
	}
	return SnapshotRequestMessage{Depth: binary.BigEndian.Uint16(body[0:2])}, nil
}

// DecodedMessage is the sum of every client-to-server message type a
// connection handler might receive.
type DecodedMessage struct {
	Type     MessageType
	NewOrder NewOrderMessage
	Cancel   CancelOrderMessage
	Modify   ModifyOrderMessage
	Snapshot SnapshotRequestMessage
}

// Decode reads the message type header and dispatches to the matching
// field decoder.
func Decode(msg []byte) (DecodedMessage, error) {
	if len(msg) < baseHeaderLen {
		return DecodedMessage{}, ErrMessageTooShort
	}
	typeOf := MessageType(binary.BigEndian.Uint16(msg[0:2]))
	body := msg[baseHeaderLen:]

	switch typeOf {
	case Heartbeat:
		return DecodedMessage{Type: Heartbeat}, nil
	case NewOrder:
		m, err := decodeNewOrder(body)
		return DecodedMessage{Type: NewOrder, NewOrder: m}, err
	case CancelOrder:
		m, err := decodeCancelOrder(body)
		return DecodedMessage{Type: CancelOrder, Cancel: m}, err
	case ModifyOrder:
		m, err := decodeModifyOrder(body)
		return DecodedMessage{Type: ModifyOrder, Modify: m}, err
	case SnapshotRequest:
		m, err := decodeSnapshotRequest(body)
		return DecodedMessage{Type: SnapshotRequest, Snapshot: m}, err
	default:
		return DecodedMessage{}, ErrInvalidMessageType
	}
}

// Report is the wire form of an execution/ack/error sent back to a
// client: fixed header, then an error string whose byte length is the
// header's final errLen field.
type Report struct {
	MessageType ReportMessageType
	OrderID     uint64
	OrderStatus domain.OrderStatus
	Side        domain.Side
	Quantity    int64
	Price       domain.Ticks
	Err         string
}

const reportFixedHeaderLen = 1 + 8 + 1 + 1 + 8 + 8 + 4 // msgType,orderID,status,side,qty,price,errLen

// Serialize converts r to its wire form.
func (r Report) Serialize() []byte {
	errBytes := []byte(r.Err)
	buf := make([]byte, reportFixedHeaderLen+len(errBytes))

	buf[0] = byte(r.MessageType)
	binary.BigEndian.PutUint64(buf[1:9], r.OrderID)
	buf[9] = byte(r.OrderStatus)
	buf[10] = byte(r.Side)
	binary.BigEndian.PutUint64(buf[11:19], uint64(r.Quantity))
	binary.BigEndian.PutUint64(buf[19:27], uint64(r.Price))
	binary.BigEndian.PutUint32(buf[27:31], uint32(len(errBytes)))
	copy(buf[31:], errBytes)
	return buf
}

// DecodeReport parses a Report previously produced by Serialize.
func DecodeReport(buf []byte) (Report, error) {
	if len(buf) < reportFixedHeaderLen {
		return Report{}, ErrMessageTooShort
	}
	r := Report{
		MessageType: ReportMessageType(buf[0]),
		OrderID:     binary.BigEndian.Uint64(buf[1:9]),
		OrderStatus: domain.OrderStatus(buf[9]),
		Side:        domain.Side(buf[10]),
		Quantity:    int64(binary.BigEndian.Uint64(buf[11:19])),
		Price:       domain.Ticks(binary.BigEndian.Uint64(buf[19:27])),
	}
	errLen := int(binary.BigEndian.Uint32(buf[27:31]))
	if len(buf) < reportFixedHeaderLen+errLen {
		return Report{}, ErrMessageTooShort
	}
	r.Err = string(buf[reportFixedHeaderLen : reportFixedHeaderLen+errLen])
	return r, nil
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
