package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/interfect/spartic/crypto"
)

// GroupID names a group: a fixed set of participants sharing one anonymity
// context. The value is agreed out-of-band.
type GroupID uint64

// BlockSize is the number of bytes every participant contributes per round.
const BlockSize = 4096

// Message kind tags on the wire.
const (
	kindKey   byte = 0x01
	kindBlock byte = 0x02
	kindError byte = 0x03
)

// Message is one of the three Spartic wire messages: KeyMessage,
// BlockMessage or ErrorMessage.
type Message interface {
	messageKind() byte
}

// KeyMessage carries one half of a pair's shared keying material during
// session setup.
type KeyMessage struct {
	GroupID   GroupID
	SharedKey crypto.SharedKey
}

func (KeyMessage) messageKind() byte { return kindKey }

// BlockMessage carries one participant's keystream-masked block for a round.
type BlockMessage struct {
	GroupID        GroupID
	SequenceNumber uint64
	Block          []byte
}

func (BlockMessage) messageKind() byte { return kindBlock }

// ErrorMessage reports a protocol inconsistency back to the peer that
// caused it. It is informational; neither side tears anything down.
type ErrorMessage struct {
	Text string
}

func (ErrorMessage) messageKind() byte { return kindError }

// EncodeMessage serializes a message: a one-byte kind tag, uvarint-encoded
// integer fields, and the payload as the remainder of the frame. Framing is
// the transport's job.
func EncodeMessage(m Message) ([]byte, error) {
	switch msg := m.(type) {
	case KeyMessage:
		out := append([]byte{kindKey}, binary.AppendUvarint(nil, uint64(msg.GroupID))...)
		return append(out, msg.SharedKey[:]...), nil
	case BlockMessage:
		out := append([]byte{kindBlock}, binary.AppendUvarint(nil, uint64(msg.GroupID))...)
		out = binary.AppendUvarint(out, msg.SequenceNumber)
		return append(out, msg.Block...), nil
	case ErrorMessage:
		if !utf8.ValidString(msg.Text) {
			return nil, errors.New("error text is not valid UTF-8")
		}
		return append([]byte{kindError}, msg.Text...), nil
	default:
		return nil, fmt.Errorf("unknown message type %T", m)
	}
}

// DecodeMessage parses one wire frame back into a message. Block payloads
// of any length decode successfully; size enforcement is the session's job
// so that a wrong-size block can be answered with a protocol error rather
// than dropped at the codec.
func DecodeMessage(data []byte) (Message, error) {
	if len(data) == 0 {
		return nil, errors.New("empty message")
	}

	kind, rest := data[0], data[1:]
	switch kind {
	case kindKey:
		groupID, n := binary.Uvarint(rest)
		if n <= 0 {
			return nil, errors.New("key message: bad group id")
		}
		sharedKey, err := crypto.NewSharedKeyFromBytes(rest[n:])
		if err != nil {
			return nil, fmt.Errorf("key message: %w", err)
		}
		return KeyMessage{GroupID: GroupID(groupID), SharedKey: sharedKey}, nil

	case kindBlock:
		groupID, n := binary.Uvarint(rest)
		if n <= 0 {
			return nil, errors.New("block message: bad group id")
		}
		rest = rest[n:]
		seq, n := binary.Uvarint(rest)
		if n <= 0 {
			return nil, errors.New("block message: bad sequence number")
		}
		block := make([]byte, len(rest)-n)
		copy(block, rest[n:])
		return BlockMessage{GroupID: GroupID(groupID), SequenceNumber: seq, Block: block}, nil

	case kindError:
		if !utf8.Valid(rest) {
			return nil, errors.New("error message: text is not valid UTF-8")
		}
		return ErrorMessage{Text: string(rest)}, nil

	default:
		return nil, fmt.Errorf("unknown message kind 0x%02x", kind)
	}
}
