// Package ipc streams published frames to a local presentation process
// (compositor, recorder, headless renderer) over a Unix domain socket.
package ipc

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

const (
	// DefaultSocketPath is the Unix socket path for IPC
	DefaultSocketPath = "/tmp/card-field.sock"

	// DefaultTCPPort is used instead of a socket on Windows.
	DefaultTCPPort = "127.0.0.1:7070"

	// Message types
	MsgTypeFrame    byte = 0x01
	MsgTypeViewport byte = 0x02

	// FlagZstd marks a zstd-compressed body.
	FlagZstd byte = 0x01

	// Protocol version for compatibility checking
	ProtocolVersion uint16 = 2

	// Connection settings
	MaxMessageSize = 4 << 20
	WriteTimeout   = 50 * time.Millisecond
	ReconnectDelay = 500 * time.Millisecond

	// Bodies above compressThreshold are zstd-compressed.
	compressThreshold = 16 << 10
)

// FrameMessage is the wire form of one published frame.
type FrameMessage struct {
	Sequence   uint64
	Timestamp  int64 // Unix nano
	Tick       uint64
	Generation uint64
	Live       int
	Tier       string

	Camera CameraData
	Items  []ItemData
}

// CameraData is the wire form of the camera view.
type CameraData struct {
	Position     [3]float64
	Velocity     [3]float64
	Mode         string
	Chunk        [3]int
	Flying       bool
	FlightTarget [3]float64
}

// ItemData is the wire form of one renderable placement.
type ItemData struct {
	ID          string
	CardID      string
	Transform   [16]float64 // column-major
	GeometryID  uint64
	Opacity     float64
	DepthWrite  bool
	ProgramID   uint64
	Time        float64
	Seed        float64
	Palette     [3]float64
	LabelID     uint64
	Placeholder bool
	URL         string
}

// ViewportMessage tells a new subscriber how frames are produced.
type ViewportMessage struct {
	Width    int
	Height   int
	FovY     float64
	TickRate int
	Tier     string
	Geometry GeometryData
}

// GeometryData is the shared card mesh items refer to by GeometryID.
type GeometryData struct {
	ID       uint64
	Vertices [4][3]float64
	UVs      [4][2]float64
	Indices  [6]uint16
}

// Header is the message header for framing
type Header struct {
	Version uint16
	Type    byte
	Flags   byte
	Length  uint32
}

const HeaderSize = 8 // 2 + 1 + 1 + 4

var (
	encoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	decoder, _ = zstd.NewReader(nil)

	bufferPool = sync.Pool{New: func() any { return new(bytes.Buffer) }}
)

// WriteMessage gob-encodes data and writes it as one framed message.
func WriteMessage(w io.Writer, msgType byte, data any) error {
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer bufferPool.Put(buf)

	if data != nil {
		if err := gob.NewEncoder(buf).Encode(data); err != nil {
			return fmt.Errorf("gob encode: %w", err)
		}
	}

	body := buf.Bytes()
	var flags byte
	if len(body) > compressThreshold {
		body = encoder.EncodeAll(body, nil)
		flags |= FlagZstd
	}
	if len(body) > MaxMessageSize {
		return fmt.Errorf("message too large: %d > %d", len(body), MaxMessageSize)
	}

	header := make([]byte, HeaderSize, HeaderSize+len(body))
	binary.LittleEndian.PutUint16(header[0:2], ProtocolVersion)
	header[2] = msgType
	header[3] = flags
	binary.LittleEndian.PutUint32(header[4:8], uint32(len(body)))

	// One write so concurrent writers on a conn never interleave.
	if _, err := w.Write(append(header, body...)); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

// ReadMessage reads one framed message and returns its decompressed body.
func ReadMessage(r io.Reader) (byte, []byte, error) {
	headerBuf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, headerBuf); err != nil {
		return 0, nil, err
	}

	header := Header{
		Version: binary.LittleEndian.Uint16(headerBuf[0:2]),
		Type:    headerBuf[2],
		Flags:   headerBuf[3],
		Length:  binary.LittleEndian.Uint32(headerBuf[4:8]),
	}
	if header.Version != ProtocolVersion {
		return 0, nil, fmt.Errorf("version mismatch: got %d, want %d", header.Version, ProtocolVersion)
	}
	if header.Length > MaxMessageSize {
		return 0, nil, fmt.Errorf("message too large: %d > %d", header.Length, MaxMessageSize)
	}

	var body []byte
	if header.Length > 0 {
		body = make([]byte, header.Length)
		if _, err := io.ReadFull(r, body); err != nil {
			return 0, nil, fmt.Errorf("read body: %w", err)
		}
	}
	if header.Flags&FlagZstd != 0 {
		out, err := decoder.DecodeAll(body, nil)
		if err != nil {
			return 0, nil, fmt.Errorf("zstd: %w", err)
		}
		body = out
	}
	return header.Type, body, nil
}

// DecodeFrame decodes a frame body.
func DecodeFrame(data []byte) (*FrameMessage, error) {
	var msg FrameMessage
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&msg); err != nil {
		return nil, fmt.Errorf("gob decode frame: %w", err)
	}
	return &msg, nil
}

// DecodeViewport decodes a viewport body.
func DecodeViewport(data []byte) (*ViewportMessage, error) {
	var msg ViewportMessage
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&msg); err != nil {
		return nil, fmt.Errorf("gob decode viewport: %w", err)
	}
	return &msg, nil
}

// CleanupSocket removes the socket file if it exists
func CleanupSocket(path string) error {
	if _, err := os.Stat(path); err == nil {
		return os.Remove(path)
	}
	return nil
}
