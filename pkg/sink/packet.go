package sink

import (
	"encoding/xml"
	"fmt"
	"io"
	"runtime"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"

	"github.com/dmitrymomot/usagekit/pkg/shareusage"
)

// MaxValueLength caps each evidence value in a packet, in runes.
const MaxValueLength = 512

// Packet is the XML document sent for one batch.
type Packet struct {
	XMLName xml.Name `xml:"Devices"`
	Devices []Device `xml:"Device"`
}

// Device is one shared record.
type Device struct {
	SessionID       string            `xml:"SessionId"`
	Sequence        uint64            `xml:"Sequence"`
	DateSent        string            `xml:"DateSent"`
	Version         string            `xml:"Version,omitempty"`
	Product         string            `xml:"Product,omitempty"`
	Language        string            `xml:"Language"`
	LanguageVersion string            `xml:"LanguageVersion"`
	ClientIP        string            `xml:"ClientIP,omitempty"`
	ServerIP        string            `xml:"ServerIP,omitempty"`
	Platform        string            `xml:"Platform,omitempty"`
	Evidence        []EvidenceElement `xml:",any"`
}

// EvidenceElement renders "header.user-agent" as <header Name="user-agent">.
type EvidenceElement struct {
	XMLName xml.Name
	Name    string `xml:"Name,attr"`
	Value   string `xml:",chardata"`
}

// PacketBuilder converts batches to packets. One builder keeps one session id and a
// sequence that increases across every device it renders. Safe for concurrent use.
type PacketBuilder struct {
	sessionID string
	product   string
	version   string
	seq       atomic.Uint64
	now       func() time.Time
}

// PacketOption configures a PacketBuilder.
type PacketOption func(*PacketBuilder)

// WithProduct identifies the sending application in every device element.
func WithProduct(product, version string) PacketOption {
	return func(b *PacketBuilder) {
		b.product = product
		b.version = version
	}
}

// WithSessionID overrides the random session identifier.
func WithSessionID(id string) PacketOption {
	return func(b *PacketBuilder) {
		if id != "" {
			b.sessionID = id
		}
	}
}

// WithNow overrides the clock used for DateSent.
func WithNow(now func() time.Time) PacketOption {
	return func(b *PacketBuilder) {
		if now != nil {
			b.now = now
		}
	}
}

// NewPacketBuilder creates a builder with a fresh session id.
func NewPacketBuilder(opts ...PacketOption) *PacketBuilder {
	b := &PacketBuilder{
		sessionID: uuid.NewString(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// SessionID returns the builder's session identifier.
func (b *PacketBuilder) SessionID() string { return b.sessionID }

// Build renders batch, preserving record order.
func (b *PacketBuilder) Build(batch shareusage.Batch) Packet {
	sent := b.now().UTC().Format(time.RFC3339)
	p := Packet{Devices: make([]Device, 0, batch.Len())}

	for _, rec := range batch {
		d := Device{
			SessionID:       b.sessionID,
			Sequence:        b.seq.Add(1),
			DateSent:        sent,
			Version:         b.version,
			Product:         b.product,
			Language:        "Go",
			LanguageVersion: runtime.Version(),
			Platform:        runtime.GOOS + "/" + runtime.GOARCH,
		}

		for _, e := range rec.Fields() {
			switch e.Key {
			case shareusage.KeyClientIP:
				d.ClientIP = e.Value
				continue
			case shareusage.KeyHostIP:
				d.ServerIP = e.Value
				continue
			}
			d.Evidence = append(d.Evidence, EvidenceElement{
				XMLName: xml.Name{Local: elementName(e.Prefix())},
				Name:    e.Name(),
				Value:   truncate(e.Value, MaxValueLength),
			})
		}
		p.Devices = append(p.Devices, d)
	}

	return p
}

// Encode writes the packet as an XML document.
func (p Packet) Encode(w io.Writer) error {
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return fmt.Errorf("%w: %w", ErrEncodePacket, err)
	}
	if err := xml.NewEncoder(w).Encode(p); err != nil {
		return fmt.Errorf("%w: %w", ErrEncodePacket, err)
	}
	return nil
}

// EncodeGzip writes the packet as gzip-compressed XML.
func (p Packet) EncodeGzip(w io.Writer) error {
	zw := gzip.NewWriter(w)
	if err := p.Encode(zw); err != nil {
		_ = zw.Close()
		return err
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("%w: %w", ErrEncodePacket, err)
	}
	return nil
}

// elementName keeps element names valid XML even for unexpected prefixes.
func elementName(prefix string) string {
	prefix = strings.ToLower(prefix)
	switch prefix {
	case "header", "query", "cookie", "server":
		return prefix
	default:
		return "evidence"
	}
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
