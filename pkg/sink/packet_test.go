package sink_test

import (
	"bytes"
	"encoding/xml"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/usagekit/pkg/shareusage"
	"github.com/dmitrymomot/usagekit/pkg/sink"
)

func batchOf(records ...map[string]string) shareusage.Batch {
	b := make(shareusage.Batch, 0, len(records))
	for _, r := range records {
		b = append(b, shareusage.NewRecord(r))
	}
	return b
}

func fixedNow() time.Time { return time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC) }

func TestPacketBuilder_Build(t *testing.T) {
	t.Parallel()

	b := sink.NewPacketBuilder(
		sink.WithSessionID("session-1"),
		sink.WithProduct("usagekit", "1.2.3"),
		sink.WithNow(fixedNow),
	)

	p := b.Build(batchOf(
		map[string]string{
			"header.user-agent": "Mozilla/5.0",
			"query.campaign":    "spring",
			"server.client-ip":  "203.0.113.7",
			"server.host-ip":    "10.0.0.1",
		},
		map[string]string{"header.user-agent": "curl/8.0"},
	))

	require.Len(t, p.Devices, 2)
	first := p.Devices[0]
	assert.Equal(t, "session-1", first.SessionID)
	assert.Equal(t, uint64(1), first.Sequence)
	assert.Equal(t, "2026-10-19T12:00:00Z", first.DateSent)
	assert.Equal(t, "usagekit", first.Product)
	assert.Equal(t, "1.2.3", first.Version)
	assert.Equal(t, "Go", first.Language)
	assert.Equal(t, "203.0.113.7", first.ClientIP)
	assert.Equal(t, "10.0.0.1", first.ServerIP)
	require.Len(t, first.Evidence, 2, "server evidence is promoted to dedicated elements")
	assert.Equal(t, "header", first.Evidence[0].XMLName.Local)
	assert.Equal(t, "user-agent", first.Evidence[0].Name)
	assert.Equal(t, "query", first.Evidence[1].XMLName.Local)

	assert.Equal(t, uint64(2), p.Devices[1].Sequence)

	next := b.Build(batchOf(map[string]string{"header.x": "y"}))
	assert.Equal(t, uint64(3), next.Devices[0].Sequence, "sequence continues across batches")
}

func TestPacket_Encode(t *testing.T) {
	t.Parallel()

	b := sink.NewPacketBuilder(sink.WithSessionID("s"), sink.WithNow(fixedNow))
	p := b.Build(batchOf(map[string]string{
		"header.user-agent": `Agent <"quoted"> & more`,
		"header.usage-from": "YourCompanyName",
	}))

	var buf bytes.Buffer
	require.NoError(t, p.Encode(&buf))
	out := buf.String()

	assert.True(t, strings.HasPrefix(out, xml.Header))
	assert.Contains(t, out, `<header Name="usage-from">YourCompanyName</header>`)
	assert.Contains(t, out, `&lt;&#34;quoted&#34;&gt; &amp; more`)
	assert.Contains(t, out, "<SessionId>s</SessionId>")

	var decoded struct {
		Devices []struct {
			SessionID string `xml:"SessionId"`
			Headers   []struct {
				Name  string `xml:"Name,attr"`
				Value string `xml:",chardata"`
			} `xml:"header"`
		} `xml:"Device"`
	}
	require.NoError(t, xml.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded.Devices, 1)
	require.Len(t, decoded.Devices[0].Headers, 2)
	assert.Equal(t, "usage-from", decoded.Devices[0].Headers[0].Name, "evidence is ordered by key")
	assert.Equal(t, `Agent <"quoted"> & more`, decoded.Devices[0].Headers[1].Value)
}

func TestPacket_TruncatesLongValues(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("é", sink.MaxValueLength+10)
	p := sink.NewPacketBuilder().Build(batchOf(map[string]string{"header.x": long}))

	got := p.Devices[0].Evidence[0].Value
	assert.Equal(t, sink.MaxValueLength, len([]rune(got)))
}

func TestPacket_EncodeGzip(t *testing.T) {
	t.Parallel()

	p := sink.NewPacketBuilder(sink.WithSessionID("gz")).Build(batchOf(map[string]string{"header.a": "b"}))

	var buf bytes.Buffer
	require.NoError(t, p.EncodeGzip(&buf))

	zr, err := gzip.NewReader(&buf)
	require.NoError(t, err)
	plain, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Contains(t, string(plain), "<SessionId>gz</SessionId>")
}
