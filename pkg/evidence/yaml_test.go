package evidence_test

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/usagekit/pkg/evidence"
)

const evidenceYAML = `header.user-agent: Mozilla/5.0 (Windows NT 10.0)
header.accept-language: en-GB
query.version: 4
---
header.user-agent: curl/8.0
---
header.user-agent: Dalvik/2.1.0
header.sec-ch-ua-mobile: ?1
`

func TestYAMLSource(t *testing.T) {
	t.Parallel()

	src := evidence.NewYAMLSource(strings.NewReader(evidenceYAML))

	var docs []map[string]string
	for {
		ev, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		docs = append(docs, ev)
	}

	require.Len(t, docs, 3)
	assert.Equal(t, "Mozilla/5.0 (Windows NT 10.0)", docs[0]["header.user-agent"])
	assert.Equal(t, "4", docs[0]["query.version"], "non-string scalars keep their text")
	assert.Equal(t, "curl/8.0", docs[1]["header.user-agent"])
	assert.Equal(t, "?1", docs[2]["header.sec-ch-ua-mobile"])
}

func TestYAMLSource_InvalidDocuments(t *testing.T) {
	t.Parallel()

	t.Run("sequence document", func(t *testing.T) {
		t.Parallel()
		src := evidence.NewYAMLSource(strings.NewReader("- a\n- b\n"))
		_, err := src.Next()
		assert.ErrorIs(t, err, evidence.ErrInvalidDocument)
	})

	t.Run("nested value", func(t *testing.T) {
		t.Parallel()
		src := evidence.NewYAMLSource(strings.NewReader("header.x:\n  nested: true\n"))
		_, err := src.Next()
		assert.ErrorIs(t, err, evidence.ErrInvalidDocument)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		t.Parallel()
		src := evidence.NewYAMLSource(strings.NewReader("key: [unclosed\n"))
		_, err := src.Next()
		require.Error(t, err)
		assert.NotErrorIs(t, err, io.EOF)
	})

	t.Run("empty stream", func(t *testing.T) {
		t.Parallel()
		src := evidence.NewYAMLSource(strings.NewReader(""))
		_, err := src.Next()
		assert.ErrorIs(t, err, io.EOF)
	})
}
