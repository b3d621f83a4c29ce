package ingest

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixtureRecord struct {
	word    string
	senseID int32
	vector  []float32
}

func encodeSenseDump(t *testing.T, dim int32, records []fixtureRecord) []byte {
	t.Helper()

	var buf bytes.Buffer
	write := func(v any) {
		require.NoError(t, binary.Write(&buf, binary.LittleEndian, v))
	}

	write(int32(len(records)))
	write(dim)

	for _, rec := range records {
		write(int32(len(rec.word)))
		buf.WriteString(rec.word)
		write(rec.senseID)
		write(rec.vector)
	}

	return buf.Bytes()
}

func encodeVocab(t *testing.T, entries []struct {
	word string
	id   int32
}) []byte {
	t.Helper()

	var buf bytes.Buffer
	write := func(v any) {
		require.NoError(t, binary.Write(&buf, binary.LittleEndian, v))
	}

	write(int32(len(entries)))
	for _, e := range entries {
		write(int32(len(e.word)))
		buf.WriteString(e.word)
		write(e.id)
	}

	return buf.Bytes()
}

func TestReadSenseEmbeddings(t *testing.T) {
	data := encodeSenseDump(t, 4, []fixtureRecord{
		{word: "bank", senseID: 1, vector: []float32{1, 2, 3, 4}},
		{word: "bank", senseID: 2, vector: []float32{5, 6, 7, 8}},
		{word: "bass", senseID: 1, vector: []float32{0, 0, 0, 1}},
	})

	emb, err := ReadSenseEmbeddings(bytes.NewReader(data))
	require.NoError(t, err)

	assert.Equal(t, 4, emb.Dim)
	require.Len(t, emb.Records, 3)

	assert.Equal(t, "bank", emb.Records[0].Word)
	assert.Equal(t, int32(1), emb.Records[0].SenseID)
	assert.Equal(t, []float32{1, 2, 3, 4}, emb.Records[0].Vector)

	assert.Equal(t, "bank", emb.Records[1].Word)
	assert.Equal(t, int32(2), emb.Records[1].SenseID)

	assert.Equal(t, "bass", emb.Records[2].Word)
	assert.Equal(t, []float32{0, 0, 0, 1}, emb.Records[2].Vector)
}

func TestReadSenseEmbeddingsEmpty(t *testing.T) {
	data := encodeSenseDump(t, 8, nil)

	emb, err := ReadSenseEmbeddings(bytes.NewReader(data))
	require.NoError(t, err)

	assert.Equal(t, 8, emb.Dim)
	assert.Empty(t, emb.Records)
}

func TestReadSenseEmbeddingsNormalizeL2(t *testing.T) {
	data := encodeSenseDump(t, 2, []fixtureRecord{
		{word: "bank", senseID: 1, vector: []float32{3, 4}},
	})

	emb, err := ReadSenseEmbeddings(bytes.NewReader(data), func(o *ReadOptions) {
		o.NormalizeL2 = true
	})
	require.NoError(t, err)

	require.Len(t, emb.Records, 1)
	vec := emb.Records[0].Vector
	assert.InDelta(t, 0.6, vec[0], 1e-6)
	assert.InDelta(t, 0.8, vec[1], 1e-6)

	norm := math.Sqrt(float64(vec[0]*vec[0] + vec[1]*vec[1]))
	assert.InDelta(t, 1.0, norm, 1e-6)
}

func TestReadSenseEmbeddingsHeaderErrors(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, int32(-1)))

	_, err := ReadSenseEmbeddings(bytes.NewReader(buf.Bytes()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "negative record count")

	buf.Reset()
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, int32(1)))
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, int32(0)))

	_, err = ReadSenseEmbeddings(bytes.NewReader(buf.Bytes()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid dimension")

	buf.Reset()
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, int32(1)))
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, int32(1<<20)))

	_, err = ReadSenseEmbeddings(bytes.NewReader(buf.Bytes()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid dimension")
}

func TestReadSenseEmbeddingsTruncated(t *testing.T) {
	data := encodeSenseDump(t, 4, []fixtureRecord{
		{word: "bank", senseID: 1, vector: []float32{1, 2, 3, 4}},
		{word: "bass", senseID: 1, vector: []float32{5, 6, 7, 8}},
	})

	// Cut into the second record's vector bytes.
	_, err := ReadSenseEmbeddings(bytes.NewReader(data[:len(data)-6]))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "record 1")

	// Cut into the first record's word bytes.
	_, err = ReadSenseEmbeddings(bytes.NewReader(data[:10]))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "record 0")
}

func TestReadSenseEmbeddingsBadLabelLength(t *testing.T) {
	var buf bytes.Buffer
	write := func(v any) {
		require.NoError(t, binary.Write(&buf, binary.LittleEndian, v))
	}

	write(int32(1))
	write(int32(2))
	write(int32(-5))

	_, err := ReadSenseEmbeddings(bytes.NewReader(buf.Bytes()))
	require.Error(t, err)

	buf.Reset()
	write(int32(1))
	write(int32(2))
	write(int32(1 << 20))

	_, err = ReadSenseEmbeddings(bytes.NewReader(buf.Bytes()))
	require.Error(t, err)
}

func TestReadVocab(t *testing.T) {
	data := encodeVocab(t, []struct {
		word string
		id   int32
	}{
		{word: "bank", id: 1},
		{word: "bass", id: 2},
		{word: "river", id: 3},
	})

	vocab, err := ReadVocab(bytes.NewReader(data))
	require.NoError(t, err)

	assert.Len(t, vocab, 3)
	assert.Equal(t, int32(1), vocab["bank"])
	assert.Equal(t, int32(2), vocab["bass"])
	assert.Equal(t, int32(3), vocab["river"])
}

func TestReadVocabDuplicateWord(t *testing.T) {
	data := encodeVocab(t, []struct {
		word string
		id   int32
	}{
		{word: "bank", id: 1},
		{word: "bank", id: 7},
	})

	vocab, err := ReadVocab(bytes.NewReader(data))
	require.NoError(t, err)

	// Last entry wins.
	assert.Len(t, vocab, 1)
	assert.Equal(t, int32(7), vocab["bank"])
}

func TestReadVocabTruncated(t *testing.T) {
	data := encodeVocab(t, []struct {
		word string
		id   int32
	}{
		{word: "bank", id: 1},
	})

	_, err := ReadVocab(bytes.NewReader(data[:len(data)-2]))
	require.Error(t, err)
}
