package vector

import (
	"encoding/binary"
	"encoding/json"
	"math"
	"strconv"

	"github.com/Aviyadav22/ParalegalAI/internal/domain"
	"github.com/Aviyadav22/ParalegalAI/internal/domain/search/candidate"
	"github.com/Aviyadav22/ParalegalAI/internal/domain/search/filter"
)

// vectorToHash flattens a vector and its payload into HASH fields.
// Empty metadata fields are omitted so they never match a pre-filter.
func vectorToHash(v *domain.EmbeddingVector) map[string]string {
	m := v.Metadata
	fields := map[string]string{
		fieldVector:       encodeVector(v.Vector),
		fieldText:         v.Text,
		fieldDocumentID:   v.DocumentID,
		fieldPartitionKey: v.PartitionKey,
		fieldOrdinal:      strconv.Itoa(v.Ordinal),
	}
	set := func(k, val string) {
		if val != "" {
			fields[k] = val
		}
	}
	set(fieldTitle, m.Title)
	set(fieldSource, m.Source)
	set(fieldDate, m.Date)
	set(fieldAuthor, m.Author)
	set(fieldCitation, m.Citation)
	set(filter.FieldCourt, m.Court)
	set(filter.FieldCategory, m.Category)
	set(filter.FieldDocType, m.DocType)
	if m.Year > 0 {
		fields[filter.FieldYear] = strconv.Itoa(m.Year)
	}
	if len(m.Extra) > 0 {
		if raw, err := json.Marshal(m.Extra); err == nil {
			fields[fieldExtra] = string(raw)
		}
	}
	return fields
}

// hashToHit rebuilds a search hit from returned HASH fields.
func hashToHit(id string, score float64, fields map[string]string) candidate.Hit {
	hit := candidate.Hit{
		ID:         id,
		DocumentID: fields[fieldDocumentID],
		Text:       fields[fieldText],
		Score:      score,
		Metadata: domain.Metadata{
			Title:    fields[fieldTitle],
			Source:   fields[fieldSource],
			Date:     fields[fieldDate],
			Author:   fields[fieldAuthor],
			Citation: fields[fieldCitation],
			Court:    fields[filter.FieldCourt],
			Category: fields[filter.FieldCategory],
			DocType:  fields[filter.FieldDocType],
		},
	}
	if n, err := strconv.Atoi(fields[fieldOrdinal]); err == nil {
		hit.Ordinal = n
	}
	if y, err := strconv.Atoi(fields[filter.FieldYear]); err == nil {
		hit.Metadata.Year = y
	}
	if raw := fields[fieldExtra]; raw != "" {
		_ = json.Unmarshal([]byte(raw), &hit.Metadata.Extra)
	}
	return hit
}

// encodeVector encodes a vector as a little-endian FLOAT32 blob.
func encodeVector(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}
