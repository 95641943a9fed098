// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package storage

import (
	"errors"
	"fmt"
	"time"

	"github.com/mus-format/mus-go"
	mapops "github.com/mus-format/mus-go/options/map"
	slops "github.com/mus-format/mus-go/options/slice"
	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"
	"github.com/poiesic/dossier/core"
)

// Upper bounds on decoded collection lengths, checked before allocating.
const (
	maxVectorLen   = 1 << 16
	maxMetadataLen = core.MaxMetadataKeys
)

// maxLen rejects decoded lengths above its value.
type maxLen int

func (m maxLen) Validate(n int) error {
	if n > int(m) {
		return fmt.Errorf("length %d exceeds %d", n, int(m))
	}
	return nil
}

var (
	// VectorMUS encodes a vector as a length prefix followed by raw
	// little-endian float32 values, so decoded vectors are bit-for-bit equal.
	VectorMUS = ord.NewValidSliceSer[float32](raw.Float32,
		slops.WithLenValidator[float32](maxLen(maxVectorLen)))

	// MetadataMUS encodes document metadata.
	MetadataMUS = ord.NewValidMapSer[string, string](ord.String, ord.String,
		mapops.WithLenValidator[string, string](maxLen(maxMetadataLen)))

	// TimeMUS encodes an instant as UTC Unix nanoseconds. The zero time is
	// preserved.
	TimeMUS mus.Serializer[time.Time] = timeSer{}

	// EntryMUS encodes an Entry. The document ID is not stored because it is
	// derived from content.
	EntryMUS mus.Serializer[core.Entry] = entrySer{}

	// ManifestMUS encodes a Manifest.
	ManifestMUS mus.Serializer[core.Manifest] = manifestSer{}
)

type timeSer struct{}

func (timeSer) Marshal(v time.Time, bs []byte) (n int) {
	if v.IsZero() {
		return raw.Int64.Marshal(0, bs)
	}
	return raw.Int64.Marshal(v.UnixNano(), bs)
}

func (timeSer) Unmarshal(bs []byte) (v time.Time, n int, err error) {
	nano, n, err := raw.Int64.Unmarshal(bs)
	if err != nil || nano == 0 {
		return
	}
	return time.Unix(0, nano).UTC(), n, nil
}

func (timeSer) Size(v time.Time) (size int) {
	return raw.Int64.Size(0)
}

func (timeSer) Skip(bs []byte) (n int, err error) {
	return raw.Int64.Skip(bs)
}

type entrySer struct{}

func (entrySer) Marshal(v core.Entry, bs []byte) (n int) {
	n = raw.Uint64.Marshal(v.Seq, bs)
	n += ord.String.Marshal(v.Document.Content, bs[n:])
	n += MetadataMUS.Marshal(v.Document.Metadata, bs[n:])
	n += TimeMUS.Marshal(v.InsertedAt, bs[n:])
	return n + VectorMUS.Marshal(v.Vector, bs[n:])
}

func (entrySer) Unmarshal(bs []byte) (v core.Entry, n int, err error) {
	var (
		n1       int
		content  string
		metadata map[string]string
	)
	v.Seq, n, err = raw.Uint64.Unmarshal(bs)
	if err != nil {
		return
	}
	content, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	metadata, n1, err = MetadataMUS.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.InsertedAt, n1, err = TimeMUS.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Vector, n1, err = VectorMUS.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Document = core.NewDocument(content, metadata)
	return
}

func (entrySer) Size(v core.Entry) (size int) {
	size = raw.Uint64.Size(v.Seq)
	size += ord.String.Size(v.Document.Content)
	size += MetadataMUS.Size(v.Document.Metadata)
	size += TimeMUS.Size(v.InsertedAt)
	return size + VectorMUS.Size(v.Vector)
}

func (entrySer) Skip(bs []byte) (n int, err error) {
	skips := []func([]byte) (int, error){
		raw.Uint64.Skip, ord.String.Skip, MetadataMUS.Skip, TimeMUS.Skip, VectorMUS.Skip,
	}
	for _, skip := range skips {
		n1, err := skip(bs[n:])
		n += n1
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

type manifestSer struct{}

func (manifestSer) Marshal(v core.Manifest, bs []byte) (n int) {
	n = varint.PositiveInt.Marshal(v.Version, bs)
	n += varint.PositiveInt.Marshal(v.Dimension, bs[n:])
	n += ord.String.Marshal(v.Model, bs[n:])
	n += ord.String.Marshal(string(v.Metric), bs[n:])
	n += raw.Uint64.Marshal(v.Count, bs[n:])
	n += TimeMUS.Marshal(v.CreatedAt, bs[n:])
	return n + TimeMUS.Marshal(v.UpdatedAt, bs[n:])
}

func (manifestSer) Unmarshal(bs []byte) (v core.Manifest, n int, err error) {
	var (
		n1     int
		metric string
	)
	v.Version, n, err = varint.PositiveInt.Unmarshal(bs)
	if err != nil {
		return
	}
	v.Dimension, n1, err = varint.PositiveInt.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Model, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	metric, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Metric = core.Metric(metric)
	v.Count, n1, err = raw.Uint64.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.CreatedAt, n1, err = TimeMUS.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.UpdatedAt, n1, err = TimeMUS.Unmarshal(bs[n:])
	n += n1
	return
}

func (manifestSer) Size(v core.Manifest) (size int) {
	size = varint.PositiveInt.Size(v.Version)
	size += varint.PositiveInt.Size(v.Dimension)
	size += ord.String.Size(v.Model)
	size += ord.String.Size(string(v.Metric))
	size += raw.Uint64.Size(v.Count)
	return size + TimeMUS.Size(v.CreatedAt) + TimeMUS.Size(v.UpdatedAt)
}

func (manifestSer) Skip(bs []byte) (n int, err error) {
	skips := []func([]byte) (int, error){
		varint.PositiveInt.Skip, varint.PositiveInt.Skip, ord.String.Skip, ord.String.Skip,
		raw.Uint64.Skip, TimeMUS.Skip, TimeMUS.Skip,
	}
	for _, skip := range skips {
		n1, err := skip(bs[n:])
		n += n1
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

// decodeError classifies a mus unmarshalling failure. Every decode failure
// wraps ErrSerializationFailed; short input also wraps ErrTruncatedData.
func decodeError(what string, err error) error {
	if errors.Is(err, mus.ErrTooSmallByteSlice) {
		return fmt.Errorf("%w: %w: %s: %w", ErrSerializationFailed, ErrTruncatedData, what, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrSerializationFailed, what, err)
}

// EncodeVector serializes a vector with VectorMUS.
func EncodeVector(v []float32) []byte {
	buf := make([]byte, VectorMUS.Size(v))
	VectorMUS.Marshal(v, buf)
	return buf
}

// DecodeVector deserializes a vector written by EncodeVector.
func DecodeVector(data []byte) ([]float32, error) {
	v, n, err := VectorMUS.Unmarshal(data)
	if err != nil {
		return nil, decodeError("vector", err)
	}
	if n != len(data) {
		return nil, fmt.Errorf("%w: vector has %d trailing bytes", ErrSerializationFailed, len(data)-n)
	}
	return v, nil
}

// MarshalEntry serializes an Entry to bytes.
func MarshalEntry(entry *core.Entry) []byte {
	buf := make([]byte, EntryMUS.Size(*entry))
	EntryMUS.Marshal(*entry, buf)
	return buf
}

// UnmarshalEntry deserializes an Entry from bytes.
func UnmarshalEntry(data []byte) (*core.Entry, error) {
	entry, n, err := EntryMUS.Unmarshal(data)
	if err != nil {
		return nil, decodeError("entry", err)
	}
	if n != len(data) {
		return nil, fmt.Errorf("%w: entry has %d trailing bytes", ErrSerializationFailed, len(data)-n)
	}
	return &entry, nil
}

// MarshalManifest serializes a Manifest to bytes.
func MarshalManifest(manifest *core.Manifest) []byte {
	buf := make([]byte, ManifestMUS.Size(*manifest))
	ManifestMUS.Marshal(*manifest, buf)
	return buf
}

// UnmarshalManifest deserializes a Manifest from bytes.
func UnmarshalManifest(data []byte) (*core.Manifest, error) {
	manifest, n, err := ManifestMUS.Unmarshal(data)
	if err != nil {
		return nil, decodeError("manifest", err)
	}
	if n != len(data) {
		return nil, fmt.Errorf("%w: manifest has %d trailing bytes", ErrSerializationFailed, len(data)-n)
	}
	if manifest.Version == 0 || manifest.Dimension <= 0 {
		return nil, fmt.Errorf("%w: manifest missing version or dimension", ErrSerializationFailed)
	}
	return &manifest, nil
}
