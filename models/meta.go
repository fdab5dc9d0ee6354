package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var ErrInvalidMeta = errors.New("invalid resource metadata")

// Meta describes a stored payload. The concrete shape depends on the kind of
// the resource that carries it; folders carry none.
type Meta interface {
	Kind() ResourceKind
	Validate() error
	// ObjectIDs lists the backing objects the descriptor references.
	ObjectIDs() []uint
	// Redact returns a client view where object ids are replaced with signed
	// URLs and processing logs are dropped.
	Redact(sign URLSigner) (any, error)
}

// URLSigner returns a time-limited download URL for a backing object.
type URLSigner func(objectID uint) (string, error)

type FileMeta struct {
	ID uint `json:"id"`
}

type PictureMeta struct {
	FileMeta
	Width  int      `json:"width"`
	Height int      `json:"height"`
	Offset *float64 `json:"offset,omitempty"`
}

type VideoStream struct {
	Codec     string  `json:"codec"`
	Width     int     `json:"width"`
	Height    int     `json:"height"`
	Framerate float64 `json:"framerate"`
}

type AudioStream struct {
	Codec     string `json:"codec"`
	Channels  int    `json:"channels"`
	Frequency int    `json:"frequency"`
}

type ObjectRef struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}

type VideoMeta struct {
	FileMeta
	Duration   float64       `json:"duration"`
	Video      VideoStream   `json:"video"`
	Audio      *AudioStream  `json:"audio,omitempty"`
	Thumbnails []PictureMeta `json:"thumbnails,omitempty"`
	Log        *ObjectRef    `json:"log,omitempty"`
}

func (FileMeta) Kind() ResourceKind { return KindFile }

func (m FileMeta) Validate() error {
	if m.ID == 0 {
		return fmt.Errorf("%w: missing object id", ErrInvalidMeta)
	}
	return nil
}

func (m FileMeta) ObjectIDs() []uint { return []uint{m.ID} }

type FileView struct {
	URL string `json:"url"`
}

func (m FileMeta) Redact(sign URLSigner) (any, error) {
	url, err := sign(m.ID)
	if err != nil {
		return nil, err
	}
	return FileView{URL: url}, nil
}

func (PictureMeta) Kind() ResourceKind { return KindPicture }

func (m PictureMeta) Validate() error {
	if err := m.FileMeta.Validate(); err != nil {
		return err
	}
	if m.Width < 0 || m.Height < 0 {
		return fmt.Errorf("%w: negative picture dimensions", ErrInvalidMeta)
	}
	return nil
}

type PictureView struct {
	URL    string   `json:"url"`
	Width  int      `json:"width"`
	Height int      `json:"height"`
	Offset *float64 `json:"offset,omitempty"`
}

func (m PictureMeta) Redact(sign URLSigner) (any, error) {
	return m.view(sign)
}

func (m PictureMeta) view(sign URLSigner) (PictureView, error) {
	url, err := sign(m.ID)
	if err != nil {
		return PictureView{}, err
	}
	return PictureView{URL: url, Width: m.Width, Height: m.Height, Offset: m.Offset}, nil
}

func (VideoMeta) Kind() ResourceKind { return KindVideo }

func (m VideoMeta) Validate() error {
	if err := m.FileMeta.Validate(); err != nil {
		return err
	}
	if m.Duration < 0 {
		return fmt.Errorf("%w: negative duration", ErrInvalidMeta)
	}
	for _, thumb := range m.Thumbnails {
		if err := thumb.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (m VideoMeta) ObjectIDs() []uint {
	ids := []uint{m.ID}
	for _, thumb := range m.Thumbnails {
		ids = append(ids, thumb.ID)
	}
	return ids
}

type VideoView struct {
	URL        string        `json:"url"`
	Duration   float64       `json:"duration"`
	Video      VideoStream   `json:"video"`
	Audio      *AudioStream  `json:"audio,omitempty"`
	Thumbnails []PictureView `json:"thumbnails"`
}

func (m VideoMeta) Redact(sign URLSigner) (any, error) {
	url, err := sign(m.ID)
	if err != nil {
		return nil, err
	}
	view := VideoView{
		URL:        url,
		Duration:   m.Duration,
		Video:      m.Video,
		Audio:      m.Audio,
		Thumbnails: make([]PictureView, 0, len(m.Thumbnails)),
	}
	for _, thumb := range m.Thumbnails {
		tv, err := thumb.view(sign)
		if err != nil {
			return nil, err
		}
		view.Thumbnails = append(view.Thumbnails, tv)
	}
	return view, nil
}

func isNullJSON(raw []byte) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// DecodeMeta parses raw into the shape required by kind and validates it.
// Folders, and non-folders without a descriptor, yield nil.
func DecodeMeta(kind ResourceKind, raw []byte) (Meta, error) {
	if kind == KindFolder {
		if !isNullJSON(raw) {
			return nil, fmt.Errorf("%w: folders carry no metadata", ErrInvalidMeta)
		}
		return nil, nil
	}
	if isNullJSON(raw) {
		return nil, nil
	}

	var meta Meta
	switch kind {
	case KindFile:
		var m FileMeta
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidMeta, err)
		}
		meta = m
	case KindPicture:
		var m PictureMeta
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidMeta, err)
		}
		meta = m
	case KindVideo:
		var m VideoMeta
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidMeta, err)
		}
		meta = m
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidMeta, kind)
	}
	if err := meta.Validate(); err != nil {
		return nil, err
	}
	return meta, nil
}

// DecodeMetaList parses a JSON array of descriptors of the given kind.
func DecodeMetaList(kind ResourceKind, raw []byte) ([]Meta, error) {
	if isNullJSON(raw) {
		return nil, nil
	}
	if kind == KindFolder {
		return nil, fmt.Errorf("%w: folders carry no variants", ErrInvalidMeta)
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMeta, err)
	}
	out := make([]Meta, 0, len(items))
	for _, item := range items {
		meta, err := DecodeMeta(kind, item)
		if err != nil {
			return nil, err
		}
		if meta != nil {
			out = append(out, meta)
		}
	}
	return out, nil
}

// EncodeMeta validates meta against kind and serializes it.
func EncodeMeta(kind ResourceKind, meta Meta) ([]byte, error) {
	if meta == nil {
		if kind == KindFolder {
			return nil, nil
		}
		return []byte("null"), nil
	}
	if meta.Kind() != kind {
		return nil, fmt.Errorf("%w: %s descriptor on %s resource", ErrInvalidMeta, meta.Kind(), kind)
	}
	if err := meta.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(meta)
}

// EncodeMetaList serializes variants, validating each against kind.
func EncodeMetaList(kind ResourceKind, metas []Meta) ([]byte, error) {
	if kind == KindFolder {
		if len(metas) > 0 {
			return nil, fmt.Errorf("%w: folders carry no variants", ErrInvalidMeta)
		}
		return nil, nil
	}
	items := make([]json.RawMessage, 0, len(metas))
	for _, m := range metas {
		raw, err := EncodeMeta(kind, m)
		if err != nil {
			return nil, err
		}
		items = append(items, raw)
	}
	return json.Marshal(items)
}
