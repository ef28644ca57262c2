package domain

import (
	"encoding/json"
	"fmt"
)

// PayloadKind tags the structured payload variant carried alongside a chunk's
// embeddable text.
type PayloadKind string

const (
	PayloadText         PayloadKind = "text"
	PayloadTable        PayloadKind = "table"
	PayloadImageCaption PayloadKind = "image_caption"
	PayloadKeyframes    PayloadKind = "keyframes"
)

// Payload is a tagged union with a fixed set of variants. Exactly the fields
// belonging to Kind may be set. The zero value is a plain text payload.
type Payload struct {
	Kind      PayloadKind     `json:"kind"`
	Table     json.RawMessage `json:"table,omitempty"`
	Caption   string          `json:"caption,omitempty"`
	Keyframes []string        `json:"keyframes,omitempty"`
}

// Validate checks that only the fields of the tagged variant are populated.
func (p Payload) Validate() error {
	kind := p.Kind
	if kind == "" {
		kind = PayloadText
	}
	switch kind {
	case PayloadText:
		if p.Table != nil || p.Caption != "" || len(p.Keyframes) > 0 {
			return fmt.Errorf("text payload must carry no structured fields")
		}
	case PayloadTable:
		if p.Table == nil {
			return fmt.Errorf("table payload requires table data")
		}
		if p.Caption != "" || len(p.Keyframes) > 0 {
			return fmt.Errorf("table payload carries unexpected fields")
		}
	case PayloadImageCaption:
		if p.Caption == "" {
			return fmt.Errorf("image caption payload requires a caption")
		}
		if p.Table != nil || len(p.Keyframes) > 0 {
			return fmt.Errorf("image caption payload carries unexpected fields")
		}
	case PayloadKeyframes:
		if len(p.Keyframes) == 0 {
			return fmt.Errorf("keyframes payload requires at least one frame")
		}
		if p.Table != nil || p.Caption != "" {
			return fmt.Errorf("keyframes payload carries unexpected fields")
		}
	default:
		return fmt.Errorf("unknown payload kind: %q", p.Kind)
	}
	return nil
}

// NormalizedKind returns the kind with the zero value resolved to text.
func (p Payload) NormalizedKind() PayloadKind {
	if p.Kind == "" {
		return PayloadText
	}
	return p.Kind
}
