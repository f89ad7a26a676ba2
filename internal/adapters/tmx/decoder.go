package tmx

import (
	"encoding/xml"
	"io"
	"strconv"
	"strings"

	"tmengine/internal/domain"
)

// Decoder streams translation units out of a TMX document. Malformed units
// surface as *domain.FormatError so callers can count and skip them; a
// broken XML stream surfaces as a regular error and ends the import.
type Decoder struct {
	dec     *xml.Decoder
	srcLang string
	unit    int
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{dec: xml.NewDecoder(r)}
}

type tuvInXML struct {
	Lang string `xml:"lang,attr"`
	Seg  string `xml:"seg"`
}

type tuInXML struct {
	Props    []propXML  `xml:"prop"`
	Variants []tuvInXML `xml:"tuv"`
}

// SrcLang returns the header's declared source language, available once the
// header has been read (after the first Next call at the latest).
func (d *Decoder) SrcLang() string { return d.srcLang }

// Next returns the next translation unit. io.EOF signals a clean end of the
// document.
func (d *Decoder) Next() (*Unit, error) {
	for {
		tok, err := d.dec.Token()
		if err != nil {
			return nil, err
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch start.Name.Local {
		case "header":
			for _, a := range start.Attr {
				if a.Name.Local == "srclang" {
					d.srcLang = a.Value
				}
			}
			if err := d.dec.Skip(); err != nil {
				return nil, err
			}
		case "tu":
			d.unit++
			var raw tuInXML
			if err := d.dec.DecodeElement(&raw, &start); err != nil {
				return nil, &domain.FormatError{Unit: d.unit, Message: err.Error()}
			}
			u, err := d.toUnit(&raw)
			if err != nil {
				return nil, err
			}
			return u, nil
		}
	}
}

func (d *Decoder) toUnit(raw *tuInXML) (*Unit, error) {
	if len(raw.Variants) != 2 {
		return nil, &domain.FormatError{
			Unit:    d.unit,
			Message: "translation unit must have exactly two language variants",
		}
	}
	src, tgt := raw.Variants[0], raw.Variants[1]
	// The header's srclang identifies which variant is the source; fall back
	// to document order when it is absent or set to "*all*".
	if d.srcLang != "" && d.srcLang != "*all*" {
		if !strings.EqualFold(src.Lang, d.srcLang) && strings.EqualFold(tgt.Lang, d.srcLang) {
			src, tgt = tgt, src
		}
	}
	u := &Unit{
		SourceLang: src.Lang,
		SourceText: src.Seg,
		TargetLang: tgt.Lang,
		TargetText: tgt.Seg,
	}
	if u.SourceLang == "" || u.TargetLang == "" {
		return nil, &domain.FormatError{Unit: d.unit, Message: "variant missing language tag"}
	}
	for _, p := range raw.Props {
		switch p.Type {
		case PropQualityScore:
			v, err := strconv.ParseFloat(strings.TrimSpace(p.Value), 64)
			if err != nil || v < 0 || v > 1 {
				return nil, &domain.FormatError{Unit: d.unit, Message: "invalid " + PropQualityScore}
			}
			u.Quality = &v
		case PropUsageCount:
			v, err := strconv.ParseInt(strings.TrimSpace(p.Value), 10, 64)
			if err != nil || v < 0 {
				return nil, &domain.FormatError{Unit: d.unit, Message: "invalid " + PropUsageCount}
			}
			u.UsageCount = v
		case PropGameContext:
			u.Context = p.Value
		default:
			// Unknown or foreign properties are ignored, not errors.
		}
	}
	return u, nil
}
