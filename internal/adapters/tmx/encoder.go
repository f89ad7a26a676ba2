package tmx

import (
	"encoding/xml"
	"fmt"
	"io"
	"strconv"

	"tmengine/internal/domain"
)

// Encoder streams TM entries into a TMX document, one translation unit at a
// time, so exports of large stores do not buffer the whole document.
type Encoder struct {
	w       io.Writer
	enc     *xml.Encoder
	srcLang string
	started bool
}

// NewEncoder creates a TMX encoder. srcLang is declared in the header as the
// source language of every unit.
func NewEncoder(w io.Writer, srcLang string) *Encoder {
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	return &Encoder{w: w, enc: enc, srcLang: srcLang}
}

type headerXML struct {
	XMLName             xml.Name `xml:"header"`
	CreationTool        string   `xml:"creationtool,attr"`
	CreationToolVersion string   `xml:"creationtoolversion,attr"`
	SegType             string   `xml:"segtype,attr"`
	TMF                 string   `xml:"o-tmf,attr"`
	AdminLang           string   `xml:"adminlang,attr"`
	SrcLang             string   `xml:"srclang,attr"`
	DataType            string   `xml:"datatype,attr"`
}

type propXML struct {
	XMLName xml.Name `xml:"prop"`
	Type    string   `xml:"type,attr"`
	Value   string   `xml:",chardata"`
}

type tuvOutXML struct {
	XMLName xml.Name `xml:"tuv"`
	Lang    string   `xml:"xml:lang,attr"`
	Seg     string   `xml:"seg"`
}

type tuOutXML struct {
	XMLName  xml.Name    `xml:"tu"`
	Props    []propXML   `xml:"prop"`
	Variants []tuvOutXML `xml:"tuv"`
}

func (e *Encoder) begin() error {
	if e.started {
		return nil
	}
	e.started = true
	if _, err := io.WriteString(e.w, xml.Header); err != nil {
		return err
	}
	tmxStart := xml.StartElement{
		Name: xml.Name{Local: "tmx"},
		Attr: []xml.Attr{{Name: xml.Name{Local: "version"}, Value: tmxVersion}},
	}
	if err := e.enc.EncodeToken(tmxStart); err != nil {
		return err
	}
	header := headerXML{
		CreationTool:        creationTool,
		CreationToolVersion: creationToolVersion,
		SegType:             "sentence",
		TMF:                 creationTool,
		AdminLang:           "en",
		SrcLang:             e.srcLang,
		DataType:            "plaintext",
	}
	if err := e.enc.Encode(header); err != nil {
		return err
	}
	return e.enc.EncodeToken(xml.StartElement{Name: xml.Name{Local: "body"}})
}

// Write serializes one entry as a translation unit with exactly two
// language variants.
func (e *Encoder) Write(entry *domain.TmEntry) error {
	if err := e.begin(); err != nil {
		return err
	}
	tu := tuOutXML{
		Variants: []tuvOutXML{
			{Lang: entry.SourceLang, Seg: entry.SourceText},
			{Lang: entry.TargetLang, Seg: entry.TargetText},
		},
	}
	if entry.QualityScore != nil {
		tu.Props = append(tu.Props, propXML{
			Type:  PropQualityScore,
			Value: strconv.FormatFloat(*entry.QualityScore, 'f', -1, 64),
		})
	}
	tu.Props = append(tu.Props, propXML{
		Type:  PropUsageCount,
		Value: strconv.FormatInt(entry.UsageCount, 10),
	})
	if entry.DomainContext != "" {
		tu.Props = append(tu.Props, propXML{Type: PropGameContext, Value: entry.DomainContext})
	}
	if err := e.enc.Encode(tu); err != nil {
		return fmt.Errorf("encode tu: %w", err)
	}
	return nil
}

// Close terminates the document. Must be called after the last Write.
func (e *Encoder) Close() error {
	if err := e.begin(); err != nil {
		return err
	}
	if err := e.enc.EncodeToken(xml.EndElement{Name: xml.Name{Local: "body"}}); err != nil {
		return err
	}
	if err := e.enc.EncodeToken(xml.EndElement{Name: xml.Name{Local: "tmx"}}); err != nil {
		return err
	}
	return e.enc.Flush()
}
