package persist

import (
	"encoding/xml"
	"io"
)

type xmlDocument struct {
	XMLName    xml.Name   `xml:"Session"`
	SampleRate float64    `xml:"SampleRate,attr"`
	Tempo      float64    `xml:"Tempo,attr"`
	Tracks     []xmlTrack `xml:"Track"`
}

type xmlTrack struct {
	Name       string      `xml:"Name,attr"`
	Automation bool        `xml:"Automation,attr"`
	GainDB     float64     `xml:"GainDB,attr,omitempty"`
	Effects    xmlElements `xml:"Effects"`
	Events     xmlElements `xml:"Automation"`
}

type xmlElements struct {
	Items []Element `xml:",any"`
}

// EncodeXML writes doc as an indented XML session.
func EncodeXML(w io.Writer, doc *Document) error {
	out := xmlDocument{SampleRate: doc.SampleRate, Tempo: doc.Tempo}
	for _, t := range doc.Tracks {
		out.Tracks = append(out.Tracks, xmlTrack{
			Name:       t.Name,
			Automation: t.Automation,
			GainDB:     t.GainDB,
			Effects:    xmlElements{Items: t.Effects},
			Events:     xmlElements{Items: t.Events},
		})
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(out); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}

// DecodeXML reads an XML session.
func DecodeXML(r io.Reader) (*Document, error) {
	var in xmlDocument
	if err := xml.NewDecoder(r).Decode(&in); err != nil {
		return nil, err
	}

	doc := &Document{SampleRate: in.SampleRate, Tempo: in.Tempo}
	for _, t := range in.Tracks {
		doc.Tracks = append(doc.Tracks, Track{
			Name:       t.Name,
			Automation: t.Automation,
			GainDB:     t.GainDB,
			Effects:    t.Effects.Items,
			Events:     t.Events.Items,
		})
	}
	return doc, nil
}

// MarshalXML writes the element with its attributes in order.
func (e Element) MarshalXML(enc *xml.Encoder, _ xml.StartElement) error {
	start := xml.StartElement{Name: xml.Name{Local: e.Name}}
	for _, a := range e.Attrs {
		start.Attr = append(start.Attr, xml.Attr{Name: xml.Name{Local: a.Name}, Value: a.Value})
	}
	if err := enc.EncodeToken(start); err != nil {
		return err
	}
	return enc.EncodeToken(start.End())
}

// UnmarshalXML reads the element name and attributes and skips any content.
func (e *Element) UnmarshalXML(dec *xml.Decoder, start xml.StartElement) error {
	e.Name = start.Name.Local
	e.Attrs = e.Attrs[:0]
	for _, a := range start.Attr {
		e.Attrs = append(e.Attrs, Attr{Name: a.Name.Local, Value: a.Value})
	}
	return dec.Skip()
}
