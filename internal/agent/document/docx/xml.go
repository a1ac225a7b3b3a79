package docx

import (
	"encoding/xml"
	"strings"
)

type valAttr struct {
	Val string `xml:"val,attr"`
}

// onOff is a WordprocessingML toggle such as <w:b/> or <w:b w:val="0"/>.
type onOff struct {
	Val string `xml:"val,attr"`
}

func (o *onOff) on() bool {
	if o == nil {
		return false
	}
	switch strings.ToLower(o.Val) {
	case "0", "false", "off", "none":
		return false
	}
	return true
}

type documentXML struct {
	Body bodyXML `xml:"body"`
}

// bodyElement is either a paragraph or a table, in document order.
type bodyElement struct {
	Paragraph *paragraphXML
	Table     *tableXML
}

type bodyXML struct {
	Elements []bodyElement
}

// containers are wrappers whose children are walked as if they were direct
// children: content controls, custom XML and tracked insertions.
var containers = map[string]bool{
	"sdt":        true,
	"sdtContent": true,
	"customXml":  true,
	"ins":        true,
	"smartTag":   true,
	"hyperlink":  true,
	"fldSimple":  true,
}

func (b *bodyXML) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	depth := 0
	for {
		tok, err := d.Token()
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch {
			case t.Name.Local == "p":
				var p paragraphXML
				if err := d.DecodeElement(&p, &t); err != nil {
					return err
				}
				b.Elements = append(b.Elements, bodyElement{Paragraph: &p})
			case t.Name.Local == "tbl":
				var tbl tableXML
				if err := d.DecodeElement(&tbl, &t); err != nil {
					return err
				}
				b.Elements = append(b.Elements, bodyElement{Table: &tbl})
			case containers[t.Name.Local]:
				depth++
			default:
				if err := d.Skip(); err != nil {
					return err
				}
			}
		case xml.EndElement:
			if depth == 0 {
				return nil
			}
			depth--
		}
	}
}

type paragraphPropsXML struct {
	Style valAttr   `xml:"pStyle"`
	NumPr *numPrXML `xml:"numPr"`
}

type numPrXML struct {
	ILvl  valAttr `xml:"ilvl"`
	NumID valAttr `xml:"numId"`
}

type paragraphXML struct {
	Props paragraphPropsXML
	Runs  []runXML
}

func (p *paragraphXML) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	depth := 0
	for {
		tok, err := d.Token()
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch {
			case t.Name.Local == "pPr":
				if err := d.DecodeElement(&p.Props, &t); err != nil {
					return err
				}
			case t.Name.Local == "r":
				var r runXML
				if err := d.DecodeElement(&r, &t); err != nil {
					return err
				}
				p.Runs = append(p.Runs, r)
			case containers[t.Name.Local]:
				depth++
			default:
				if err := d.Skip(); err != nil {
					return err
				}
			}
		case xml.EndElement:
			if depth == 0 {
				return nil
			}
			depth--
		}
	}
}

type runPropsXML struct {
	Bold   *onOff `xml:"b"`
	Italic *onOff `xml:"i"`
}

type runXML struct {
	Props runPropsXML
	Text  string
}

func (r *runXML) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	var b strings.Builder
	for {
		tok, err := d.Token()
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "rPr":
				if err := d.DecodeElement(&r.Props, &t); err != nil {
					return err
				}
			case "t":
				var s string
				if err := d.DecodeElement(&s, &t); err != nil {
					return err
				}
				b.WriteString(s)
			case "tab":
				b.WriteByte('\t')
				if err := d.Skip(); err != nil {
					return err
				}
			case "br", "cr":
				b.WriteByte('\n')
				if err := d.Skip(); err != nil {
					return err
				}
			default:
				if err := d.Skip(); err != nil {
					return err
				}
			}
		case xml.EndElement:
			r.Text = b.String()
			return nil
		}
	}
}

type tableXML struct {
	Rows []tableRowXML `xml:"tr"`
}

type tableRowXML struct {
	Cells []tableCellXML `xml:"tc"`
}

type tableCellXML struct {
	Props      tableCellPropsXML `xml:"tcPr"`
	Paragraphs []paragraphXML    `xml:"p"`
}

type tableCellPropsXML struct {
	GridSpan *valAttr `xml:"gridSpan"`
	VMerge   *valAttr `xml:"vMerge"`
}

type stylesXML struct {
	Styles []styleXML `xml:"style"`
}

type styleXML struct {
	ID      string  `xml:"styleId,attr"`
	Name    valAttr `xml:"name"`
	BasedOn valAttr `xml:"basedOn"`
	PPr     struct {
		OutlineLvl *valAttr `xml:"outlineLvl"`
	} `xml:"pPr"`
}

type numberingXML struct {
	Abstract []abstractNumXML `xml:"abstractNum"`
	Nums     []numXML         `xml:"num"`
}

type abstractNumXML struct {
	ID     string        `xml:"abstractNumId,attr"`
	Levels []numLevelXML `xml:"lvl"`
}

type numLevelXML struct {
	ILvl   string  `xml:"ilvl,attr"`
	NumFmt valAttr `xml:"numFmt"`
}

type numXML struct {
	ID         string  `xml:"numId,attr"`
	AbstractID valAttr `xml:"abstractNumId"`
}
