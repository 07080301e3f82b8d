package textextract

import (
	"archive/zip"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"golang.org/x/text/encoding/charmap"
)

var ErrUnsupportedType = errors.New("unsupported file type")

type ExtractedText struct {
	Content  string
	Pages    int
	Metadata map[string]string
}

// Extract pulls plain text out of a document. fileType may be an extension
// (".pdf"), a bare name ("pdf") or a MIME type.
func Extract(data io.ReaderAt, size int64, fileType string) (*ExtractedText, error) {
	switch strings.ToLower(fileType) {
	case ".pdf", "pdf", "application/pdf":
		return extractPDF(data, size)
	case ".docx", "docx", "application/vnd.openxmlformats-officedocument.wordprocessingml.document":
		return extractDOCX(data, size)
	case ".txt", "txt", "text/plain":
		return extractTXT(data, size, "txt")
	case ".md", "md", "text/markdown":
		return extractTXT(data, size, "md")
	case ".sql", "sql", "application/sql":
		return extractTXT(data, size, "sql")
	case ".csv", "csv", "text/csv":
		return extractCSV(data, size)
	case ".json", "json", "application/json":
		return extractJSON(data, size)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, fileType)
	}
}

// TypeFromFilename returns the lowercase extension used by Extract.
func TypeFromFilename(name string) string {
	return strings.ToLower(filepath.Ext(name))
}

func SupportedTypes() []string {
	return []string{".pdf", ".docx", ".txt", ".md", ".sql", ".csv", ".json"}
}

func extractPDF(data io.ReaderAt, size int64) (*ExtractedText, error) {
	reader, err := pdf.NewReader(data, size)
	if err != nil {
		return nil, fmt.Errorf("open PDF: %w", err)
	}

	var buf strings.Builder
	numPages := reader.NumPage()

	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		buf.WriteString(text)
		buf.WriteString("\n")
	}

	return &ExtractedText{
		Content: buf.String(),
		Pages:   numPages,
		Metadata: map[string]string{
			"type": "pdf",
		},
	}, nil
}

func extractDOCX(data io.ReaderAt, size int64) (*ExtractedText, error) {
	reader, err := zip.NewReader(data, size)
	if err != nil {
		return nil, fmt.Errorf("open DOCX: %w", err)
	}

	for _, f := range reader.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open document.xml: %w", err)
		}
		content, err := docxParagraphs(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("parse document.xml: %w", err)
		}

		return &ExtractedText{
			Content: content,
			Pages:   1,
			Metadata: map[string]string{
				"type": "docx",
			},
		}, nil
	}
	return nil, errors.New("open DOCX: word/document.xml not found")
}

func extractTXT(data io.ReaderAt, size int64, kind string) (*ExtractedText, error) {
	raw, err := readAll(data, size)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", strings.ToUpper(kind), err)
	}

	text, encoding, err := decodeText(raw)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", strings.ToUpper(kind), err)
	}

	return &ExtractedText{
		Content: text,
		Pages:   1,
		Metadata: map[string]string{
			"type":     kind,
			"encoding": encoding,
		},
	}, nil
}

// extractCSV joins the fields of each row with a space and rows with newlines.
func extractCSV(data io.ReaderAt, size int64) (*ExtractedText, error) {
	raw, err := readAll(data, size)
	if err != nil {
		return nil, fmt.Errorf("read CSV: %w", err)
	}

	r := csv.NewReader(bytes.NewReader(raw))
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse CSV: %w", err)
	}

	lines := make([]string, len(records))
	for i, rec := range records {
		lines[i] = strings.Join(rec, " ")
	}

	return &ExtractedText{
		Content: strings.Join(lines, "\n"),
		Pages:   1,
		Metadata: map[string]string{
			"type": "csv",
			"rows": fmt.Sprint(len(records)),
		},
	}, nil
}

// extractJSON re-indents the document with two spaces.
func extractJSON(data io.ReaderAt, size int64) (*ExtractedText, error) {
	raw, err := readAll(data, size)
	if err != nil {
		return nil, fmt.Errorf("read JSON: %w", err)
	}

	var out bytes.Buffer
	if err := json.Indent(&out, bytes.TrimSpace(raw), "", "  "); err != nil {
		return nil, fmt.Errorf("parse JSON: %w", err)
	}

	return &ExtractedText{
		Content: out.String(),
		Pages:   1,
		Metadata: map[string]string{
			"type": "json",
		},
	}, nil
}

func readAll(data io.ReaderAt, size int64) ([]byte, error) {
	buf := make([]byte, size)
	n, err := data.ReadAt(buf, 0)
	if err != nil && err != io.EOF {
		return nil, err
	}
	return buf[:n], nil
}

// decodeText returns UTF-8 input unchanged and otherwise reads it as Latin-1,
// which accepts every byte sequence.
func decodeText(raw []byte) (string, string, error) {
	if utf8.Valid(raw) {
		return string(raw), "utf-8", nil
	}
	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(raw)
	if err != nil {
		return "", "", err
	}
	return string(decoded), "latin-1", nil
}

// docxParagraphs walks WordprocessingML and returns one line per <w:p>.
// Runs inside a paragraph are joined without a separator.
func docxParagraphs(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)
	var (
		paras  []string
		open   []*strings.Builder
		inText bool
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				open = append(open, &strings.Builder{})
			case "t":
				inText = true
			case "tab":
				if len(open) > 0 {
					open[len(open)-1].WriteByte('\t')
				}
			case "br", "cr":
				if len(open) > 0 {
					open[len(open)-1].WriteByte('\n')
				}
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "p":
				if len(open) > 0 {
					paras = append(paras, open[len(open)-1].String())
					open = open[:len(open)-1]
				}
			case "t":
				inText = false
			}
		case xml.CharData:
			if inText && len(open) > 0 {
				open[len(open)-1].Write(t)
			}
		}
	}
	return strings.Join(paras, "\n"), nil
}
