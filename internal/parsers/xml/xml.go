// Package xml provides markup transaction parsing
package xml

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"golang.org/x/text/encoding/ianaindex"

	"github.com/blaug210/budget-app/internal/domain"
	"github.com/blaug210/budget-app/internal/parser"
)

const transactionTag = "transaction"

// Parser implements markup parsing with a stateless design.
// Every <transaction> element at any depth below the root is one record.
type Parser struct{}

var parserInstance = &Parser{}

// NewParser returns the shared XML parser instance.
func NewParser() *Parser {
	return parserInstance
}

// Name returns the parser identifier
func (p *Parser) Name() string {
	return "xml"
}

// FileType returns the tracker file type for XML imports
func (p *Parser) FileType() domain.FileType {
	return domain.FileTypeXML
}

// CanParse checks extension and looks for a transaction element in the header
func (p *Parser) CanParse(path string, header []byte) bool {
	if strings.ToLower(filepath.Ext(path)) != ".xml" {
		return false
	}
	// OFX 2.x files are XML too; leave them to the OFX parser
	upper := bytes.ToUpper(header)
	return !bytes.Contains(upper, []byte("<?OFX")) && !bytes.Contains(upper, []byte("<OFX>"))
}

// node is a minimal element tree; text holds the element's own character data
type node struct {
	name     string
	text     strings.Builder
	children []*node
}

func (n *node) child(name string) *node {
	for _, c := range n.children {
		if c.name == name {
			return c
		}
	}
	return nil
}

func (n *node) childText(name string) string {
	c := n.child(name)
	if c == nil {
		return ""
	}
	return strings.TrimSpace(c.text.String())
}

// Parse extracts transactions from an XML document.
// A document that is not well-formed yields a single error and no records.
func (p *Parser) Parse(ctx context.Context, r io.Reader) (*parser.Result, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read XML content: %w", err)
	}

	result := parser.NewResult("Transaction")

	root, err := buildTree(content)
	if err != nil {
		result.AddError(0, "XML parsing error: %v", err)
		return result, nil
	}

	var elems []*node
	collect(root, &elems)
	if len(elems) == 0 {
		result.AddError(0, "No transactions found in XML file")
		return result, nil
	}

	for i, elem := range elems {
		if i%256 == 0 && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		p.parseTransaction(result, i+1, elem)
	}

	return result, nil
}

// collect appends all transaction descendants of n in document order
func collect(n *node, out *[]*node) {
	for _, c := range n.children {
		if c.name == transactionTag {
			*out = append(*out, c)
		}
		collect(c, out)
	}
}

// parseTransaction validates one element; the first missing or invalid field is reported
func (p *Parser) parseTransaction(result *parser.Result, idx int, elem *node) {
	dateStr := elem.childText("date")
	if dateStr == "" {
		result.AddError(idx, "Date is required")
		return
	}
	date, err := parser.ParseDate(dateStr)
	if err != nil {
		result.AddError(idx, "Invalid date format '%s'", dateStr)
		return
	}

	description := elem.childText("description")
	if description == "" {
		result.AddError(idx, "Description is required")
		return
	}

	amountStr := elem.childText("amount")
	if amountStr == "" {
		result.AddError(idx, "Amount is required")
		return
	}
	amount, err := parser.ParseAmount(amountStr)
	if err != nil {
		result.AddError(idx, "Invalid amount '%s'", parser.CleanAmount(amountStr))
		return
	}

	category := elem.childText("category")
	if category == "" {
		result.AddError(idx, "Category is required")
		return
	}

	result.Add(parser.Transaction{
		Date:            date,
		Description:     description,
		Amount:          amount,
		Category:        category,
		Member:          elem.childText("member"),
		Source:          elem.childText("source"),
		ReferenceNumber: elem.childText("reference_number"),
	})
}

// buildTree decodes the whole document, enforcing a single well-formed root element
func buildTree(content []byte) (*node, error) {
	dec := xml.NewDecoder(parser.DecodeText(bytes.NewReader(content)))
	dec.Strict = true
	dec.CharsetReader = charsetReader

	var (
		root  *node
		stack []*node
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			n := &node{name: t.Name.Local}
			if len(stack) == 0 {
				if root != nil {
					return nil, fmt.Errorf("junk after document element: <%s>", t.Name.Local)
				}
				root = n
			} else {
				parent := stack[len(stack)-1]
				parent.children = append(parent.children, n)
			}
			stack = append(stack, n)
		case xml.EndElement:
			stack = stack[:len(stack)-1]
		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].text.Write(t)
			} else if len(bytes.TrimSpace(t)) > 0 {
				return nil, fmt.Errorf("text outside document element")
			}
		}
	}

	if root == nil {
		return nil, fmt.Errorf("no element found")
	}
	if len(stack) > 0 {
		return nil, fmt.Errorf("unclosed element <%s>", stack[len(stack)-1].name)
	}
	return root, nil
}

// charsetReader supports documents that declare a non UTF-8 encoding
func charsetReader(label string, input io.Reader) (io.Reader, error) {
	// DecodeText has already transcoded BOM-marked UTF-16 input
	if strings.HasPrefix(strings.ToLower(label), "utf-16") {
		return input, nil
	}
	enc, err := ianaindex.IANA.Encoding(label)
	if err != nil {
		return nil, fmt.Errorf("unsupported charset %q: %w", label, err)
	}
	if enc == nil {
		return nil, fmt.Errorf("unsupported charset %q", label)
	}
	return enc.NewDecoder().Reader(input), nil
}
