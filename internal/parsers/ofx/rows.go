package ofx

import (
	"math/big"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/blaug210/budget-app/internal/parser"
)

var (
	stmttrnPattern  = regexp.MustCompile(`(?is)<STMTTRN>.*?</STMTTRN>`)
	ccSetPattern    = regexp.MustCompile(`(?is)<CREDITCARDMSGSRSV1>.*?</CREDITCARDMSGSRSV1>`)
	xmlClosePattern = regexp.MustCompile(`(?i)</(TRNAMT|DTPOSTED|FITID|NAME|MEMO)>`)

	dtPostedField = fieldPattern("DTPOSTED")
	dtUserField   = fieldPattern("DTUSER")
	trnAmtField   = fieldPattern("TRNAMT")
	trnTypeField  = fieldPattern("TRNTYPE")
	fitIDField    = fieldPattern("FITID")
)

// dateLayouts are the OFX date forms ofxgo accepts, longest first
var dateLayouts = []string{
	"20060102150405.000",
	"20060102150405",
	"200601021504",
	"2006010215",
	"20060102",
}

// transactionTypes are the TRNTYPE values ofxgo accepts on a statement transaction.
// HOLD is a valid OFX word but ofxgo rejects it inside STMTTRN.
var transactionTypes = map[string]bool{
	"CREDIT": true, "DEBIT": true, "INT": true, "DIV": true, "FEE": true, "SRVCHG": true,
	"DEP": true, "ATM": true, "POS": true, "XFER": true, "CHECK": true, "PAYMENT": true,
	"CASH": true, "DIRECTDEP": true, "DIRECTDEBIT": true, "REPEATPMT": true, "OTHER": true,
}

// fieldPattern matches an element value in SGML (<TAG>value) or XML (<TAG>value</TAG>) form
func fieldPattern(tag string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)<` + tag + `>([^<\r\n]*)`)
}

// entry describes one STMTTRN element that passed the row checks
type entry struct {
	row int // 1-based position among all STMTTRN elements in the file

	// trnType is the TRNTYPE text from the file when it was replaced by OTHER
	trnType     string
	typeChanged bool

	// syntheticID is set when the file had no FITID and one was filled in
	syntheticID bool
}

// screenTransactions checks every STMTTRN element for the fields a transaction needs
// before the document reaches ofxgo, which rejects a whole file over one bad element.
// Elements without a usable date or amount are reported as row errors and removed.
// Unknown types become OTHER and a missing FITID is filled in so that the rest of the
// element survives validation. The returned entries are in the order ofxgo yields
// transactions: bank statements first, then credit card statements.
func screenTransactions(content []byte, result *parser.Result) ([]byte, []entry) {
	text := string(content)
	blocks := stmttrnPattern.FindAllStringIndex(text, -1)
	if len(blocks) == 0 {
		return content, nil
	}

	ccSets := ccSetPattern.FindAllStringIndex(text, -1)
	inCreditCard := func(pos int) bool {
		for _, span := range ccSets {
			if pos >= span[0] && pos < span[1] {
				return true
			}
		}
		return false
	}

	var out strings.Builder
	var bank, cc []entry
	last := 0
	for i, span := range blocks {
		out.WriteString(text[last:span[0]])
		last = span[1]

		block, e, ok := screenBlock(text[span[0]:span[1]], i+1, result)
		if !ok {
			continue
		}
		out.WriteString(block)
		if inCreditCard(span[0]) {
			cc = append(cc, e)
		} else {
			bank = append(bank, e)
		}
	}
	out.WriteString(text[last:])

	return []byte(out.String()), append(bank, cc...)
}

// screenBlock validates and repairs one STMTTRN element
func screenBlock(block string, row int, result *parser.Result) (string, entry, bool) {
	e := entry{row: row}
	xmlStyle := xmlClosePattern.MatchString(block)

	posted := field(dtPostedField, block)
	user := field(dtUserField, block)
	switch {
	case posted == "" && user == "":
		result.AddError(row, "Date is required")
		return "", e, false
	case posted != "" && !validDate(posted):
		result.AddError(row, "Invalid date format '%s'", posted)
		return "", e, false
	case posted == "" && !validDate(user):
		result.AddError(row, "Invalid date format '%s'", user)
		return "", e, false
	}

	amount := field(trnAmtField, block)
	if amount == "" {
		result.AddError(row, "Amount is required")
		return "", e, false
	}
	if _, ok := new(big.Rat).SetString(strings.Replace(amount, ",", ".", 1)); !ok {
		result.AddError(row, "Invalid amount '%s'", amount)
		return "", e, false
	}

	// DTPOSTED is mandatory for ofxgo; the user date stands in for it
	if posted == "" {
		block = setField(block, dtPostedField, "DTPOSTED", user, xmlStyle)
	}

	if t := field(trnTypeField, block); !transactionTypes[t] {
		e.trnType = strings.ToUpper(t)
		e.typeChanged = true
		block = setField(block, trnTypeField, "TRNTYPE", "OTHER", xmlStyle)
	}

	if field(fitIDField, block) == "" {
		e.syntheticID = true
		block = setField(block, fitIDField, "FITID", "row-"+strconv.Itoa(row), xmlStyle)
	}

	return block, e, true
}

func field(pattern *regexp.Regexp, block string) string {
	if m := pattern.FindStringSubmatch(block); len(m) > 1 {
		return strings.TrimSpace(m[1])
	}
	return ""
}

// setField replaces the value of an existing element, or adds the element right after
// the opening STMTTRN tag
func setField(block string, pattern *regexp.Regexp, tag, value string, xmlStyle bool) string {
	if pattern.MatchString(block) {
		return pattern.ReplaceAllLiteralString(block, "<"+tag+">"+value)
	}
	el := "<" + tag + ">" + value
	if xmlStyle {
		el += "</" + tag + ">"
	}
	i := strings.Index(block, ">") + 1
	return block[:i] + "\n" + el + block[i:]
}

// validDate reports whether the date part of an OFX datetime matches a layout ofxgo
// accepts. The bracketed time zone is checked by ofxgo itself.
func validDate(s string) bool {
	s = strings.TrimSpace(strings.SplitN(s, "[", 2)[0])
	for _, layout := range dateLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}
