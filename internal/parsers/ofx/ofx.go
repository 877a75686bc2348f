// Package ofx provides OFX/QFX statement parsing with keyword category inference
package ofx

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/aclindsa/ofxgo"
	"github.com/shopspring/decimal"

	"github.com/blaug210/budget-app/internal/domain"
	"github.com/blaug210/budget-app/internal/parser"
	"github.com/blaug210/budget-app/internal/rules"
)

// Parser implements OFX/QFX parsing. It holds only the read-only rules engine
// and is safe for concurrent use.
type Parser struct {
	rules *rules.Engine
}

// NewParser returns a parser that infers categories with the given rules engine.
// A nil engine selects the embedded default rules.
func NewParser(engine *rules.Engine) (*Parser, error) {
	if engine == nil {
		var err error
		engine, err = rules.LoadEmbedded()
		if err != nil {
			return nil, err
		}
	}
	return &Parser{rules: engine}, nil
}

// Name returns the parser identifier
func (p *Parser) Name() string {
	return "ofx"
}

// FileType returns the tracker file type for OFX/QFX imports
func (p *Parser) FileType() domain.FileType {
	return domain.FileTypeOFX
}

// CanParse checks if this parser can handle the file based on extension and header
func (p *Parser) CanParse(path string, header []byte) bool {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".ofx" && ext != ".qfx" && ext != ".xml" {
		return false
	}

	// Look for OFX header markers (both v1 SGML and v2 XML formats)
	headerUpper := strings.ToUpper(string(header))
	return strings.Contains(headerUpper, "OFXHEADER") ||
		strings.Contains(headerUpper, "<?OFX") ||
		strings.Contains(headerUpper, "<OFX>")
}

// statement is the part of a bank or credit card statement response the parser needs
type statement struct {
	accountID string
	tranList  *ofxgo.TransactionList
}

// Parse extracts transactions from every bank and credit card statement in the file
func (p *Parser) Parse(ctx context.Context, r io.Reader) (*parser.Result, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	content, err := io.ReadAll(parser.DecodeText(r))
	if err != nil {
		return nil, fmt.Errorf("failed to read OFX content: %w", err)
	}

	// ofxgo.ParseResponse does not support cancellation; check once more before it runs
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := parser.NewResult("Transaction")
	content, entries := screenTransactions(content, result)

	response, err := ofxgo.ParseResponse(bytes.NewReader(content))
	if err != nil {
		result.AddError(0, "OFX parsing error: %v", err)
		return result, nil
	}

	if len(response.Bank) == 0 && len(response.CreditCard) == 0 {
		result.AddError(0, "No account information found in OFX file")
		return result, nil
	}

	statements, ok := collectStatements(response)
	if !ok {
		result.AddError(0, "No statement information found in OFX file")
		return result, nil
	}

	n := 0
	for _, stmt := range statements {
		if stmt.tranList == nil || len(stmt.tranList.Transactions) == 0 {
			result.AddWarning(0, "No transactions found in statement")
			continue
		}
		for _, txn := range stmt.tranList.Transactions {
			e := entry{row: n + 1}
			if n < len(entries) {
				e = entries[n]
			}
			n++
			p.parseTransaction(result, e, txn)
		}
	}

	return result, nil
}

// collectStatements returns the statement responses in file order.
// ok is false when a message is not a statement or carries no account ID.
func collectStatements(resp *ofxgo.Response) ([]statement, bool) {
	var out []statement

	for _, msg := range resp.Bank {
		stmt, ok := msg.(*ofxgo.StatementResponse)
		if !ok || stmt.BankAcctFrom.AcctID.String() == "" {
			return nil, false
		}
		out = append(out, statement{accountID: stmt.BankAcctFrom.AcctID.String(), tranList: stmt.BankTranList})
	}

	for _, msg := range resp.CreditCard {
		stmt, ok := msg.(*ofxgo.CCStatementResponse)
		if !ok || stmt.CCAcctFrom.AcctID.String() == "" {
			return nil, false
		}
		out = append(out, statement{accountID: stmt.CCAcctFrom.AcctID.String(), tranList: stmt.BankTranList})
	}

	return out, len(out) > 0
}

// parseTransaction normalizes one OFX transaction and infers its category
func (p *Parser) parseTransaction(result *parser.Result, e entry, txn ofxgo.Transaction) {
	idx := e.row
	if e.syntheticID {
		txn.FiTID = ""
	}

	date := dateValue(txn.DtPosted)
	if date.IsZero() {
		date = dateValue(txn.DtUser)
	}
	if date.IsZero() {
		result.AddError(idx, "Date is required")
		return
	}

	amount, err := decimal.NewFromString(txn.TrnAmt.Rat.FloatString(8))
	if err != nil {
		result.AddError(idx, "Invalid amount '%v'", txn.TrnAmt.String())
		return
	}

	txnType, known := mapOFXTransactionType(txn)
	if e.typeChanged {
		txnType, known = e.trnType, false
	}
	if !known {
		label := txnType
		if label == "" {
			label = "(missing)"
		}
		result.AddWarning(idx, "unknown OFX transaction type %s (transaction ID: %s)", label, referenceNumber(txn))
	}

	payee := payeeName(txn)
	memo := strings.TrimSpace(txn.Memo.String())

	match := p.rules.Categorize(txnType, amount, strings.TrimSpace(payee+" "+memo))

	result.Add(parser.Transaction{
		Date:            parser.CalendarDate(date.UTC()),
		Description:     describe(payee, memo, txnType),
		Amount:          amount.Round(2),
		Category:        match.Category,
		ReferenceNumber: referenceNumber(txn),
	})
}

// describe joins payee and memo, skipping a memo already contained in the payee.
// Falls back to the transaction type label, then to "Transaction".
func describe(payee, memo, txnType string) string {
	var parts []string
	if payee != "" {
		parts = append(parts, payee)
	}
	if memo != "" && (payee == "" || !strings.Contains(payee, memo)) {
		parts = append(parts, memo)
	}
	if len(parts) == 0 && txnType != "" {
		parts = append(parts, txnType)
	}
	if len(parts) == 0 {
		return "Transaction"
	}
	return strings.Join(parts, " - ")
}

// payeeName prefers NAME, then the structured PAYEE aggregate
func payeeName(txn ofxgo.Transaction) string {
	if name := strings.TrimSpace(txn.Name.String()); name != "" {
		return name
	}
	if txn.Payee != nil {
		return strings.TrimSpace(txn.Payee.Name.String())
	}
	return ""
}

// referenceNumber prefers FITID, then CHECKNUM prefixed with CHECK-
func referenceNumber(txn ofxgo.Transaction) string {
	if id := strings.TrimSpace(txn.FiTID.String()); id != "" {
		return id
	}
	if num := strings.TrimSpace(txn.CheckNum.String()); num != "" {
		return "CHECK-" + num
	}
	return ""
}

// dateValue reads an ofxgo date field that may be a value or an optional pointer
func dateValue(v any) time.Time {
	switch d := v.(type) {
	case ofxgo.Date:
		return d.Time
	case *ofxgo.Date:
		if d != nil {
			return d.Time
		}
	}
	return time.Time{}
}

// mapOFXTransactionType returns the upper-case OFX label for the transaction type.
// known is false for types outside the standard OFX list.
func mapOFXTransactionType(txn ofxgo.Transaction) (string, bool) {
	switch txn.TrnType {
	case ofxgo.TrnTypeCredit:
		return "CREDIT", true
	case ofxgo.TrnTypeDebit:
		return "DEBIT", true
	case ofxgo.TrnTypeInt:
		return "INT", true
	case ofxgo.TrnTypeDiv:
		return "DIV", true
	case ofxgo.TrnTypeFee:
		return "FEE", true
	case ofxgo.TrnTypeSrvChg:
		return "SRVCHG", true
	case ofxgo.TrnTypeDep:
		return "DEP", true
	case ofxgo.TrnTypeATM:
		return "ATM", true
	case ofxgo.TrnTypePOS:
		return "POS", true
	case ofxgo.TrnTypeXfer:
		return "XFER", true
	case ofxgo.TrnTypeCheck:
		return "CHECK", true
	case ofxgo.TrnTypePayment:
		return "PAYMENT", true
	case ofxgo.TrnTypeCash:
		return "CASH", true
	case ofxgo.TrnTypeDirectDep:
		return "DIRECTDEP", true
	case ofxgo.TrnTypeDirectDebit:
		return "DIRECTDEBIT", true
	case ofxgo.TrnTypeRepeatPmt:
		return "REPEATPMT", true
	case ofxgo.TrnTypeOther:
		return "OTHER", true
	default:
		return strings.ToUpper(fmt.Sprintf("%v", txn.TrnType)), false
	}
}
