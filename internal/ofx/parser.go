// Package ofx reads OFX/QFX bank and credit card statements into ledger import entries.
package ofx

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"slices"
	"strings"

	"github.com/Veraticus/the-budget-must-balance/internal/model"
	"github.com/aclindsa/ofxgo"
	"github.com/shopspring/decimal"
)

// amountPrecision bounds the fractional digits kept from statement amounts.
const amountPrecision = 4

var (
	severityRegex = regexp.MustCompile(`(?i)<SEVERITY>(Info|Warn|Error)</SEVERITY>`)
	// Opening tags at end of line with no closing bracket.
	tagFixRegex = regexp.MustCompile(`(?m)^(\s*<[A-Z][A-Z0-9._]*[A-Z0-9])$`)
)

// ParseResult holds the spending rows of one statement file.
type ParseResult struct {
	Entries  []model.ImportEntry
	Accounts []string
	// Skipped counts credits and zero-amount rows, which are not spending.
	Skipped int
}

// Parser implements OFX/QFX file parsing.
type Parser struct{}

// NewParser creates a new OFX parser.
func NewParser() *Parser {
	return &Parser{}
}

// preprocessOFX fixes common formatting issues in OFX files.
func (p *Parser) preprocessOFX(content string) string {
	content = strings.TrimLeft(content, " \t\r\n")

	// SEVERITY must be INFO, WARN or ERROR
	content = severityRegex.ReplaceAllStringFunc(content, strings.ToUpper)

	return tagFixRegex.ReplaceAllString(content, "$1>")
}

// ParseFile parses an OFX/QFX file and returns its debits as import entries.
func (p *Parser) ParseFile(ctx context.Context, reader io.Reader) (*ParseResult, error) {
	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read OFX file: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	resp, err := ofxgo.ParseResponse(strings.NewReader(p.preprocessOFX(string(content))))
	if err != nil {
		return nil, fmt.Errorf("failed to parse OFX file: %w", err)
	}

	result := &ParseResult{}
	var bankStmts, ccStmts int

	for _, msg := range resp.Bank {
		stmt, ok := msg.(*ofxgo.StatementResponse)
		if !ok {
			continue
		}
		bankStmts++
		accountID := string(stmt.BankAcctFrom.AcctID)
		result.addAccount(accountID)
		if stmt.BankTranList != nil {
			p.collect(result, stmt.BankTranList.Transactions, accountID)
		}
	}

	for _, msg := range resp.CreditCard {
		stmt, ok := msg.(*ofxgo.CCStatementResponse)
		if !ok {
			continue
		}
		ccStmts++
		accountID := string(stmt.CCAcctFrom.AcctID)
		result.addAccount(accountID)
		if stmt.BankTranList != nil {
			p.collect(result, stmt.BankTranList.Transactions, accountID)
		}
	}

	slog.Info("Parsed OFX file",
		"entries", len(result.Entries),
		"skipped", result.Skipped,
		"bank_statements", bankStmts,
		"cc_statements", ccStmts)

	return result, nil
}

func (r *ParseResult) addAccount(accountID string) {
	if accountID != "" && !slices.Contains(r.Accounts, accountID) {
		r.Accounts = append(r.Accounts, accountID)
	}
}

func (p *Parser) collect(result *ParseResult, txns []ofxgo.Transaction, accountID string) {
	for _, ofxTx := range txns {
		entry, ok := p.convertTransaction(ofxTx, accountID)
		if !ok {
			result.Skipped++
			continue
		}
		result.Entries = append(result.Entries, entry)
	}
}

// convertTransaction turns a debit into an import entry. OFX signs debits negative;
// anything else is reported as not spending.
func (p *Parser) convertTransaction(ofxTx ofxgo.Transaction, accountID string) (model.ImportEntry, bool) {
	amount := decimal.NewFromBigRat(&ofxTx.TrnAmt.Rat, amountPrecision)
	if !amount.IsNegative() {
		return model.ImportEntry{}, false
	}

	return model.ImportEntry{
		Date:       ofxTx.DtPosted.Time.UTC(),
		Amount:     amount.Abs(),
		Note:       p.extractMerchantName(ofxTx),
		ExternalID: externalID(accountID, string(ofxTx.FiTID)),
	}, true
}

// externalID scopes a FITID to its account, since banks only promise uniqueness per account.
func externalID(accountID, fitID string) string {
	fitID = strings.TrimSpace(fitID)
	if fitID == "" {
		return ""
	}
	if accountID == "" {
		return fitID
	}
	return accountID + ":" + fitID
}

// extractMerchantName tries to get a clean merchant name from OFX data.
func (p *Parser) extractMerchantName(tx ofxgo.Transaction) string {
	// PAYEE is usually the cleanest
	if tx.Payee != nil && tx.Payee.Name != "" {
		return strings.TrimSpace(string(tx.Payee.Name))
	}

	name := string(tx.Name)
	if tx.Memo != "" && isGenericDescription(name) {
		name = string(tx.Memo)
	}
	name = strings.TrimSpace(name)

	prefixes := []string{
		"POS PURCHASE ",
		"PURCHASE AUTHORIZED ON ",
		"DEBIT CARD PURCHASE ",
		"ACH DEBIT ",
		"CHECK CARD ",
		"VISA PURCHASE ",
		"MC PURCHASE ",
		"DEBIT PURCHASE ",
	}
	for _, prefix := range prefixes {
		if strings.HasPrefix(strings.ToUpper(name), prefix) {
			name = name[len(prefix):]
			break
		}
	}

	// Leading "MM/DD " left behind by some card processors
	if len(name) > 5 && name[2] == '/' && name[5] == ' ' {
		name = strings.TrimSpace(name[6:])
	}

	return name
}

func isGenericDescription(name string) bool {
	generic := []string{
		"DEBIT",
		"CREDIT",
		"PURCHASE",
		"PAYMENT",
		"POS TRANSACTION",
		"CARD PURCHASE",
	}
	return slices.Contains(generic, strings.ToUpper(strings.TrimSpace(name)))
}
