// Package classify normalizes free-text failure messages and bank names
// into a closed set of categories.
package classify

import "strings"

// Category is a normalized failure category.
type Category string

// The closed category enumeration.
const (
	CategoryChargeback        Category = "chargeback"
	CategoryCustomerStop      Category = "customer_stop"
	CategoryPossibleError     Category = "possible_error"
	CategoryInsufficientFunds Category = "insufficient_funds"
	CategoryHardDecline       Category = "hard_decline"
	CategoryNetworkError      Category = "network_error"
	CategoryFraud             Category = "fraud"
	CategoryUnknown           Category = "unknown"
)

// keywordEntry pairs a category with its trigger keywords. Entries are
// evaluated top to bottom and the first hit wins, so specific reasons
// (customer stop, data errors, insufficient funds) must come before the
// generic hard-decline bucket: a temporary funding gap is never a
// permanent account failure.
type keywordEntry struct {
	category Category
	keywords []string
}

// messageTable is the static ordered classification table. Keywords cover
// the English and Spanish variants seen in processor responses.
var messageTable = []keywordEntry{
	{CategoryChargeback, []string{
		"chargeback",
		"contracargo",
	}},
	{CategoryCustomerStop, []string{
		"cancelled by customer",
		"canceled by customer",
		"customer requested",
		"stop payment",
		"mandate cancelled",
		"mandate revoked",
		"orden del cliente",
		"solicitud del cliente",
		"revocacion",
		"domiciliacion cancelada",
	}},
	{CategoryPossibleError, []string{
		"account does not exist",
		"no such account",
		"invalid account number",
		"cuenta inexistente",
		"cuenta no existe",
		"wrong bank",
		"banco receptor incorrecto",
	}},
	{CategoryInsufficientFunds, []string{
		"insufficient",
		"nsf",
		"saldo insuficiente",
		"fondos insuficientes",
		"sin fondos",
	}},
	{CategoryFraud, []string{
		"fraud",
		"fraude",
	}},
	{CategoryHardDecline, []string{
		"cancelled",
		"canceled",
		"cancelada",
		"blocked",
		"bloqueada",
		"unauthorized",
		"no autorizada",
		"account closed",
		"cuenta cerrada",
		"cuenta cancelada",
		"frozen",
		"congelada",
		"inactive account",
		"cuenta inactiva",
	}},
	{CategoryNetworkError, []string{
		"timeout",
		"timed out",
		"network error",
		"connection",
		"conexion",
		"unavailable",
		"try again",
		"intente de nuevo",
	}},
}

// Message classifies a free-text failure message. Matching is
// case-insensitive substring containment against the static table;
// empty input classifies as unknown.
func Message(text string) Category {
	normalized := normalize(text)
	if normalized == "" {
		return CategoryUnknown
	}

	for _, entry := range messageTable {
		for _, kw := range entry.keywords {
			if strings.Contains(normalized, kw) {
				return entry.category
			}
		}
	}
	return CategoryUnknown
}

// BankMatches reports whether the bank name contains any of the configured
// list entries, case-insensitively. Used for both the kill and risk lists.
func BankMatches(bank string, list []string) bool {
	normalized := normalize(bank)
	if normalized == "" {
		return false
	}

	for _, entry := range list {
		token := normalize(entry)
		if token != "" && strings.Contains(normalized, token) {
			return true
		}
	}
	return false
}

// normalize lowercases, trims, and strips the accents that show up in
// Spanish-language processor messages so keyword matching stays plain ASCII.
func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return s
	}

	replacer := strings.NewReplacer(
		"á", "a",
		"é", "e",
		"í", "i",
		"ó", "o",
		"ú", "u",
		"ü", "u",
		"ñ", "n",
	)
	return replacer.Replace(s)
}
