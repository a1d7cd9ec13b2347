package classify

import "testing"

func TestMessage(t *testing.T) {
	tests := []struct {
		name string
		text string
		want Category
	}{
		{"Empty", "", CategoryUnknown},
		{"Whitespace", "   ", CategoryUnknown},
		{"Unrecognized", "some exotic processor code 42", CategoryUnknown},

		{"Chargeback", "Chargeback received from issuer", CategoryChargeback},
		{"ChargebackSpanish", "CONTRACARGO aplicado", CategoryChargeback},

		{"CustomerStop", "Payment cancelled by customer", CategoryCustomerStop},
		{"CustomerStopMandate", "mandate revoked", CategoryCustomerStop},
		{"CustomerStopSpanish", "Cancelado por orden del cliente", CategoryCustomerStop},
		{"CustomerStopAccented", "Revocación del mandato", CategoryCustomerStop},

		{"PossibleError", "Account does not exist", CategoryPossibleError},
		{"PossibleErrorSpanish", "Cuenta inexistente", CategoryPossibleError},
		{"PossibleErrorWrongBank", "banco receptor incorrecto", CategoryPossibleError},

		{"InsufficientFunds", "Insufficient funds", CategoryInsufficientFunds},
		{"InsufficientFundsNSF", "NSF - returned", CategoryInsufficientFunds},
		{"InsufficientFundsSpanish", "Saldo insuficiente en la cuenta", CategoryInsufficientFunds},

		{"Fraud", "suspected fraud", CategoryFraud},
		{"FraudSpanish", "FRAUDE detectado", CategoryFraud},

		{"HardDecline", "Account closed", CategoryHardDecline},
		{"HardDeclineBlocked", "card blocked", CategoryHardDecline},
		{"HardDeclineSpanish", "Cuenta cancelada", CategoryHardDecline},
		{"HardDeclineFrozen", "cuenta congelada", CategoryHardDecline},

		{"NetworkError", "gateway timeout", CategoryNetworkError},
		{"NetworkErrorRetry", "service unavailable, try again", CategoryNetworkError},
		{"NetworkErrorSpanish", "error de conexión", CategoryNetworkError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Message(tt.text); got != tt.want {
				t.Errorf("Message(%q) = %s, want %s", tt.text, got, tt.want)
			}
		})
	}
}

// Ordering matters: "cancelled by customer" contains "cancelled", which is
// also a hard-decline keyword. The specific category must win.
func TestMessageOrdering(t *testing.T) {
	if got := Message("payment cancelled by customer request"); got != CategoryCustomerStop {
		t.Errorf("expected customer_stop for a customer cancellation, got %s", got)
	}
	if got := Message("transaction cancelled"); got != CategoryHardDecline {
		t.Errorf("expected hard_decline for a bare cancellation, got %s", got)
	}
}

func TestBankMatches(t *testing.T) {
	list := []string{"azteca", "coppel", "famsa"}

	tests := []struct {
		name string
		bank string
		want bool
	}{
		{"ExactMatch", "azteca", true},
		{"CaseInsensitive", "AZTECA", true},
		{"Containment", "Banco Azteca S.A.", true},
		{"Accented", "Banco Aztéca", true},
		{"NoMatch", "BBVA", false},
		{"Empty", "", false},
		{"Whitespace", "   ", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BankMatches(tt.bank, list); got != tt.want {
				t.Errorf("BankMatches(%q) = %v, want %v", tt.bank, got, tt.want)
			}
		})
	}

	t.Run("EmptyList", func(t *testing.T) {
		if BankMatches("azteca", nil) {
			t.Error("expected no match against empty list")
		}
	})

	t.Run("EmptyListEntryIgnored", func(t *testing.T) {
		if BankMatches("bbva", []string{""}) {
			t.Error("empty list entries must not match everything")
		}
	})
}
