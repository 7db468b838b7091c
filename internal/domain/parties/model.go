package parties

// Party is a commercial counterparty (customer, supplier or both).
type Party struct {
	ID         int64
	Name       string
	TaxID      string
	IsCustomer bool
	IsSupplier bool
	Phone      string
	Address    string
}
