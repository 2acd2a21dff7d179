package mcpserver

// Typed tool inputs. The SDK infers each tool's input schema from these.
// Field names match the arguments the dispatcher decodes.

type noInput struct{}

type transactionsInput struct {
	AccountName string `json:"account_name,omitempty" jsonschema:"optional account name filter, e.g. Savings"`
	Category    string `json:"category,omitempty" jsonschema:"optional category filter, e.g. groceries"`
	Limit       int    `json:"limit,omitempty" jsonschema:"maximum number of transactions to return (default 20, max 100)"`
	FromDate    string `json:"from_date,omitempty" jsonschema:"optional start date (YYYY-MM-DD)"`
	ToDate      string `json:"to_date,omitempty" jsonschema:"optional end date (YYYY-MM-DD), inclusive"`
}

type dateRangeInput struct {
	FromDate string `json:"from_date,omitempty" jsonschema:"optional start date (YYYY-MM-DD)"`
	ToDate   string `json:"to_date,omitempty" jsonschema:"optional end date (YYYY-MM-DD), inclusive"`
}

type addBeneficiaryInput struct {
	AccountNumber string `json:"account_number" jsonschema:"account number, e.g. PDB-BOB-001"`
	Nickname      string `json:"nickname" jsonschema:"friendly name for the beneficiary"`
}

type removeBeneficiaryInput struct {
	BeneficiaryID string `json:"beneficiary_id" jsonschema:"the beneficiary id to remove"`
}

// Amount stays untyped so callers may send either a JSON number or a decimal string.
type proposeTransferInput struct {
	FromAccountName       string `json:"from_account_name" jsonschema:"source account name, e.g. Current Account"`
	ToBeneficiaryNickname string `json:"to_beneficiary_nickname" jsonschema:"beneficiary nickname"`
	Amount                any    `json:"amount" jsonschema:"amount to transfer as a number or decimal string"`
	Description           string `json:"description,omitempty" jsonschema:"optional transfer description"`
}

type proposeInternalInput struct {
	FromAccountName string `json:"from_account_name" jsonschema:"source account name"`
	ToAccountName   string `json:"to_account_name" jsonschema:"destination account name"`
	Amount          any    `json:"amount" jsonschema:"amount to transfer as a number or decimal string"`
	Description     string `json:"description,omitempty" jsonschema:"optional transfer description"`
}

type transferIDInput struct {
	TransferID string `json:"transfer_id" jsonschema:"the pending transfer id"`
}

type rejectTransferInput struct {
	TransferID string `json:"transfer_id" jsonschema:"the pending transfer id"`
	Reason     string `json:"reason,omitempty" jsonschema:"optional rejection reason"`
}

type historyInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"maximum number of transfers to return (default 20, max 100)"`
}
