/**
 * @description
 * The closed set of tools the assistant model may call. Each Kind carries its
 * name, the side it runs on, a description and its argument schema, so the
 * model's tool list, the router and the dispatcher all read from one table.
 *
 * @notes
 * - Backend tools execute on the server against the ledger and account service.
 * - Frontend tools are UI components rendered by the client. The server never
 *   executes them; it only hands them to the client as actions.
 */
package tools

// Side says where a tool runs.
type Side string

const (
	SideBackend  Side = "backend"
	SideFrontend Side = "frontend"
)

// Kind identifies one tool.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindGetBalance
	KindGetTransactions
	KindGetSpendByCategory
	KindGetBeneficiaries
	KindAddBeneficiary
	KindRemoveBeneficiary
	KindProposeTransfer
	KindProposeInternalTransfer
	KindApproveTransfer
	KindRejectTransfer
	KindGetPendingTransfers
	KindGetTransferHistory

	KindShowBalance
	KindShowBeneficiaries
	KindShowSpending
	KindShowTransactions
	KindShowTransferForm
	KindShowPendingTransfers
	KindShowAddBeneficiaryForm
	KindTransferMoney
)

type param struct {
	name        string
	typ         string
	description string
	required    bool
}

type definition struct {
	name        string
	side        Side
	description string
	params      []param
}

var dateParams = []param{
	{"from_date", "string", "Optional start date (YYYY-MM-DD)", false},
	{"to_date", "string", "Optional end date (YYYY-MM-DD), inclusive", false},
}

var definitions = map[Kind]definition{
	KindGetBalance: {"get_balance", SideBackend, "Get the user's account balances.", nil},
	KindGetTransactions: {"get_transactions", SideBackend, "Get transaction history, newest first, with optional filters.", append([]param{
		{"account_name", "string", "Optional account name filter, e.g. Savings", false},
		{"category", "string", "Optional category filter, e.g. groceries", false},
		{"limit", "integer", "Maximum number of transactions to return (default 20, max 100)", false},
	}, dateParams...)},
	KindGetSpendByCategory: {"get_spend_by_category", SideBackend, "Aggregate the user's spending by category.", dateParams},
	KindGetBeneficiaries:   {"get_beneficiaries", SideBackend, "List the user's saved beneficiaries.", nil},
	KindAddBeneficiary: {"add_beneficiary", SideBackend, "Add a beneficiary. Only Phoenix Digital Bank accounts are supported.", []param{
		{"account_number", "string", "Account number, e.g. PDB-BOB-001", true},
		{"nickname", "string", "Friendly name for the beneficiary", true},
	}},
	KindRemoveBeneficiary: {"remove_beneficiary", SideBackend, "Remove a beneficiary from the user's list.", []param{
		{"beneficiary_id", "string", "The beneficiary id to remove", true},
	}},
	KindProposeTransfer: {"propose_transfer", SideBackend, "Propose a transfer to a beneficiary. Nothing moves until the user approves it.", []param{
		{"from_account_name", "string", "Source account name, e.g. Current Account", true},
		{"to_beneficiary_nickname", "string", "Beneficiary nickname", true},
		{"amount", "number", "Amount to transfer; must be positive and within the transfer limit", true},
		{"description", "string", "Optional transfer description", false},
	}},
	KindProposeInternalTransfer: {"propose_internal_transfer", SideBackend, "Propose a transfer between the user's own accounts. Nothing moves until the user approves it.", []param{
		{"from_account_name", "string", "Source account name", true},
		{"to_account_name", "string", "Destination account name", true},
		{"amount", "number", "Amount to transfer; must be positive and within the transfer limit", true},
		{"description", "string", "Optional transfer description", false},
	}},
	KindApproveTransfer: {"approve_transfer", SideBackend, "Approve and execute a pending transfer.", []param{
		{"transfer_id", "string", "The pending transfer id", true},
	}},
	KindRejectTransfer: {"reject_transfer", SideBackend, "Reject a pending transfer.", []param{
		{"transfer_id", "string", "The pending transfer id", true},
		{"reason", "string", "Optional rejection reason", false},
	}},
	KindGetPendingTransfers: {"get_pending_transfers", SideBackend, "List transfers waiting for the user's approval.", nil},
	KindGetTransferHistory: {"get_transfer_history", SideBackend, "List completed, failed and rejected transfers.", []param{
		{"limit", "integer", "Maximum number of transfers to return (default 20, max 100)", false},
	}},

	KindShowBalance: {"showBalance", SideFrontend, "Display account balance cards. Pass the accounts from get_balance.", []param{
		{"accounts", "string", "JSON array of accounts from get_balance", true},
	}},
	KindShowBeneficiaries: {"showBeneficiaries", SideFrontend, "Display the beneficiary list. Pass the beneficiaries from get_beneficiaries.", []param{
		{"beneficiaries", "string", "JSON array of beneficiaries from get_beneficiaries", true},
	}},
	KindShowSpending: {"showSpending", SideFrontend, "Display the spending chart. Pass the data from get_spend_by_category.", []param{
		{"spendingData", "string", "JSON array of spending totals from get_spend_by_category", true},
	}},
	KindShowTransactions: {"showTransactions", SideFrontend, "Display the transaction list. Pass the data from get_transactions.", []param{
		{"transactions", "string", "JSON array of transactions from get_transactions", true},
	}},
	KindShowTransferForm: {"showTransferForm", SideFrontend, "Display the transfer form. Pass accounts and beneficiaries.", []param{
		{"accounts", "string", "JSON array of accounts from get_balance", true},
		{"beneficiaries", "string", "JSON array of beneficiaries from get_beneficiaries", true},
	}},
	KindShowPendingTransfers: {"showPendingTransfers", SideFrontend, "Display pending transfers awaiting approval.", []param{
		{"transfers", "string", "JSON array of pending transfers from get_pending_transfers", true},
	}},
	KindShowAddBeneficiaryForm: {"showAddBeneficiaryForm", SideFrontend, "Display the add-beneficiary form. No parameters needed.", nil},
	KindTransferMoney:          {"transferMoney", SideFrontend, "Open the transfer money screen. No parameters needed.", nil},
}

var byName = func() map[string]Kind {
	m := make(map[string]Kind, len(definitions))
	for k, d := range definitions {
		m[d.name] = k
	}
	return m
}()

// Lookup resolves a tool name. Names are case-sensitive.
func Lookup(name string) (Kind, bool) {
	k, ok := byName[name]
	return k, ok
}

// All returns every known kind in declaration order.
func All() []Kind {
	out := make([]Kind, 0, len(definitions))
	for k := KindGetBalance; k <= KindTransferMoney; k++ {
		out = append(out, k)
	}
	return out
}

// OfSide returns the kinds that run on side s, in declaration order.
func OfSide(s Side) []Kind {
	var out []Kind
	for _, k := range All() {
		if k.Side() == s {
			out = append(out, k)
		}
	}
	return out
}

func (k Kind) String() string {
	if d, ok := definitions[k]; ok {
		return d.name
	}
	return "unknown"
}

func (k Kind) Side() Side {
	return definitions[k].side
}

func (k Kind) Description() string {
	return definitions[k].description
}

// Required lists the argument keys the tool must receive.
func (k Kind) Required() []string {
	var out []string
	for _, p := range definitions[k].params {
		if p.required {
			out = append(out, p.name)
		}
	}
	return out
}

// Parameters returns the JSON schema of the tool's arguments.
func (k Kind) Parameters() map[string]any {
	props := make(map[string]any)
	for _, p := range definitions[k].params {
		props[p.name] = map[string]any{"type": p.typ, "description": p.description}
	}
	schema := map[string]any{"type": "object", "properties": props}
	if req := k.Required(); len(req) > 0 {
		schema["required"] = req
	}
	return schema
}
