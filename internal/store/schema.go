package store

// Collections read by the report pipeline.
const (
	CollectionUnits           = "AGF"
	CollectionLedger          = "LançamentoMensal"
	CollectionCategories      = "Categoria Despesa"
	CollectionExpenseLines    = "Despesa (SubConta)"
	CollectionObjectSummaries = "Balancete"
)

// Field names as stored upstream.
const (
	FieldID          = "_id"
	FieldOwnerEntity = "Empresa Mãe"

	FieldUnitName = "Nome da AGF"
	FieldNome     = "nome"
	FieldName     = "name"

	FieldYear         = "Ano"
	FieldMonth        = "Mês"
	FieldDate         = "Data"
	FieldUnit         = "AGF"
	FieldTotalRevenue = "total_receita"
	FieldTotalExpense = "total_despesa"

	FieldCategoria      = "Categoria"
	FieldCategoryNome   = "Nome"
	FieldDescricao      = "Descrição"
	FieldDescricaoPlain = "descricao"
	FieldAmount         = "Valor"

	FieldLedgerLink = "Lançamento Mensal"
	FieldQuantity   = "Quantidade"
	FieldObjectType = "Tipo de objeto"

	ObjectTypeTotal = "Total"
)

// UnitNameFields are read in order to name an AGF.
var UnitNameFields = []string{FieldUnitName, FieldNome, FieldName}

// CategoryNameFields are read in order to name a category from the bulk list.
var CategoryNameFields = []string{FieldCategoria, FieldCategoryNome, FieldName, FieldNome, FieldDescricao, FieldDescricaoPlain}

// CategoryBackfillNameFields are read when a category is fetched by id.
var CategoryBackfillNameFields = []string{FieldCategoria, FieldCategoryNome, FieldName, FieldNome}

// DescriptionFields hold an expense line's free text.
var DescriptionFields = []string{FieldDescricao, FieldDescricaoPlain}

// ExpenseLedgerLinkFields name the parent ledger link on expense lines.
// The first spelling is a typo that exists in production data.
var ExpenseLedgerLinkFields = []string{"LançamentoMesnal", "LançamentoMensal", FieldLedgerLink}
