package report

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agfdash/internal/classify"
	"agfdash/internal/core"
	"agfdash/internal/store"
)

type names map[string]string

func (n names) UnitName(id string) (string, bool) {
	v, ok := n[id]
	return v, ok
}

func (n names) CategoryName(id string) (string, bool) {
	v, ok := n[id]
	return v, ok
}

var (
	testUnits      = names{"u1": "Unit X", "u2": "Unit B"}
	testCategories = names{"c1": "Aluguel", "c2": "Telefonia"}
)

func newTestBuilder() *Builder {
	return NewBuilder(testUnits, testCategories, classify.Default())
}

func cellAt(t *testing.T, p Payload, year, month int, unit string) core.Cell {
	t.Helper()
	c, ok := p.Data.Cell(year, month, unit)
	require.True(t, ok, "no cell for %d/%d %s", month, year, unit)
	return c
}

func TestEndToEndUnitX(t *testing.T) {
	b := newTestBuilder()
	b.AddLedgerEntries([]store.Record{
		{"_id": "lm1", "Ano": 2024.0, "Mês": "Maio", "AGF": "u1", "total_receita": 1000.0, "total_despesa": 400.0},
	})
	b.AddObjectCounts([]store.Record{
		{"_id": "b1", "Lançamento Mensal": "lm1", "Quantidade": "50", "Tipo de objeto": "Total"},
	})
	b.AddExpenseLines([]store.Record{
		{"_id": "d1", "LançamentoMesnal": "lm1", "Categoria": "c1", "Valor": "R$ 100,00"},
	})

	p := b.Payload([]core.BusinessUnit{{ID: "u1", Name: "Unit X"}})
	assert.Equal(t, 1, p.Data.Len())

	c := cellAt(t, p, 2024, 5, "Unit X")
	assert.Equal(t, 1000.0, c.Revenue)
	assert.Equal(t, 400.0, c.ExpenseTotal)
	assert.Equal(t, 50.0, c.ObjectCount)
	assert.Equal(t, 100.0, c.SubAccountExpenseTotal)
	assert.Equal(t, 100.0, c.ExpenseByCategory[core.CategoryAluguel])
	assert.Equal(t, 300.0, c.Divergence())
	assert.Equal(t, core.Categories(), p.Categories)
	assert.Zero(t, p.Diagnostics.Dropped.Total())
}

func TestExpenseLinesSum(t *testing.T) {
	b := newTestBuilder()
	b.AddLedgerEntries([]store.Record{{"_id": "lm1", "Ano": 2024, "Mês": 3, "AGF": "u1"}})
	b.AddExpenseLines([]store.Record{
		{"Lançamento Mensal": "lm1", "Categoria": "c2", "Valor": 100.0},
		{"Lançamento Mensal": "lm1", "Categoria": "c2", "Valor": "50"},
	})

	c := cellAt(t, b.Payload(nil), 2024, 3, "Unit X")
	assert.Equal(t, 150.0, c.ExpenseByCategory[core.CategoryTelefone])
	assert.Equal(t, 150.0, c.SubAccountExpenseTotal)
}

func TestLedgerTotalsSum(t *testing.T) {
	b := newTestBuilder()
	b.AddLedgerEntries([]store.Record{
		{"_id": "lm1", "Ano": 2024, "Mês": 5, "AGF": "u1", "total_receita": 100.0, "total_despesa": 40.0},
		{"_id": "lm2", "Ano": 2024, "Mês": 5, "AGF": "u1", "total_receita": "50", "total_despesa": "R$ 10,50"},
	})

	p := b.Payload(nil)
	assert.Equal(t, 1, p.Data.Len())
	c := cellAt(t, p, 2024, 5, "Unit X")
	assert.Equal(t, 150.0, c.Revenue)
	assert.Equal(t, 50.5, c.ExpenseTotal)
}

func TestUnitNameSpellingsShareCell(t *testing.T) {
	units := names{"u1": "Unit X", "u9": " Unit   X "}
	b := NewBuilder(units, testCategories, classify.Default())
	b.AddLedgerEntries([]store.Record{
		{"_id": "lm1", "Ano": 2024, "Mês": 5, "AGF": "u1", "total_receita": 100.0},
		{"_id": "lm2", "Ano": 2024, "Mês": 5, "AGF": "u9", "total_receita": 50.0},
	})

	p := b.Payload(nil)
	assert.Equal(t, 1, p.Data.Len())
	assert.Equal(t, 150.0, cellAt(t, p, 2024, 5, "Unit X").Revenue)
}

func TestSumsAreExactAndOrderIndependent(t *testing.T) {
	lines := []store.Record{
		{"Lançamento Mensal": "03/2024", "Descrição": "extra", "Valor": 0.1},
		{"Lançamento Mensal": "03/2024", "Descrição": "extra", "Valor": 0.2},
		{"Lançamento Mensal": "03/2024", "Descrição": "extra", "Valor": "1.000,05"},
	}
	reversed := []store.Record{lines[2], lines[1], lines[0]}

	a := newTestBuilder()
	a.AddExpenseLines(lines)
	b := newTestBuilder()
	b.AddExpenseLines(reversed)

	pa, pb := a.Payload(nil), b.Payload(nil)
	assert.Equal(t, pa.Data, pb.Data)
	assert.Equal(t, 1000.35, cellAt(t, pa, 2024, 3, DefaultUnitName).SubAccountExpenseTotal)
}

func TestDroppedRecordsCreateNoCell(t *testing.T) {
	b := newTestBuilder()
	b.AddLedgerEntries([]store.Record{
		{"_id": "lm1", "AGF": "u1", "total_receita": 10},
		{"_id": "lm2", "Ano": 2024, "Mês": "Fevereiro", "AGF": "u1"},
	})
	b.AddObjectCounts([]store.Record{
		{"Lançamento Mensal": "unknown", "Quantidade": 3},
		{"Lançamento Mensal": "lm1", "Quantidade": 3},
	})
	b.AddExpenseLines([]store.Record{
		{"Lançamento Mensal": "not a date", "Valor": 5},
		{"Valor": 5},
	})

	p := b.Payload(nil)
	assert.Equal(t, 1, p.Data.Len(), "only lm2 has a period")
	_, ok := p.Data.Cell(2024, 2, "Unit X")
	assert.True(t, ok)

	d := p.Diagnostics
	assert.Equal(t, DropCounts{LedgerEntries: 1, ObjectCounts: 2, ExpenseLines: 2}, d.Dropped)
	assert.Equal(t, []string{"not a date", "unknown"}, d.UnresolvedLedgerEntries)
}

func TestDirectUnitOverridesParent(t *testing.T) {
	b := newTestBuilder()
	b.AddLedgerEntries([]store.Record{{"_id": "lm1", "Ano": 2024, "Mês": 1, "AGF": "u1"}})
	b.AddExpenseLines([]store.Record{
		{"LançamentoMensal": "lm1", "AGF": "u2", "Descrição": "celular vivo", "Valor": 30},
		{"LançamentoMensal": "lm1", "AGF": "ghost", "Descrição": "celular vivo", "Valor": 7},
	})

	p := b.Payload(nil)
	assert.Equal(t, 30.0, cellAt(t, p, 2024, 1, "Unit B").ExpenseByCategory[core.CategoryTelefone])
	// An unknown direct unit keeps the parent's unit.
	assert.Equal(t, 7.0, cellAt(t, p, 2024, 1, "Unit X").SubAccountExpenseTotal)
	assert.Equal(t, []string{"ghost"}, p.Diagnostics.UnresolvedUnits)
}

func TestUnknownLedgerUnitKeepsFoldedID(t *testing.T) {
	b := newTestBuilder()
	b.AddLedgerEntries([]store.Record{{"_id": "lm1", "Ano": 2024, "Mês": 2, "AGF": "ghost", "total_receita": 5}})

	p := b.Payload(nil)
	assert.Equal(t, 5.0, cellAt(t, p, 2024, 2, "ghost").Revenue)
	assert.Equal(t, []string{"ghost"}, p.Diagnostics.UnresolvedUnits)
}

func TestCategoryCompleteness(t *testing.T) {
	b := newTestBuilder()
	b.AddLedgerEntries([]store.Record{
		{"_id": "lm1", "Data": "01/2024", "AGF": "u1", "total_receita": 1},
		{"_id": "lm2", "Data": "02/2024", "AGF": "u2"},
	})
	b.AddExpenseLines([]store.Record{{"Lançamento Mensal": "lm2", "Categoria": "c1", "Valor": 1}})
	b.AddObjectCounts([]store.Record{{"Lançamento Mensal": "lm1", "Quantidade": 2}})

	p := b.Payload(nil)
	require.Equal(t, 2, p.Data.Len())
	for _, row := range p.Rows() {
		assert.Len(t, row.Cell.ExpenseByCategory, 9, "%d/%d %s", row.Month, row.Year, row.Unit)
		for _, c := range core.Categories() {
			assert.Contains(t, row.Cell.ExpenseByCategory, c)
		}
	}
}

func TestExpenseLineKeys(t *testing.T) {
	b := newTestBuilder()
	b.AddLedgerEntries([]store.Record{{"_id": "lm1", "Ano": 2023, "Mês": 12, "AGF": "u1"}})

	tests := []struct {
		name string
		rec  store.Record
		want Key
	}{
		{"indexed parent", store.Record{"LançamentoMesnal": "lm1"}, Key{core.Period{Year: 2023, Month: 12}, "Unit X"}},
		{"month/year link", store.Record{"Lançamento Mensal": " 4/2024 "}, Key{core.Period{Year: 2024, Month: 4}, DefaultUnitName}},
		{"month/year link with unit", store.Record{"Lançamento Mensal": "04/2024", "AGF": "u2"}, Key{core.Period{Year: 2024, Month: 4}, "Unit B"}},
		{"embedded parent", store.Record{"LançamentoMensal": map[string]any{"_id": "x", "Ano": "2022", "Mês": "março", "AGF": map[string]any{"_id": "u2"}}}, Key{core.Period{Year: 2022, Month: 3}, "Unit B"}},
		{"direct fields win", store.Record{"Ano": 2021, "Mês": 6, "LançamentoMesnal": "lm1"}, Key{core.Period{Year: 2021, Month: 6}, "Unit X"}},
		{"unknown link", store.Record{"LançamentoMesnal": "lm9"}, Key{Unit: DefaultUnitName}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, b.keys.ForExpenseLine(tt.rec))
		})
	}
}

func TestLedgerIndex(t *testing.T) {
	x := NewLedgerIndex(testUnits, nil)
	m := x.Add(store.Record{"_id": "lm1", "Data": "07/2024", "Mês": "Agosto", "AGF": map[string]any{"_id": "u2"}})
	assert.Equal(t, core.Period{Year: 2024, Month: 8}, m.Period)
	assert.Equal(t, "Unit B", m.UnitName)

	m = x.Add(store.Record{"_id": "lm2", "Ano": 2024, "Mês": 1, "AGF": "  Açaí  Norte "})
	assert.Equal(t, "Acai Norte", m.UnitName, "unknown units fall back to the folded id")

	m = x.Add(store.Record{"_id": "lm3", "Ano": 2024, "Mês": 1})
	assert.Equal(t, DefaultUnitName, m.UnitName)

	assert.Equal(t, []string{"lm1", "lm2", "lm3"}, x.IDs())
	assert.Equal(t, 3, x.Len())

	missing := x.Missing([]store.Record{
		{"LançamentoMesnal": "lm1"},
		{"LançamentoMensal": "lm7"},
		{"Lançamento Mensal": map[string]any{"_id": "lm8"}},
		{"Lançamento Mensal": "05/2024"},
		{"LançamentoMesnal": "lm7"},
		{},
	})
	assert.Equal(t, []string{"lm7", "lm8"}, missing)
}

func TestCategoryReferences(t *testing.T) {
	b := newTestBuilder()
	b.AddExpenseLines([]store.Record{
		{"Lançamento Mensal": "01/2024", "Categoria": "Comissão vendas", "Valor": 1},
		{"Lançamento Mensal": "01/2024", "Categoria": map[string]any{"_id": "zz", "Nome": "Honorários"}, "Valor": 2},
		{"Lançamento Mensal": "01/2024", "Categoria": "1700000000000x123", "Descrição": "combustível posto", "Valor": 4},
		{"Lançamento Mensal": "01/2024", "Categoria": 42.0, "Valor": 8},
	})

	p := b.Payload(nil)
	c := cellAt(t, p, 2024, 1, DefaultUnitName)
	assert.Equal(t, 1.0, c.ExpenseByCategory[core.CategoryComissoes])
	assert.Equal(t, 2.0, c.ExpenseByCategory[core.CategoryHonorarios])
	assert.Equal(t, 4.0, c.ExpenseByCategory[core.CategoryVeiculos])
	assert.Equal(t, 8.0, c.ExpenseByCategory[core.CategoryExtras])
	assert.Equal(t, 15.0, c.SubAccountExpenseTotal)
	assert.Equal(t, []string{"1700000000000x123"}, p.Diagnostics.UnresolvedCategories)
}

func TestCategoryIDs(t *testing.T) {
	ids := CategoryIDs([]store.Record{
		{"Categoria": "c1"},
		{"Categoria": map[string]any{"_id": "c2"}},
		{"Categoria": 3.0},
		{"Categoria": ""},
		{},
	})
	assert.Equal(t, []string{"c1"}, ids)
}

func TestPayloadJSON(t *testing.T) {
	b := newTestBuilder()
	b.AddLedgerEntries([]store.Record{{"_id": "lm1", "Ano": 2024, "Mês": 5, "AGF": "u1", "total_receita": "1.500,50"}})

	raw, err := json.Marshal(b.Payload(nil))
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, []any{}, got["agfs"])
	assert.Len(t, got["categoriasDespesa"], 9)

	cell := got["dados"].(map[string]any)["2024"].(map[string]any)["5"].(map[string]any)["Unit X"].(map[string]any)
	assert.Equal(t, 1500.5, cell["receita"])
	assert.Len(t, cell["despesas"], 9)
	assert.Contains(t, got, "diagnostics")
}
