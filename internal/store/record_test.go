package store

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecord_Accessors(t *testing.T) {
	var rec Record
	require.NoError(t, json.Unmarshal([]byte(`{
		"_id": "u1",
		"Nome da AGF": "",
		"nome": "Campo Limpo",
		"LançamentoMensal": null,
		"Lançamento Mensal": "lm1",
		"Valor": 0,
		"Quantidade": 12
	}`), &rec))

	assert.Equal(t, "u1", rec.ID())
	assert.Equal(t, "Campo Limpo", rec.Text(UnitNameFields...))
	assert.Equal(t, "lm1", rec.Value(ExpenseLedgerLinkFields...))
	assert.Equal(t, "12", rec.Text("Valor", "Quantidade"))
	assert.Nil(t, rec.Value("missing"))
}

func TestRefOf(t *testing.T) {
	assert.Equal(t, Ref{ID: "a1"}, RefOf("a1"))

	ref := RefOf(map[string]any{"_id": "lm9", "Ano": 2024.0})
	assert.Equal(t, "lm9", ref.ID)
	require.NotNil(t, ref.Embedded)
	assert.Equal(t, 2024.0, ref.Embedded["Ano"])

	assert.True(t, RefOf(nil).IsZero())
	assert.True(t, RefOf(42.0).IsZero())
	assert.Equal(t, "", RefID([]any{"x"}))
}

func TestConstraintJSON(t *testing.T) {
	f := Filter{EqualsTo(FieldOwnerEntity, "e1"), InSet(FieldUnit, nil)}
	b, err := json.Marshal(f)
	require.NoError(t, err)
	assert.JSONEq(t, `[
		{"key":"Empresa Mãe","constraint_type":"equals","value":"e1"},
		{"key":"AGF","constraint_type":"in","value":[]}
	]`, string(b))
}

func TestRemoteFetchError(t *testing.T) {
	err := &RemoteFetchError{Collection: "AGF", Path: "/api/1.1/obj/AGF", Status: 401, Body: "unauthorized"}
	assert.Contains(t, err.Error(), "401")
	assert.Contains(t, err.Error(), "AGF")
}
