package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agfdash/internal/amqp"
	"agfdash/internal/core"
	"agfdash/internal/store"
	"agfdash/internal/store/memory"
)

const fixture = `
AGF:
  - {_id: u1, "Nome da AGF": "Unit  X", "Empresa Mãe": e1}
  - {_id: u2, nome: "São Bento", "Empresa Mãe": e1}
  - {_id: u9, nome: "Elsewhere", "Empresa Mãe": e2}
Categoria Despesa:
  - {_id: c1, Categoria: Aluguel}
  - {_id: c2, Nome: Honorários}
LançamentoMensal:
  - {_id: lm1, Ano: 2024, "Mês": Maio, AGF: u1, total_receita: 1000, total_despesa: 400, "Empresa Mãe": e1}
  - {_id: lm2, Data: "06/2024", AGF: u2, total_receita: "2.500,00", "Empresa Mãe": e1}
  - {_id: lm3, AGF: u1, total_receita: 99, "Empresa Mãe": e1}
  - {_id: lmX, Ano: 2023, "Mês": 12, AGF: u9, "Empresa Mãe": e2}
Despesa (SubConta):
  - {_id: d1, "LançamentoMesnal": lm1, AGF: u1, Categoria: c1, "Valor": "R$ 100,00"}
  - {_id: d2, "Lançamento Mensal": lm2, AGF: u2, Categoria: c2, "Valor": 50}
  - {_id: d3, "LançamentoMensal": lmX, AGF: u2, "Descrição": "celular vivo", "Valor": 20}
  - {_id: d4, "Lançamento Mensal": "07/2024", AGF: u1, Categoria: hidden, "Valor": 5}
  - {_id: d5, "Lançamento Mensal": lm1, AGF: u9, "Valor": 1}
Balancete:
  - {_id: b1, "Lançamento Mensal": lm1, Quantidade: "50", "Tipo de objeto": Total}
  - {_id: b2, "Lançamento Mensal": lm1, Quantidade: 7, "Tipo de objeto": Parcial}
  - {_id: b3, "Lançamento Mensal": lmX, Quantidade: 3, "Tipo de objeto": Total}
`

// hidingStore leaves some records out of bulk listings, like upstream
// privacy rules do, while still returning them by id.
type hidingStore struct {
	*memory.Store
	hidden map[string]bool
}

func (h *hidingStore) FetchAll(ctx context.Context, collection string, filter store.Filter, pageSize int) ([]store.Record, error) {
	recs, err := h.Store.FetchAll(ctx, collection, filter, pageSize)
	if err != nil {
		return nil, err
	}
	var out []store.Record
	for _, r := range recs {
		if !h.hidden[r.ID()] {
			out = append(out, r)
		}
	}
	return out, nil
}

func (h *hidingStore) SupportsIDFilter() bool { return false }

type failingStore struct {
	*memory.Store
	collection string
}

func (f *failingStore) FetchAll(ctx context.Context, collection string, filter store.Filter, pageSize int) ([]store.Record, error) {
	if collection == f.collection {
		return nil, &store.RemoteFetchError{Collection: collection, Status: 503, Body: "down"}
	}
	return f.Store.FetchAll(ctx, collection, filter, pageSize)
}

type capturePublisher struct {
	mu   sync.Mutex
	msgs []*amqp.ReportGeneratedMessage
	err  error
}

func (p *capturePublisher) PublishReportGenerated(ctx context.Context, msg *amqp.ReportGeneratedMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, msg)
	return p.err
}

func loadFixture(t *testing.T) *memory.Store {
	t.Helper()
	s := memory.New()
	require.NoError(t, s.Load([]byte(fixture)))
	s.Put(store.CollectionCategories, store.Record{"_id": "hidden", "Nome": "Comissões"})
	return s
}

func TestReportService_Build(t *testing.T) {
	mem := loadFixture(t)
	pub := &capturePublisher{}
	svc := NewReportService(&hidingStore{Store: mem, hidden: map[string]bool{"hidden": true}},
		nil, pub, ReportServiceConfig{PageSize: 2}, nil)

	res, err := svc.Build(context.Background(), " e1 ")
	require.NoError(t, err)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, "e1", res.EntityID)

	p := res.Payload
	assert.Equal(t, []core.BusinessUnit{{ID: "u1", Name: "Unit X"}, {ID: "u2", Name: "Sao Bento"}}, p.Units)
	assert.Len(t, p.Categories, 9)

	may, ok := p.Data.Cell(2024, 5, "Unit X")
	require.True(t, ok)
	assert.Equal(t, 1000.0, may.Revenue)
	assert.Equal(t, 400.0, may.ExpenseTotal)
	assert.Equal(t, 50.0, may.ObjectCount, "only Total summaries count")
	assert.Equal(t, 100.0, may.ExpenseByCategory[core.CategoryAluguel])
	assert.Equal(t, 100.0, may.SubAccountExpenseTotal)

	june, ok := p.Data.Cell(2024, 6, "Sao Bento")
	require.True(t, ok)
	assert.Equal(t, 2500.0, june.Revenue)
	assert.Equal(t, 50.0, june.ExpenseByCategory[core.CategoryHonorarios])

	// d3 hangs off another entity's ledger entry, repaired by the backfill;
	// its own AGF decides the unit.
	dec, ok := p.Data.Cell(2023, 12, "Sao Bento")
	require.True(t, ok)
	assert.Equal(t, 20.0, dec.ExpenseByCategory[core.CategoryTelefone])
	assert.Zero(t, dec.Revenue, "backfilled ledger entries add no totals")

	// The backfilled ledger entry also brings its object summary in.
	lmxUnit, ok := p.Data.Cell(2023, 12, "u9")
	require.True(t, ok)
	assert.Equal(t, 3.0, lmxUnit.ObjectCount)

	// d4 is keyed by its "mm/yyyy" link; its hidden category was backfilled.
	july, ok := p.Data.Cell(2024, 7, "Unit X")
	require.True(t, ok)
	assert.Equal(t, 5.0, july.ExpenseByCategory[core.CategoryComissoes])

	d := p.Diagnostics
	assert.Equal(t, 1, d.Dropped.LedgerEntries, "lm3 has no period")
	assert.Empty(t, d.LedgerBackfill.NotFound)
	assert.Equal(t, 1, d.LedgerBackfill.Single)
	assert.Equal(t, 1, d.CategoryBackfill.Single)
	assert.Contains(t, d.UnresolvedUnits, "u9")
	assert.Equal(t, 3, d.Records.LedgerEntries)
	assert.Equal(t, 4, d.Records.LedgerIndexed)
	assert.Equal(t, 4, d.Records.ExpenseLines, "d5 belongs to another entity's unit")

	require.Len(t, pub.msgs, 1)
	assert.Equal(t, res.RunID, pub.msgs[0].RunID)
	assert.Equal(t, len(p.Rows()), len(pub.msgs[0].Rows))
}

func TestReportService_MissingEntity(t *testing.T) {
	mem := loadFixture(t)
	svc := NewReportService(mem, nil, nil, ReportServiceConfig{}, nil)

	_, err := svc.Build(context.Background(), "  ")
	assert.ErrorIs(t, err, core.ErrMissingEntityID)
	assert.Zero(t, mem.Calls("fetchAll", store.CollectionUnits), "no fetch before validation")
}

func TestReportService_UnknownEntity(t *testing.T) {
	mem := loadFixture(t)
	svc := NewReportService(mem, nil, nil, ReportServiceConfig{}, nil)

	res, err := svc.Build(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Empty(t, res.Payload.Units)
	assert.Zero(t, res.Payload.Data.Len())
	assert.Zero(t, mem.Calls("fetchAll", store.CollectionExpenseLines))
	assert.Zero(t, mem.Calls("fetchAll", store.CollectionObjectSummaries))
}

func TestReportService_RemoteFailureIsFatal(t *testing.T) {
	for _, coll := range []string{
		store.CollectionUnits,
		store.CollectionCategories,
		store.CollectionLedger,
		store.CollectionExpenseLines,
		store.CollectionObjectSummaries,
	} {
		t.Run(coll, func(t *testing.T) {
			pub := &capturePublisher{}
			svc := NewReportService(&failingStore{Store: loadFixture(t), collection: coll},
				nil, pub, ReportServiceConfig{}, nil)

			res, err := svc.Build(context.Background(), "e1")
			require.Error(t, err)
			assert.Nil(t, res)

			var rfe *store.RemoteFetchError
			require.True(t, errors.As(err, &rfe))
			assert.Equal(t, coll, rfe.Collection)
			assert.Equal(t, 503, rfe.Status)
			assert.Empty(t, pub.msgs, "no event for a failed build")
		})
	}
}

func TestReportService_PublishFailureIsNotFatal(t *testing.T) {
	pub := &capturePublisher{err: errors.New("broker down")}
	svc := NewReportService(loadFixture(t), nil, pub, ReportServiceConfig{}, nil)

	res, err := svc.Build(context.Background(), "e1")
	require.NoError(t, err)
	assert.NotZero(t, res.Payload.Data.Len())
	assert.Len(t, pub.msgs, 1)
}
